// Package tunzadent implements the account-security core of the Tunzadent
// caries-detection platform: registration with email ownership verification,
// mandatory TOTP enrollment, login admission, backup-code recovery, and
// password rotation.
//
// The package is the embeddable surface. It exposes [Engine], [Builder],
// [Config], the [AccountStore] and [Mailer] collaborator interfaces, and the
// request/result value types. Engine methods are safe to call from multiple
// goroutines after construction through [Builder.Build].
//
// # Admission model
//
// A login attempt passes through ordered gates: credentials, email
// verification, completed second-factor enrollment, second-factor possession,
// second-factor validity. Only the final gate mints a session; every earlier
// gate either fails the attempt or returns a [LoginResult] telling the caller
// what to do next. An unverified identity never learns the account's 2FA
// state, and a half-enrolled account is never asked for a code tied to a
// secret it has not confirmed.
//
// # State and concurrency
//
// The engine holds no per-request state. The only shared mutable resource is
// the account row behind [AccountStore]; every transition (verification,
// secret generation, enrollment completion, backup-code consumption) is a
// compare-and-swap on the record's version, retried on conflict, so two
// concurrent requests can never persist two different second-factor secrets
// or consume the same backup code twice. Sessions and login throttling live
// in Redis.
package tunzadent
