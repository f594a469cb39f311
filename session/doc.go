// Package session provides Redis-backed session persistence and a
// compact binary session encoding for authentication hot paths.
//
// The package owns the [Store] (Redis operations) and the [Session]
// model. It does not interpret JWT tokens or enforce admission policy;
// those responsibilities belong to the engine. Sessions never hold
// plaintext secrets: only the SHA-256 hash of the current refresh
// secret is stored, which is what makes refresh-token reuse detectable.
package session
