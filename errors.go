package tunzadent

import "errors"

var (
	// ErrEngineNotReady is returned when the engine is used before Build
	// completed or a required collaborator is missing.
	ErrEngineNotReady = errors.New("engine not ready")

	// ErrValidation covers malformed or missing request input. It is always
	// recoverable by correcting the input.
	ErrValidation = errors.New("invalid request")

	// ErrInvalidCredentials is returned for any username/password failure.
	// It deliberately does not distinguish unknown identity from wrong
	// password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidSecondFactor is returned when a submitted code matches
	// neither the account's TOTP secret nor an unused backup code. The
	// caller has already proven password possession at this point, so the
	// distinction from ErrInvalidCredentials is safe to expose.
	ErrInvalidSecondFactor = errors.New("invalid second factor")

	// ErrAccountNotFound is returned by account lookups that miss.
	ErrAccountNotFound = errors.New("account not found")

	// ErrEmailTaken is returned before any row is created when the email is
	// already registered.
	ErrEmailTaken = errors.New("email already registered")

	// ErrUsernameTaken is returned when the username is already registered.
	ErrUsernameTaken = errors.New("username already registered")

	// ErrVersionConflict is returned by AccountStore.Update when the record
	// changed since it was read. Engine mutations retry on it.
	ErrVersionConflict = errors.New("account version conflict")

	// ErrPasswordMismatch is returned at registration when password and
	// confirmation differ.
	ErrPasswordMismatch = errors.New("passwords don't match")

	// ErrPasswordPolicy marks a password complexity violation. The joined
	// error carries a password.PolicyError naming each missing class.
	ErrPasswordPolicy = errors.New("password policy violation")

	// ErrTokenInvalid is returned when no account carries the submitted
	// verification token, or the token has expired. Unknown and expired
	// tokens are indistinguishable on purpose.
	ErrTokenInvalid = errors.New("invalid verification token")

	// ErrEmailNotVerified is returned when enrollment is attempted before
	// email ownership has been proven.
	ErrEmailNotVerified = errors.New("email not verified")

	// ErrSetupAlreadyComplete is returned when enrollment begin is called on
	// an account whose second-factor setup already finished. Enrollment is
	// one-shot.
	ErrSetupAlreadyComplete = errors.New("second factor setup already complete")

	// ErrEnrollmentNotStarted is returned by enrollment confirm when no
	// secret was ever generated for the account.
	ErrEnrollmentNotStarted = errors.New("second factor enrollment not started")

	// ErrSecondFactorNotEnabled guards operations that require an active
	// second factor, such as backup-code regeneration.
	ErrSecondFactorNotEnabled = errors.New("second factor not enabled")

	// ErrMailDelivery surfaces a failure from the Mailer collaborator.
	// Registration must not report success with unsent mail.
	ErrMailDelivery = errors.New("mail delivery failed")

	// ErrLoginRateLimited is returned when an identifier exceeded the failed
	// login budget.
	ErrLoginRateLimited = errors.New("login rate limited")

	// ErrSecondFactorRateLimited is returned when second-factor attempts
	// exceeded the budget.
	ErrSecondFactorRateLimited = errors.New("second factor attempts rate limited")

	// ErrUnauthorized is returned for access tokens that fail validation.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRefreshInvalid is returned for refresh tokens that do not decode or
	// do not match a live session.
	ErrRefreshInvalid = errors.New("invalid refresh token")

	// ErrRefreshReuse signals that an already-rotated refresh token was
	// presented again; the session is invalidated.
	ErrRefreshReuse = errors.New("refresh token reuse detected")

	// ErrSessionNotFound is returned when the referenced session no longer
	// exists.
	ErrSessionNotFound = errors.New("session not found")

	// ErrStoreUnavailable wraps backend failures from the account store or
	// Redis.
	ErrStoreUnavailable = errors.New("account backend unavailable")
)
