package tunzadent

import "context"

// Account is the durable credential record, one per user. The engine never
// stores or logs plaintext passwords; PasswordHash carries an Argon2id PHC
// string.
type Account struct {
	ID        string
	Username  string
	Email     string
	FirstName string
	LastName  string
	Phone     string
	Role      string

	PasswordHash string

	EmailVerified bool
	// VerificationToken is the single currently redeemable token, empty when
	// none is outstanding. Issuing a new token overwrites it.
	VerificationToken string
	// VerificationExpiresAt is the unix-second expiry of the outstanding
	// token; zero means no expiry was recorded.
	VerificationExpiresAt int64
	// ConsumedVerificationToken remembers the token that completed
	// verification so that replaying it reports "already verified" instead
	// of an error.
	ConsumedVerificationToken string

	// SecondFactorSecret is the base32 TOTP shared secret. Generated at most
	// once per enrollment; re-requesting enrollment before completion
	// returns the same secret.
	SecondFactorSecret string
	// SecondFactorEnabled and SecondFactorConfirmed are set together when
	// enrollment completes and never diverge afterwards. Confirmed
	// distinguishes "secret generated" from "secret proven".
	SecondFactorEnabled   bool
	SecondFactorConfirmed bool

	BackupCodes []BackupCode

	// Version supports optimistic concurrency: AccountStore.Update succeeds
	// only when it matches the stored value, then increments it.
	Version   uint32
	CreatedAt int64
}

// BackupCode is one consumable recovery credential. The batch issued at
// enrollment completion stores the canonical code itself; regenerated batches
// store only a salted SHA-256 hash, so Hashed tags which comparison applies.
type BackupCode struct {
	Code   string
	Hash   [32]byte
	Hashed bool
}

// AccountStore is the durable credential store contract. Implementations must
// enforce unique usernames and emails on Create and compare-and-swap on
// Version in Update, returning ErrVersionConflict when the record moved.
type AccountStore interface {
	Create(ctx context.Context, account Account) (Account, error)
	GetByID(ctx context.Context, id string) (Account, error)
	GetByUsername(ctx context.Context, username string) (Account, error)
	GetByEmail(ctx context.Context, email string) (Account, error)
	GetByVerificationToken(ctx context.Context, token string) (Account, error)
	GetByConsumedVerificationToken(ctx context.Context, token string) (Account, error)
	Update(ctx context.Context, account Account) (Account, error)
}

// Mailer delivers out-of-band messages. Implementations either succeed or
// return a delivery failure; the engine never swallows one.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// QREncoder renders a provisioning URI as an embeddable PNG image.
type QREncoder func(uri string, size int) ([]byte, error)

// LoginStep tells the caller what a non-failing login attempt requires next.
type LoginStep uint8

const (
	// StepAdmitted grants a session; tokens are attached to the result.
	StepAdmitted LoginStep = iota
	// StepEmailVerificationRequired halts the attempt until the account's
	// email is verified. The result carries the email for a resend prompt.
	StepEmailVerificationRequired
	// StepSecondFactorSetupRequired routes the caller into enrollment. The
	// result carries the account ID for the enrollment handshake.
	StepSecondFactorSetupRequired
	// StepSecondFactorRequired asks for a code; the same credentials may be
	// retried with one attached.
	StepSecondFactorRequired
)

// LoginRequest is the admission-controller input. SecondFactorCode may be a
// TOTP code or an unused backup code and may be empty on the first attempt.
type LoginRequest struct {
	Username         string
	Password         string
	SecondFactorCode string
}

// LoginResult is returned by [Engine.Login] for every non-failing outcome.
// Tokens and Account are set only when Step is StepAdmitted.
type LoginResult struct {
	Step LoginStep

	// Email is set for StepEmailVerificationRequired.
	Email string
	// AccountID is set for StepSecondFactorSetupRequired.
	AccountID string

	AccessToken  string
	RefreshToken string
	Account      *Account
}

// RegistrationRequest is the input to [Engine.Register].
type RegistrationRequest struct {
	Username        string
	Email           string
	Password        string
	PasswordConfirm string
	FirstName       string
	LastName        string
	Phone           string
	Role            string
}

// RegistrationResult is returned on successful registration. The account is
// created unverified; a verification mail has been sent to Email.
type RegistrationResult struct {
	AccountID string
	Email     string
}

// VerifyEmailResult reports the outcome of consuming a verification token.
// AlreadyVerified is the idempotent success signal for replayed tokens.
type VerifyEmailResult struct {
	Email           string
	AlreadyVerified bool
}

// EnrollmentSetup is returned by [Engine.BeginEnrollment]: the raw base32
// secret for manual entry plus the provisioning URI rendered as a QR PNG.
type EnrollmentSetup struct {
	AccountID       string
	Secret          string
	ProvisioningURI string
	QRCodePNG       []byte
}

// EnrollmentResult is returned by [Engine.ConfirmEnrollment]. The backup
// codes are returned in plaintext exactly once; they cannot be recovered
// afterwards, only verified.
type EnrollmentResult struct {
	BackupCodes  []string
	AccessToken  string
	RefreshToken string
	Account      *Account
}

// ProfileUpdate carries optional profile changes; nil fields are untouched.
type ProfileUpdate struct {
	FirstName *string
	LastName  *string
	Phone     *string
	Email     *string
}

// AuthResult identifies the session behind a validated access token.
type AuthResult struct {
	AccountID string
	SessionID string
	Role      string
}
