package tunzadent

import (
	"errors"
	"time"
)

// Config holds every tunable of the engine. Zero values are filled from
// defaultConfig by [New]; a fully custom Config can be supplied through
// [Builder.WithConfig].
type Config struct {
	JWT          JWTConfig
	Session      SessionConfig
	TOTP         TOTPConfig
	Password     PasswordConfig
	Verification VerificationConfig
	Security     SecurityConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

// JWTConfig controls access-token issuance.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
}

// SessionConfig controls the Redis session store backing refresh tokens.
type SessionConfig struct {
	RedisPrefix string
	Lifetime    time.Duration
}

// TOTPConfig controls the time-based second factor and backup codes.
type TOTPConfig struct {
	// Issuer labels the otpauth:// provisioning URI in authenticator apps.
	Issuer    string
	Digits    int
	Period    int
	Algorithm string // "SHA1" (default), "SHA256", "SHA512"
	// Skew is the tolerated clock drift in time steps on either side of now.
	Skew int

	BackupCodeCount  int
	BackupCodeLength int
}

// PasswordConfig holds Argon2id parameters plus the registration-time
// minimum length. Complexity classes are enforced only on password change,
// by the password package.
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	MinLength int
}

// VerificationConfig controls email ownership verification.
type VerificationConfig struct {
	// TokenTTL bounds how long an issued token stays redeemable. Zero
	// disables the expiry check.
	TokenTTL time.Duration
	// LinkBase is prepended to the token to form the verification link.
	LinkBase string
	// MailSubject is the subject line of verification mails.
	MailSubject string
}

// SecurityConfig controls request throttling.
type SecurityConfig struct {
	EnableLoginThrottle bool
	MaxLoginAttempts    int
	LoginCooldown       time.Duration

	MaxSecondFactorAttempts int
	SecondFactorCooldown    time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the configuration a plain [New] starts from. Callers
// tweaking a handful of fields should start here rather than from a zero
// Config.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "ed25519",
			Issuer:        "tunzadent",
		},
		Session: SessionConfig{
			RedisPrefix: "tz",
			Lifetime:    7 * 24 * time.Hour,
		},
		TOTP: TOTPConfig{
			Issuer:           "Tunzadent Caries Detection",
			Digits:           6,
			Period:           30,
			Algorithm:        "SHA1",
			Skew:             2,
			BackupCodeCount:  10,
			BackupCodeLength: 8,
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
			MinLength:   8,
		},
		Verification: VerificationConfig{
			TokenTTL:    24 * time.Hour,
			LinkBase:    "http://localhost:3000/verify-email/",
			MailSubject: "Verify your Tunzadent account",
		},
		Security: SecurityConfig{
			EnableLoginThrottle:     true,
			MaxLoginAttempts:        5,
			LoginCooldown:           15 * time.Minute,
			MaxSecondFactorAttempts: 5,
			SecondFactorCooldown:    time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT.AccessTTL must be positive")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT.RefreshTTL must be positive")
	}
	switch c.JWT.SigningMethod {
	case "ed25519", "hs256":
	default:
		return errors.New("JWT.SigningMethod must be ed25519 or hs256")
	}
	if c.Session.Lifetime <= 0 {
		return errors.New("Session.Lifetime must be positive")
	}
	if c.TOTP.Digits < 6 || c.TOTP.Digits > 8 {
		return errors.New("TOTP.Digits must be between 6 and 8")
	}
	if c.TOTP.Period <= 0 {
		return errors.New("TOTP.Period must be positive")
	}
	if c.TOTP.Skew < 0 {
		return errors.New("TOTP.Skew must not be negative")
	}
	if c.TOTP.BackupCodeCount <= 0 || c.TOTP.BackupCodeLength < 6 {
		return errors.New("invalid backup code configuration")
	}
	if c.Password.MinLength < 8 {
		return errors.New("Password.MinLength must be at least 8")
	}
	if c.Verification.TokenTTL < 0 {
		return errors.New("Verification.TokenTTL must not be negative")
	}
	if c.Security.EnableLoginThrottle && c.Security.MaxLoginAttempts <= 0 {
		return errors.New("Security.MaxLoginAttempts must be positive when throttling is enabled")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
