package tunzadent

import (
	"errors"

	"github.com/redis/go-redis/v9"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/lizztt/tunzadent/internal/limiters"
	"github.com/lizztt/tunzadent/jwt"
	"github.com/lizztt/tunzadent/password"
	"github.com/lizztt/tunzadent/session"
)

// Builder assembles an [Engine]. A Builder is single-use; Build fails on a
// second call.
type Builder struct {
	config Config
	redis  *redis.Client

	store     AccountStore
	mailer    Mailer
	logger    *zap.Logger
	auditSink AuditSink
	qrEncode  QREncoder

	built bool
}

// New returns a Builder seeded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing sessions and rate limiters.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithAccountStore sets the durable credential store.
func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.store = store
	return b
}

// WithMailer sets the verification-mail transport.
func (b *Builder) WithMailer(mailer Mailer) *Builder {
	b.mailer = mailer
	return b
}

// WithLogger sets the structured logger. Defaults to a no-op logger.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets the destination of audit events and enables auditing.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = sink != nil
	return b
}

// WithQREncoder overrides the provisioning-URI QR renderer.
func (b *Builder) WithQREncoder(enc QREncoder) *Builder {
	b.qrEncode = enc
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration, wires every collaborator, and returns
// the ready engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.store == nil {
		return nil, errors.New("account store required")
	}
	if b.mailer == nil {
		return nil, errors.New("mailer required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	engine := &Engine{
		config:   cfg,
		logger:   logger,
		store:    b.store,
		mailer:   b.mailer,
		sessions: session.NewStore(b.redis, cfg.Session.RedisPrefix),
	}

	if cfg.Security.EnableLoginThrottle {
		engine.loginLimiter = limiters.New(
			b.redis,
			cfg.Session.RedisPrefix+":rl:login",
			cfg.Security.MaxLoginAttempts,
			cfg.Security.LoginCooldown,
		)
		engine.secondFactorLimiter = limiters.New(
			b.redis,
			cfg.Session.RedisPrefix+":rl:2fa",
			cfg.Security.MaxSecondFactorAttempts,
			cfg.Security.SecondFactorCooldown,
		)
	}

	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.totp = newTOTPManager(cfg.TOTP)

	engine.qrEncode = b.qrEncode
	if engine.qrEncode == nil {
		engine.qrEncode = func(uri string, size int) ([]byte, error) {
			return qrcode.Encode(uri, qrcode.Medium, size)
		}
	}

	ph, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	engine.passwordHash = ph

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	b.built = true

	return engine, nil
}
