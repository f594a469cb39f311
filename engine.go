package tunzadent

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/lizztt/tunzadent/internal/limiters"
	"github.com/lizztt/tunzadent/jwt"
	"github.com/lizztt/tunzadent/password"
	"github.com/lizztt/tunzadent/session"
)

const mutateMaxRetries = 4

// Engine is the account-security core: registration, email verification,
// second-factor enrollment, login admission, and session issuance. An Engine
// is built once through [Builder] and is safe for concurrent use.
type Engine struct {
	config Config
	logger *zap.Logger

	store  AccountStore
	mailer Mailer

	sessions            *session.Store
	loginLimiter        *limiters.Limiter
	secondFactorLimiter *limiters.Limiter

	totp         *totpManager
	passwordHash *password.Argon2
	jwtManager   *jwt.Manager

	audit   *auditDispatcher
	metrics *Metrics

	qrEncode QREncoder
}

// Close flushes the audit dispatcher. The engine must not be used after
// Close returns.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded under load.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() map[MetricID]uint64 {
	if e == nil || e.metrics == nil {
		return map[MetricID]uint64{}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// mutateAccount applies fn to a fresh copy of the account and writes it back,
// retrying on version conflicts. fn returning an error aborts without a
// write. This is the single mutation path for account state, which is what
// makes enrollment one-shot and backup-code consumption exactly-once under
// concurrency.
func (e *Engine) mutateAccount(ctx context.Context, accountID string, fn func(*Account) error) (Account, error) {
	var last error
	for i := 0; i < mutateMaxRetries; i++ {
		account, err := e.store.GetByID(ctx, accountID)
		if err != nil {
			return Account{}, err
		}

		if err := fn(&account); err != nil {
			return Account{}, err
		}

		updated, err := e.store.Update(ctx, account)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return Account{}, err
		}
		last = err
	}

	e.logger.Warn("account mutation contention exhausted retries",
		zap.String("account_id", accountID))
	return Account{}, last
}
