package tunzadent

import (
	"context"
	"errors"
	"strings"
	"time"
)

// VerifyEmail redeems a verification token. The first redemption marks the
// account verified and retires the token; redeeming the same token again
// reports AlreadyVerified rather than failing, so double-clicked mail links
// stay harmless. Unknown and expired tokens both come back as
// ErrTokenInvalid.
func (e *Engine) VerifyEmail(ctx context.Context, token string) (*VerifyEmailResult, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenInvalid
	}

	account, err := e.store.GetByVerificationToken(ctx, token)
	if err != nil {
		if !errors.Is(err, ErrAccountNotFound) {
			return nil, errors.Join(ErrStoreUnavailable, err)
		}
		// The active slot missed; a token that already completed
		// verification is a replay, not an attack.
		return e.verifyReplay(ctx, token)
	}

	if exp := account.VerificationExpiresAt; exp > 0 && time.Now().Unix() > exp {
		e.metricInc(MetricVerificationFailure)
		e.emitAudit(ctx, auditEventVerificationFailure, false, account.ID, "", ErrTokenInvalid, func() map[string]string {
			return map[string]string{"reason": "token_expired"}
		})
		return nil, ErrTokenInvalid
	}

	updated, err := e.mutateAccount(ctx, account.ID, func(a *Account) error {
		if a.EmailVerified {
			return errNothingToDo
		}
		if a.VerificationToken != token {
			// Token was rotated by a concurrent resend.
			return ErrTokenInvalid
		}
		a.EmailVerified = true
		a.VerificationToken = ""
		a.VerificationExpiresAt = 0
		a.ConsumedVerificationToken = token
		return nil
	})
	if err != nil {
		if errors.Is(err, errNothingToDo) {
			return &VerifyEmailResult{Email: account.Email, AlreadyVerified: true}, nil
		}
		if errors.Is(err, ErrTokenInvalid) {
			e.metricInc(MetricVerificationFailure)
			e.emitAudit(ctx, auditEventVerificationFailure, false, account.ID, "", ErrTokenInvalid, nil)
			return nil, ErrTokenInvalid
		}
		return nil, err
	}

	e.metricInc(MetricVerificationSuccess)
	e.emitAudit(ctx, auditEventVerificationConfirm, true, updated.ID, "", nil, nil)

	return &VerifyEmailResult{Email: updated.Email}, nil
}

func (e *Engine) verifyReplay(ctx context.Context, token string) (*VerifyEmailResult, error) {
	account, err := e.store.GetByConsumedVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.metricInc(MetricVerificationFailure)
			e.emitAudit(ctx, auditEventVerificationFailure, false, "", "", ErrTokenInvalid, nil)
			return nil, ErrTokenInvalid
		}
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	return &VerifyEmailResult{Email: account.Email, AlreadyVerified: true}, nil
}
