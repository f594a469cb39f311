package tunzadent

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/lizztt/tunzadent/internal/limiters"
)

// Login runs the admission gates in a fixed order: credentials, email
// verification, second-factor setup, second-factor proof. The first gate
// that fails determines the outcome; later gates are never evaluated, so a
// caller cannot learn anything about an account past its first failing
// gate. Non-failing outcomes short of admission come back as a LoginResult
// with the corresponding Step.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if e == nil || e.passwordHash == nil {
		return nil, ErrEngineNotReady
	}

	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return nil, ErrValidation
	}

	if e.loginLimiter != nil {
		if err := e.loginLimiter.Check(ctx, username); err != nil {
			if errors.Is(err, limiters.ErrRateLimited) {
				e.metricInc(MetricLoginRateLimited)
				e.emitAudit(ctx, auditEventLoginRateLimited, false, "", "", ErrLoginRateLimited, func() map[string]string {
					return map[string]string{"identifier": username}
				})
				return nil, ErrLoginRateLimited
			}
			return nil, errors.Join(ErrStoreUnavailable, err)
		}
	}

	// Gate 1: credentials. Unknown username and wrong password are
	// indistinguishable to the caller.
	account, err := e.store.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, e.failLogin(ctx, username, "", "user_not_found")
		}
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	ok, err := e.passwordHash.Verify(req.Password, account.PasswordHash)
	if err != nil || !ok {
		return nil, e.failLogin(ctx, username, account.ID, "password_mismatch")
	}

	// Gate 2: email ownership.
	if !account.EmailVerified {
		e.metricInc(MetricLoginEmailUnverified)
		e.emitAudit(ctx, auditEventLoginEmailUnverified, false, account.ID, "", ErrEmailNotVerified, nil)
		return &LoginResult{
			Step:  StepEmailVerificationRequired,
			Email: account.Email,
		}, nil
	}

	// Gate 3: second-factor enrollment must be complete.
	if !account.SecondFactorEnabled || !account.SecondFactorConfirmed {
		e.metricInc(MetricLoginSetupRequired)
		e.emitAudit(ctx, auditEventLoginSetupRequired, false, account.ID, "", nil, nil)
		return &LoginResult{
			Step:      StepSecondFactorSetupRequired,
			AccountID: account.ID,
		}, nil
	}

	// Gate 4: a code must be present. Its absence is not an error; the
	// caller retries the same credentials with a code attached.
	code := strings.TrimSpace(req.SecondFactorCode)
	if code == "" {
		e.metricInc(MetricSecondFactorRequired)
		e.emitAudit(ctx, auditEventSecondFactorRequired, false, account.ID, "", nil, nil)
		return &LoginResult{Step: StepSecondFactorRequired}, nil
	}

	// Gate 5: the code must prove the second factor.
	if e.secondFactorLimiter != nil {
		if err := e.secondFactorLimiter.Check(ctx, account.ID); err != nil {
			if errors.Is(err, limiters.ErrRateLimited) {
				e.metricInc(MetricSecondFactorRateLimited)
				e.emitAudit(ctx, auditEventSecondFactorFailure, false, account.ID, "", ErrSecondFactorRateLimited, nil)
				return nil, ErrSecondFactorRateLimited
			}
			return nil, errors.Join(ErrStoreUnavailable, err)
		}
	}

	account, err = e.verifySecondFactor(ctx, account, code)
	if err != nil {
		if errors.Is(err, ErrInvalidSecondFactor) {
			if e.secondFactorLimiter != nil {
				_ = e.secondFactorLimiter.RecordFailure(ctx, account.ID)
			}
			e.metricInc(MetricSecondFactorFailure)
			e.emitAudit(ctx, auditEventSecondFactorFailure, false, account.ID, "", ErrInvalidSecondFactor, nil)
		}
		return nil, err
	}

	// Gate 6: admission.
	access, refresh, err := e.issueSession(ctx, &account)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, account.ID, "", err, func() map[string]string {
			return map[string]string{"reason": "session_issue_failed"}
		})
		return nil, err
	}

	if e.loginLimiter != nil {
		_ = e.loginLimiter.Reset(ctx, username)
	}
	if e.secondFactorLimiter != nil {
		_ = e.secondFactorLimiter.Reset(ctx, account.ID)
	}

	e.metricInc(MetricLoginSuccess)
	e.metricInc(MetricSecondFactorSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, account.ID, "", nil, func() map[string]string {
		return map[string]string{"identifier": username}
	})
	e.emitAudit(ctx, auditEventSecondFactorSuccess, true, account.ID, "", nil, nil)

	return &LoginResult{
		Step:         StepAdmitted,
		AccessToken:  access,
		RefreshToken: refresh,
		Account:      &account,
	}, nil
}

// verifySecondFactor checks code against the TOTP secret first and falls
// back to the backup-code batch. A backup-code match consumes the code.
func (e *Engine) verifySecondFactor(ctx context.Context, account Account, code string) (Account, error) {
	ok, err := e.totp.VerifyCode(account.SecondFactorSecret, code, time.Now())
	if err != nil {
		return account, err
	}
	if ok {
		return account, nil
	}

	updated, consumed, err := e.consumeBackupCode(ctx, account.ID, code)
	if err != nil {
		return account, err
	}
	if !consumed {
		e.metricInc(MetricBackupCodeFailed)
		e.emitAudit(ctx, auditEventBackupCodeFailed, false, account.ID, "", ErrInvalidSecondFactor, nil)
		return account, ErrInvalidSecondFactor
	}

	e.metricInc(MetricBackupCodeUsed)
	e.emitAudit(ctx, auditEventBackupCodeUsed, true, account.ID, "", nil, func() map[string]string {
		return map[string]string{"remaining": strconv.Itoa(len(updated.BackupCodes))}
	})
	return updated, nil
}

func (e *Engine) failLogin(ctx context.Context, username, accountID, reason string) error {
	if e.loginLimiter != nil {
		if err := e.loginLimiter.RecordFailure(ctx, username); errors.Is(err, limiters.ErrRateLimited) {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, auditEventLoginRateLimited, false, accountID, "", ErrLoginRateLimited, func() map[string]string {
				return map[string]string{"identifier": username}
			})
			return ErrLoginRateLimited
		}
	}
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, accountID, "", ErrInvalidCredentials, func() map[string]string {
		return map[string]string{
			"identifier": username,
			"reason":     reason,
		}
	})
	return ErrInvalidCredentials
}
