package tunzadent

import (
	"context"
	"errors"

	"github.com/lizztt/tunzadent/password"
)

// ChangePassword rotates an account's password. The current password must
// verify first; the candidate is then checked against every complexity
// rule at once so the caller sees the full list of violations. On success
// all existing sessions are destroyed.
func (e *Engine) ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error {
	if e == nil || e.passwordHash == nil {
		return ErrEngineNotReady
	}
	if accountID == "" || oldPassword == "" || newPassword == "" {
		return ErrValidation
	}

	account, err := e.store.GetByID(ctx, accountID)
	if err != nil {
		return err
	}

	ok, err := e.passwordHash.Verify(oldPassword, account.PasswordHash)
	if err != nil || !ok {
		e.metricInc(MetricPasswordChangeInvalidOld)
		e.emitAudit(ctx, auditEventPasswordChangeInvalidOld, false, account.ID, "", ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	if err := password.ValidatePolicy(newPassword, e.config.Password.MinLength); err != nil {
		var policyErr *password.PolicyError
		if errors.As(err, &policyErr) {
			e.metricInc(MetricPasswordChangePolicyRejected)
			e.emitAudit(ctx, auditEventPasswordChangeRejected, false, account.ID, "", ErrPasswordPolicy, func() map[string]string {
				return map[string]string{"violations": policyErr.Error()}
			})
			return errors.Join(ErrPasswordPolicy, policyErr)
		}
		return err
	}

	newHash, err := e.passwordHash.Hash(newPassword)
	if err != nil {
		return err
	}

	if _, err := e.mutateAccount(ctx, account.ID, func(a *Account) error {
		a.PasswordHash = newHash
		return nil
	}); err != nil {
		return err
	}

	// All outstanding tokens die with the old password.
	if err := e.LogoutAll(ctx, account.ID); err != nil {
		return err
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, account.ID, "", nil, nil)
	return nil
}
