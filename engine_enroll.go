package tunzadent

import (
	"context"
	"errors"
	"strings"
	"time"
)

// BeginEnrollment starts second-factor setup for a password-authenticated
// account. It returns the shared secret, the provisioning URI, and the QR
// image. Calling it again before confirmation returns the same secret, so
// a user who scans the code on a second device keys the same setup; once
// setup completed it fails with ErrSetupAlreadyComplete.
func (e *Engine) BeginEnrollment(ctx context.Context, accountID, password string) (*EnrollmentSetup, error) {
	account, err := e.reauthenticate(ctx, accountID, password)
	if err != nil {
		return nil, err
	}

	if !account.EmailVerified {
		return nil, ErrEmailNotVerified
	}
	if account.SecondFactorEnabled && account.SecondFactorConfirmed {
		return nil, ErrSetupAlreadyComplete
	}

	secret := account.SecondFactorSecret
	if secret == "" {
		generated, err := e.totp.GenerateSecret()
		if err != nil {
			return nil, err
		}

		updated, err := e.mutateAccount(ctx, account.ID, func(a *Account) error {
			if a.SecondFactorEnabled && a.SecondFactorConfirmed {
				return ErrSetupAlreadyComplete
			}
			if a.SecondFactorSecret == "" {
				a.SecondFactorSecret = generated
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		// A concurrent call may have won the race; its secret stands.
		secret = updated.SecondFactorSecret
	}

	uri := e.totp.ProvisionURI(secret, account.Email)
	png, err := e.qrEncode(uri, 256)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricEnrollmentStarted)
	e.emitAudit(ctx, auditEventEnrollmentStarted, true, account.ID, "", nil, nil)

	return &EnrollmentSetup{
		AccountID:       account.ID,
		Secret:          secret,
		ProvisioningURI: uri,
		QRCodePNG:       png,
	}, nil
}

// ConfirmEnrollment proves possession of the enrolled secret and completes
// setup: both second-factor flags flip in one write together with the
// initial backup-code batch, and a full session is issued. The returned
// backup codes are shown exactly once.
func (e *Engine) ConfirmEnrollment(ctx context.Context, accountID, password, code string) (*EnrollmentResult, error) {
	account, err := e.reauthenticate(ctx, accountID, password)
	if err != nil {
		return nil, err
	}

	if !account.EmailVerified {
		return nil, ErrEmailNotVerified
	}
	if account.SecondFactorEnabled && account.SecondFactorConfirmed {
		return nil, ErrSetupAlreadyComplete
	}
	if account.SecondFactorSecret == "" {
		return nil, ErrEnrollmentNotStarted
	}

	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrInvalidSecondFactor
	}
	ok, err := e.totp.VerifyCode(account.SecondFactorSecret, code, time.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		e.metricInc(MetricSecondFactorFailure)
		e.emitAudit(ctx, auditEventSecondFactorFailure, false, account.ID, "", ErrInvalidSecondFactor, nil)
		return nil, ErrInvalidSecondFactor
	}

	codes, batch, err := e.newBackupCodeBatch(account.ID, false)
	if err != nil {
		return nil, err
	}

	updated, err := e.mutateAccount(ctx, account.ID, func(a *Account) error {
		if a.SecondFactorEnabled && a.SecondFactorConfirmed {
			return ErrSetupAlreadyComplete
		}
		a.SecondFactorEnabled = true
		a.SecondFactorConfirmed = true
		a.BackupCodes = batch
		return nil
	})
	if err != nil {
		return nil, err
	}

	access, refresh, err := e.issueSession(ctx, &updated)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricEnrollmentCompleted)
	e.emitAudit(ctx, auditEventEnrollmentCompleted, true, updated.ID, "", nil, nil)

	return &EnrollmentResult{
		BackupCodes:  codes,
		AccessToken:  access,
		RefreshToken: refresh,
		Account:      &updated,
	}, nil
}

// reauthenticate re-proves the password for an enrollment-stage request.
// These calls arrive before any session exists, so the password is the only
// thing binding the request to the account.
func (e *Engine) reauthenticate(ctx context.Context, accountID, password string) (Account, error) {
	if e == nil || e.passwordHash == nil {
		return Account{}, ErrEngineNotReady
	}
	if accountID == "" || password == "" {
		return Account{}, ErrInvalidCredentials
	}

	account, err := e.store.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return Account{}, ErrInvalidCredentials
		}
		return Account{}, errors.Join(ErrStoreUnavailable, err)
	}

	ok, err := e.passwordHash.Verify(password, account.PasswordHash)
	if err != nil || !ok {
		return Account{}, ErrInvalidCredentials
	}

	return account, nil
}
