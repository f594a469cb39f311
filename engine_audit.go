package tunzadent

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess             = "login_success"
	auditEventLoginFailure             = "login_failure"
	auditEventLoginRateLimited         = "login_rate_limited"
	auditEventLoginEmailUnverified     = "login_email_unverified"
	auditEventLoginSetupRequired       = "login_2fa_setup_required"
	auditEventSecondFactorRequired     = "second_factor_required"
	auditEventSecondFactorSuccess      = "second_factor_success"
	auditEventSecondFactorFailure      = "second_factor_failure"
	auditEventBackupCodeUsed           = "backup_code_used"
	auditEventBackupCodeFailed         = "backup_code_failed"
	auditEventBackupCodesRegenerated   = "backup_codes_regenerated"
	auditEventRegistrationSuccess      = "registration_success"
	auditEventRegistrationDuplicate    = "registration_duplicate"
	auditEventRegistrationFailure      = "registration_failure"
	auditEventVerificationConfirm      = "email_verification_confirm"
	auditEventVerificationFailure      = "email_verification_failure"
	auditEventVerificationResent       = "email_verification_resent"
	auditEventEnrollmentStarted        = "enrollment_started"
	auditEventEnrollmentCompleted      = "enrollment_completed"
	auditEventPasswordChangeSuccess    = "password_change_success"
	auditEventPasswordChangeInvalidOld = "password_change_invalid_old"
	auditEventPasswordChangeRejected   = "password_change_policy_rejected"
	auditEventRefreshSuccess           = "refresh_success"
	auditEventRefreshInvalid           = "refresh_invalid"
	auditEventRefreshReuseDetected     = "refresh_reuse_detected"
	auditEventLogoutSession            = "logout_session"
	auditEventLogoutAll                = "logout_all"
	auditEventProfileUpdated           = "profile_updated"
)

// AuditErrorCode is the stable machine-readable error tag carried in
// audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials  AuditErrorCode = "invalid_credentials"
	auditErrInvalidSecondFactor AuditErrorCode = "invalid_second_factor"
	auditErrRateLimited         AuditErrorCode = "rate_limited"
	auditErrEmailUnverified     AuditErrorCode = "email_unverified"
	auditErrSetupIncomplete     AuditErrorCode = "2fa_setup_incomplete"
	auditErrTokenInvalid        AuditErrorCode = "invalid_token"
	auditErrDuplicate           AuditErrorCode = "duplicate"
	auditErrPasswordPolicy      AuditErrorCode = "password_policy"
	auditErrRefreshReuse        AuditErrorCode = "refresh_reuse"
	auditErrSessionNotFound     AuditErrorCode = "session_not_found"
	auditErrAccountNotFound     AuditErrorCode = "account_not_found"
	auditErrMailDelivery        AuditErrorCode = "mail_delivery"
	auditErrUnavailable         AuditErrorCode = "backend_unavailable"
	auditErrInternal            AuditErrorCode = "internal_error"
)

func auditErrorCode(err error) AuditErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrInvalidSecondFactor):
		return auditErrInvalidSecondFactor
	case errors.Is(err, ErrLoginRateLimited), errors.Is(err, ErrSecondFactorRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrEmailNotVerified):
		return auditErrEmailUnverified
	case errors.Is(err, ErrSecondFactorNotEnabled), errors.Is(err, ErrEnrollmentNotStarted):
		return auditErrSetupIncomplete
	case errors.Is(err, ErrTokenInvalid):
		return auditErrTokenInvalid
	case errors.Is(err, ErrEmailTaken), errors.Is(err, ErrUsernameTaken):
		return auditErrDuplicate
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrRefreshReuse):
		return auditErrRefreshReuse
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrAccountNotFound):
		return auditErrAccountNotFound
	case errors.Is(err, ErrMailDelivery):
		return auditErrMailDelivery
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		AccountID: accountID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}
