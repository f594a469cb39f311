package tunzadent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lizztt/tunzadent/internal"
)

// Register creates an unverified account and sends the verification mail.
// Uniqueness failures are reported before any row is written. A mail
// delivery failure surfaces as ErrMailDelivery with the account left in
// place; ResendVerification covers recovery.
func (e *Engine) Register(ctx context.Context, req RegistrationRequest) (*RegistrationResult, error) {
	if e == nil || e.passwordHash == nil {
		return nil, ErrEngineNotReady
	}

	username := strings.TrimSpace(req.Username)
	// The address is stored with its submitted casing; uniqueness and
	// lookups are case-insensitive at the store layer.
	email := strings.TrimSpace(req.Email)
	if username == "" || email == "" {
		return nil, ErrValidation
	}
	if !strings.Contains(email, "@") {
		return nil, ErrValidation
	}
	if req.Password == "" {
		return nil, ErrValidation
	}
	if req.Password != req.PasswordConfirm {
		return nil, ErrPasswordMismatch
	}
	if len(req.Password) < e.config.Password.MinLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters long",
			ErrValidation, e.config.Password.MinLength)
	}

	if _, err := e.store.GetByUsername(ctx, username); err == nil {
		e.metricInc(MetricRegistrationDuplicate)
		e.emitAudit(ctx, auditEventRegistrationDuplicate, false, "", "", ErrUsernameTaken, func() map[string]string {
			return map[string]string{"identifier": username}
		})
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, ErrAccountNotFound) {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	if _, err := e.store.GetByEmail(ctx, email); err == nil {
		e.metricInc(MetricRegistrationDuplicate)
		e.emitAudit(ctx, auditEventRegistrationDuplicate, false, "", "", ErrEmailTaken, func() map[string]string {
			return map[string]string{"identifier": email}
		})
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrAccountNotFound) {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	passwordHash, err := e.passwordHash.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	token, err := internal.NewVerificationToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	account := Account{
		ID:                uuid.New().String(),
		Username:          username,
		Email:             email,
		FirstName:         strings.TrimSpace(req.FirstName),
		LastName:          strings.TrimSpace(req.LastName),
		Phone:             strings.TrimSpace(req.Phone),
		Role:              req.Role,
		PasswordHash:      passwordHash,
		VerificationToken: token,
		CreatedAt:         now.Unix(),
	}
	if ttl := e.config.Verification.TokenTTL; ttl > 0 {
		account.VerificationExpiresAt = now.Add(ttl).Unix()
	}

	created, err := e.store.Create(ctx, account)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) || errors.Is(err, ErrUsernameTaken) {
			e.metricInc(MetricRegistrationDuplicate)
			e.emitAudit(ctx, auditEventRegistrationDuplicate, false, "", "", err, nil)
			return nil, err
		}
		e.emitAudit(ctx, auditEventRegistrationFailure, false, "", "", err, nil)
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	if err := e.sendVerificationMail(ctx, created.Email, token); err != nil {
		e.logger.Error("verification mail delivery failed",
			zap.String("account_id", created.ID))
		e.emitAudit(ctx, auditEventRegistrationFailure, false, created.ID, "", ErrMailDelivery, nil)
		return nil, errors.Join(ErrMailDelivery, err)
	}

	e.metricInc(MetricRegistrationSuccess)
	e.emitAudit(ctx, auditEventRegistrationSuccess, true, created.ID, "", nil, func() map[string]string {
		return map[string]string{"identifier": created.Username}
	})

	return &RegistrationResult{
		AccountID: created.ID,
		Email:     created.Email,
	}, nil
}

// ResendVerification issues a fresh token for an unverified account and
// mails it. The previous token stops working. For a verified account it
// reports already=true and sends nothing.
func (e *Engine) ResendVerification(ctx context.Context, email string) (already bool, err error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return false, ErrValidation
	}

	account, err := e.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return false, ErrAccountNotFound
		}
		return false, errors.Join(ErrStoreUnavailable, err)
	}
	if account.EmailVerified {
		return true, nil
	}

	token, err := internal.NewVerificationToken()
	if err != nil {
		return false, err
	}

	updated, err := e.mutateAccount(ctx, account.ID, func(a *Account) error {
		if a.EmailVerified {
			return errNothingToDo
		}
		a.VerificationToken = token
		a.VerificationExpiresAt = 0
		if ttl := e.config.Verification.TokenTTL; ttl > 0 {
			a.VerificationExpiresAt = time.Now().Add(ttl).Unix()
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errNothingToDo) {
			return true, nil
		}
		return false, err
	}

	if err := e.sendVerificationMail(ctx, updated.Email, token); err != nil {
		return false, errors.Join(ErrMailDelivery, err)
	}

	e.metricInc(MetricVerificationResent)
	e.emitAudit(ctx, auditEventVerificationResent, true, updated.ID, "", nil, nil)
	return false, nil
}

// errNothingToDo aborts a mutateAccount round trip without writing.
var errNothingToDo = errors.New("nothing to do")

func (e *Engine) sendVerificationMail(ctx context.Context, to, token string) error {
	link := e.config.Verification.LinkBase + token
	body := fmt.Sprintf(
		"Welcome to Tunzadent.\n\nPlease confirm your email address by opening the link below:\n\n%s\n\nIf you did not create this account, ignore this message.\n",
		link,
	)
	return e.mailer.Send(ctx, to, e.config.Verification.MailSubject, body)
}
