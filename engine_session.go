package tunzadent

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lizztt/tunzadent/internal"
	"github.com/lizztt/tunzadent/session"
)

// issueSession creates a fresh session for the account and returns the
// signed access token plus the opaque refresh token.
func (e *Engine) issueSession(ctx context.Context, account *Account) (string, string, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return "", "", err
	}
	sessionID := sid.String()

	refreshSecret, err := internal.NewRefreshSecret()
	if err != nil {
		return "", "", err
	}

	now := time.Now()
	lifetime := e.config.Session.Lifetime

	sess := &session.Session{
		SessionID:   sessionID,
		AccountID:   account.ID,
		Role:        account.Role,
		RefreshHash: internal.HashRefreshSecret(refreshSecret),
		CreatedAt:   now.Unix(),
		ExpiresAt:   now.Add(lifetime).Unix(),
	}

	if err := e.sessions.Save(ctx, sess, lifetime); err != nil {
		return "", "", err
	}

	access, err := e.jwtManager.CreateAccess(account.ID, sessionID, account.Role)
	if err != nil {
		return "", "", err
	}

	refresh, err := internal.EncodeRefreshToken(sessionID, refreshSecret)
	if err != nil {
		return "", "", err
	}

	e.metricInc(MetricSessionCreated)
	return access, refresh, nil
}

// Refresh rotates a refresh token and returns a new access/refresh pair.
// Presenting an already-spent token destroys the session and returns
// ErrRefreshReuse.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (string, string, error) {
	sessionID, providedSecret, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", ErrRefreshInvalid, nil)
		return "", "", ErrRefreshInvalid
	}

	nextSecret, err := internal.NewRefreshSecret()
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return "", "", err
	}

	sess, err := e.sessions.RotateRefreshHash(
		ctx,
		sessionID,
		internal.HashRefreshSecret(providedSecret),
		internal.HashRefreshSecret(nextSecret),
	)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrRefreshHashMismatch):
			// Spent token replayed; the session is burned.
			_ = e.sessions.Delete(ctx, sessionID)
			e.metricInc(MetricRefreshReuseDetected)
			e.metricInc(MetricSessionInvalidated)
			e.emitAudit(ctx, auditEventRefreshReuseDetected, false, "", sessionID, ErrRefreshReuse, nil)
			return "", "", ErrRefreshReuse
		case errors.Is(err, redis.Nil):
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, "", sessionID, ErrSessionNotFound, nil)
			return "", "", ErrSessionNotFound
		default:
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, "", sessionID, err, nil)
			return "", "", err
		}
	}

	access, err := e.jwtManager.CreateAccess(sess.AccountID, sess.SessionID, sess.Role)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return "", "", err
	}

	refresh, err := internal.EncodeRefreshToken(sess.SessionID, nextSecret)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return "", "", err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, sess.AccountID, sess.SessionID, nil, nil)

	return access, refresh, nil
}

// ValidateAccess verifies an access token against both its signature and
// the live session behind it.
func (e *Engine) ValidateAccess(ctx context.Context, tokenStr string) (*AuthResult, error) {
	claims, err := e.jwtManager.ParseAccess(tokenStr)
	if err != nil {
		return nil, ErrUnauthorized
	}

	sess, err := e.sessions.Get(ctx, claims.SID)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, ErrUnauthorized
	}
	if sess.AccountID != claims.UID {
		return nil, ErrUnauthorized
	}

	return &AuthResult{
		AccountID: sess.AccountID,
		SessionID: sess.SessionID,
		Role:      sess.Role,
	}, nil
}

// Logout destroys a single session. Logging out a session that no longer
// exists succeeds.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	err := e.sessions.Delete(ctx, sessionID)
	if err == nil {
		e.metricInc(MetricLogout)
		e.metricInc(MetricSessionInvalidated)
	}
	e.emitAudit(ctx, auditEventLogoutSession, err == nil, "", sessionID, err, nil)
	return err
}

// LogoutAll destroys every session of an account. Used after password
// changes so stolen tokens die with the old password.
func (e *Engine) LogoutAll(ctx context.Context, accountID string) error {
	err := e.sessions.DeleteAllForAccount(ctx, accountID)
	if err == nil {
		e.metricInc(MetricLogoutAll)
		e.metricInc(MetricSessionInvalidated)
	}
	e.emitAudit(ctx, auditEventLogoutAll, err == nil, accountID, "", err, nil)
	return err
}
