package tunzadent

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestVerifyEmailMarksAccountVerified(t *testing.T) {
	engine, store, _ := newTestEngine(t, engineTestConfig())
	registerTestAccount(t, engine)

	account, err := store.GetByEmail(context.Background(), testEmail)
	if err != nil {
		t.Fatalf("GetByEmail failed: %v", err)
	}

	res, err := engine.VerifyEmail(context.Background(), account.VerificationToken)
	if err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}
	if res.AlreadyVerified {
		t.Fatal("first redemption must not report already verified")
	}
	if res.Email != testEmail {
		t.Fatalf("expected email %s, got %s", testEmail, res.Email)
	}

	after, err := store.GetByEmail(context.Background(), testEmail)
	if err != nil {
		t.Fatalf("GetByEmail failed: %v", err)
	}
	if !after.EmailVerified {
		t.Fatal("expected account to be verified")
	}
	if after.VerificationToken != "" {
		t.Fatal("expected redeemed token to be cleared")
	}
}

func TestVerifyEmailReplayReportsAlreadyVerified(t *testing.T) {
	engine, store, _ := newTestEngine(t, engineTestConfig())
	registerTestAccount(t, engine)

	account, err := store.GetByEmail(context.Background(), testEmail)
	if err != nil {
		t.Fatalf("GetByEmail failed: %v", err)
	}
	token := account.VerificationToken

	if _, err := engine.VerifyEmail(context.Background(), token); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}

	// Double-clicked mail link.
	res, err := engine.VerifyEmail(context.Background(), token)
	if err != nil {
		t.Fatalf("replayed VerifyEmail failed: %v", err)
	}
	if !res.AlreadyVerified {
		t.Fatal("expected replay to report already verified")
	}
}

func TestVerifyEmailRejectsUnknownToken(t *testing.T) {
	engine, _, _ := newTestEngine(t, engineTestConfig())
	registerTestAccount(t, engine)

	if _, err := engine.VerifyEmail(context.Background(), "no-such-token"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
	if _, err := engine.VerifyEmail(context.Background(), ""); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for empty token, got %v", err)
	}
}

func TestVerifyEmailRejectsExpiredToken(t *testing.T) {
	cfg := engineTestConfig()
	cfg.Verification.TokenTTL = time.Hour
	engine, store, _ := newTestEngine(t, cfg)
	reg := registerTestAccount(t, engine)

	account, err := store.GetByID(context.Background(), reg.AccountID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	account.VerificationExpiresAt = time.Now().Add(-time.Minute).Unix()
	if _, err := store.Update(context.Background(), account); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if _, err := engine.VerifyEmail(context.Background(), account.VerificationToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for expired token, got %v", err)
	}

	after, err := store.GetByID(context.Background(), reg.AccountID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if after.EmailVerified {
		t.Fatal("expected account to stay unverified after expired redemption")
	}
}
