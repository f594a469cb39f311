package tunzadent

import (
	"context"
	"errors"
	"testing"

	"github.com/lizztt/tunzadent/password"
)

func TestChangePasswordRotatesHashAndKillsSessions(t *testing.T) {
	engine, store, _ := newTestEngine(t, engineTestConfig())
	accountID, secret, _ := enrollTestAccount(t, engine, store)

	res, err := engine.Login(context.Background(), LoginRequest{
		Username:         testUsername,
		Password:         testPassword,
		SecondFactorCode: codeForOffset(t, secret, engine.config.TOTP, 0),
	})
	if err != nil || res.Step != StepAdmitted {
		t.Fatalf("login failed: step=%v err=%v", res, err)
	}

	const newPassword = "Rotated77#"
	if err := engine.ChangePassword(context.Background(), accountID, testPassword, newPassword); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}

	if _, err := engine.ValidateAccess(context.Background(), res.AccessToken); err == nil {
		t.Fatal("expected existing sessions to die with the old password")
	}
	if _, _, err := engine.Refresh(context.Background(), res.RefreshToken); err == nil {
		t.Fatal("expected existing refresh tokens to die with the old password")
	}

	account, err := store.GetByID(context.Background(), accountID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	ok, err := engine.passwordHash.Verify(newPassword, account.PasswordHash)
	if err != nil || !ok {
		t.Fatalf("expected new password to verify, ok=%v err=%v", ok, err)
	}
}

func TestChangePasswordRejectsWrongOldPassword(t *testing.T) {
	engine, store, _ := newTestEngine(t, engineTestConfig())
	reg := registerTestAccount(t, engine)
	verifyTestAccount(t, engine, store)

	err := engine.ChangePassword(context.Background(), reg.AccountID, "WrongPass1!", "Rotated77#")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestChangePasswordEnforcesComplexity(t *testing.T) {
	engine, _, _ := newTestEngine(t, engineTestConfig())
	reg := registerTestAccount(t, engine)

	cases := []struct {
		name      string
		candidate string
	}{
		{"too short", "Ab1!"},
		{"no uppercase", "alllowercase1!"},
		{"no lowercase", "ALLUPPER1!"},
		{"no digit", "NoDigitsHere!"},
		{"no symbol", "NoSymbols123"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := engine.ChangePassword(context.Background(), reg.AccountID, testPassword, tc.candidate)
			if !errors.Is(err, ErrPasswordPolicy) {
				t.Fatalf("expected ErrPasswordPolicy, got %v", err)
			}
			var policyErr *password.PolicyError
			if !errors.As(err, &policyErr) || len(policyErr.Violations) == 0 {
				t.Fatalf("expected violations attached to the error, got %v", err)
			}
		})
	}
}

func TestChangePasswordReportsAllViolationsAtOnce(t *testing.T) {
	engine, _, _ := newTestEngine(t, engineTestConfig())
	reg := registerTestAccount(t, engine)

	err := engine.ChangePassword(context.Background(), reg.AccountID, testPassword, "abc")
	var policyErr *password.PolicyError
	if !errors.As(err, &policyErr) {
		t.Fatalf("expected a policy error, got %v", err)
	}
	// "abc" violates length, uppercase, digit, and symbol in one pass.
	if len(policyErr.Violations) != 4 {
		t.Fatalf("expected 4 violations, got %d: %v", len(policyErr.Violations), policyErr)
	}
}
