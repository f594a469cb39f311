package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"
)

func hs256Manager(t *testing.T, ttl time.Duration) *Manager {
	t.Helper()

	m, err := NewManager(Config{
		AccessTTL:     ttl,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "tunzadent",
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func TestCreateAndParseAccessHS256(t *testing.T) {
	m := hs256Manager(t, time.Minute)

	token, err := m.CreateAccess("acc-1", "sid-1", "dentist")
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}

	claims, err := m.ParseAccess(token)
	if err != nil {
		t.Fatalf("ParseAccess failed: %v", err)
	}
	if claims.UID != "acc-1" || claims.SID != "sid-1" || claims.Role != "dentist" {
		t.Fatalf("claims mismatch: %+v", claims)
	}
	if claims.Issuer != "tunzadent" {
		t.Fatalf("expected issuer tunzadent, got %s", claims.Issuer)
	}
}

func TestCreateAndParseAccessEd25519(t *testing.T) {
	pub, prv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    prv,
		PublicKey:     pub,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	token, err := m.CreateAccess("acc-1", "sid-1", "")
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}
	claims, err := m.ParseAccess(token)
	if err != nil {
		t.Fatalf("ParseAccess failed: %v", err)
	}
	if claims.UID != "acc-1" {
		t.Fatalf("claims mismatch: %+v", claims)
	}
}

func TestParseAccessRejectsExpiredToken(t *testing.T) {
	m := hs256Manager(t, time.Millisecond)

	token, err := m.CreateAccess("acc-1", "sid-1", "")
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected an expired token to be rejected")
	}
}

func TestParseAccessRejectsForeignSignature(t *testing.T) {
	m := hs256Manager(t, time.Minute)

	other, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("another-secret-another-secret-32"),
		Issuer:        "tunzadent",
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	token, err := other.CreateAccess("acc-1", "sid-1", "")
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}
	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected a foreign signature to be rejected")
	}
}

func TestParseAccessRejectsCrossAlgorithmTokens(t *testing.T) {
	pub, prv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	ed, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    prv,
		PublicKey:     pub,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	hs := hs256Manager(t, time.Minute)

	token, err := hs.CreateAccess("acc-1", "sid-1", "")
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}
	if _, err := ed.ParseAccess(token); err == nil {
		t.Fatal("expected an hs256 token to fail ed25519 verification")
	}
}

func TestNewManagerValidatesConfig(t *testing.T) {
	cases := []Config{
		{AccessTTL: 0, SigningMethod: MethodHS256, PrivateKey: []byte("0123456789abcdef0123456789abcdef")},
		{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("short")},
		{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PrivateKey: []byte("junk"), PublicKey: []byte("junk")},
		{AccessTTL: time.Minute, SigningMethod: "rs256"},
		{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("0123456789abcdef0123456789abcdef"), Leeway: 5 * time.Minute},
	}
	for i, cfg := range cases {
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("case %d: expected config to be rejected", i)
		}
	}
}
