package tunzadent

import (
	"context"
	"encoding/base32"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

type sentMail struct {
	To      string
	Subject string
	Body    string
}

// recordingMailer captures outgoing mail; fail makes every Send error.
type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	fail error
}

func (m *recordingMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (m *recordingMailer) last(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatal("expected at least one mail to have been sent")
	}
	return m.sent[len(m.sent)-1]
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// fakeAccountStore is a map-backed AccountStore with the same uniqueness
// and version semantics the engine expects from the real implementations:
// case-insensitive unique usernames and emails, compare-and-swap on
// Version, deep copies across the boundary.
type fakeAccountStore struct {
	mu         sync.Mutex
	byID       map[string]Account
	byUsername map[string]string
	byEmail    map[string]string
}

var _ AccountStore = (*fakeAccountStore)(nil)

func newTestAccountStore() *fakeAccountStore {
	return &fakeAccountStore{
		byID:       make(map[string]Account),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
	}
}

func (s *fakeAccountStore) Create(_ context.Context, account Account) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(account.Username)
	email := strings.ToLower(account.Email)
	if _, ok := s.byUsername[username]; ok {
		return Account{}, ErrUsernameTaken
	}
	if _, ok := s.byEmail[email]; ok {
		return Account{}, ErrEmailTaken
	}

	account.Version = 1
	s.byID[account.ID] = copyAccount(account)
	s.byUsername[username] = account.ID
	s.byEmail[email] = account.ID
	return copyAccount(account), nil
}

func (s *fakeAccountStore) GetByID(_ context.Context, id string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return copyAccount(account), nil
}

func (s *fakeAccountStore) GetByUsername(_ context.Context, username string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byUsername[strings.ToLower(username)]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return copyAccount(s.byID[id]), nil
}

func (s *fakeAccountStore) GetByEmail(_ context.Context, email string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return copyAccount(s.byID[id]), nil
}

func (s *fakeAccountStore) GetByVerificationToken(_ context.Context, token string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, account := range s.byID {
		if account.VerificationToken != "" && account.VerificationToken == token {
			return copyAccount(account), nil
		}
	}
	return Account{}, ErrAccountNotFound
}

func (s *fakeAccountStore) GetByConsumedVerificationToken(_ context.Context, token string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, account := range s.byID {
		if account.ConsumedVerificationToken != "" && account.ConsumedVerificationToken == token {
			return copyAccount(account), nil
		}
	}
	return Account{}, ErrAccountNotFound
}

func (s *fakeAccountStore) Update(_ context.Context, account Account) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[account.ID]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	if current.Version != account.Version {
		return Account{}, ErrVersionConflict
	}

	oldEmail := strings.ToLower(current.Email)
	newEmail := strings.ToLower(account.Email)
	if oldEmail != newEmail {
		if owner, taken := s.byEmail[newEmail]; taken && owner != account.ID {
			return Account{}, ErrEmailTaken
		}
		delete(s.byEmail, oldEmail)
		s.byEmail[newEmail] = account.ID
	}

	account.Version++
	s.byID[account.ID] = copyAccount(account)
	return copyAccount(account), nil
}

func copyAccount(a Account) Account {
	out := a
	if a.BackupCodes != nil {
		out.BackupCodes = make([]BackupCode, len(a.BackupCodes))
		copy(out.BackupCodes, a.BackupCodes)
	}
	return out
}

func engineTestConfig() Config {
	cfg := defaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Security.MaxLoginAttempts = 5
	cfg.Security.LoginCooldown = time.Minute
	cfg.Security.MaxSecondFactorAttempts = 5
	cfg.Security.SecondFactorCooldown = time.Minute
	cfg.Metrics.Enabled = true
	return cfg
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, *fakeAccountStore, *recordingMailer) {
	t.Helper()

	_, rdb := newTestRedis(t)
	store := newTestAccountStore()
	mailer := &recordingMailer{}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(store).
		WithMailer(mailer).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, store, mailer
}

const (
	testUsername = "drmiriam"
	testEmail    = "miriam@example.com"
	testPassword = "Sunrise99!"
)

func registerTestAccount(t *testing.T, engine *Engine) *RegistrationResult {
	t.Helper()

	res, err := engine.Register(context.Background(), RegistrationRequest{
		Username:        testUsername,
		Email:           testEmail,
		Password:        testPassword,
		PasswordConfirm: testPassword,
		FirstName:       "Miriam",
		LastName:        "Okafor",
		Role:            "dentist",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return res
}

func verifyTestAccount(t *testing.T, engine *Engine, store *fakeAccountStore) {
	t.Helper()

	account, err := store.GetByEmail(context.Background(), testEmail)
	if err != nil {
		t.Fatalf("GetByEmail failed: %v", err)
	}
	if _, err := engine.VerifyEmail(context.Background(), account.VerificationToken); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}
}

// enrollTestAccount walks the enrollment handshake and returns the account ID,
// the TOTP secret, and the plaintext backup codes.
func enrollTestAccount(t *testing.T, engine *Engine, store *fakeAccountStore) (string, string, []string) {
	t.Helper()

	reg := registerTestAccount(t, engine)
	verifyTestAccount(t, engine, store)

	setup, err := engine.BeginEnrollment(context.Background(), reg.AccountID, testPassword)
	if err != nil {
		t.Fatalf("BeginEnrollment failed: %v", err)
	}

	result, err := engine.ConfirmEnrollment(context.Background(), reg.AccountID, testPassword,
		codeForOffset(t, setup.Secret, engine.config.TOTP, 0))
	if err != nil {
		t.Fatalf("ConfirmEnrollment failed: %v", err)
	}
	return reg.AccountID, setup.Secret, result.BackupCodes
}

func codeForOffset(t *testing.T, secret string, cfg TOTPConfig, offset int64) string {
	t.Helper()

	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(secret))
	if err != nil {
		t.Fatalf("decode secret failed: %v", err)
	}
	counter := time.Now().Unix()/int64(cfg.Period) + offset
	code, err := hotpCode(key, counter, cfg.Digits, cfg.Algorithm)
	if err != nil {
		t.Fatalf("hotpCode failed: %v", err)
	}
	return code
}
