// Package memory provides an in-process AccountStore used in tests and
// single-node development setups. It enforces the same uniqueness and
// version semantics as the Postgres store.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/lizztt/tunzadent"
)

// Store keeps accounts in maps guarded by one mutex. Accounts are deep
// copied on every boundary crossing so callers never share slices with the
// store.
type Store struct {
	mu sync.Mutex

	byID       map[string]tunzadent.Account
	byUsername map[string]string
	byEmail    map[string]string
}

func New() *Store {
	return &Store{
		byID:       make(map[string]tunzadent.Account),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
	}
}

func (s *Store) Create(ctx context.Context, account tunzadent.Account) (tunzadent.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(account.Username)
	email := strings.ToLower(account.Email)

	if _, ok := s.byUsername[username]; ok {
		return tunzadent.Account{}, tunzadent.ErrUsernameTaken
	}
	if _, ok := s.byEmail[email]; ok {
		return tunzadent.Account{}, tunzadent.ErrEmailTaken
	}

	account.Version = 1
	s.byID[account.ID] = clone(account)
	s.byUsername[username] = account.ID
	s.byEmail[email] = account.ID

	return clone(account), nil
}

func (s *Store) GetByID(ctx context.Context, id string) (tunzadent.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return tunzadent.Account{}, tunzadent.ErrAccountNotFound
	}
	return clone(account), nil
}

func (s *Store) GetByUsername(ctx context.Context, username string) (tunzadent.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byUsername[strings.ToLower(username)]
	if !ok {
		return tunzadent.Account{}, tunzadent.ErrAccountNotFound
	}
	return clone(s.byID[id]), nil
}

func (s *Store) GetByEmail(ctx context.Context, email string) (tunzadent.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return tunzadent.Account{}, tunzadent.ErrAccountNotFound
	}
	return clone(s.byID[id]), nil
}

func (s *Store) GetByVerificationToken(ctx context.Context, token string) (tunzadent.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, account := range s.byID {
		if account.VerificationToken != "" && account.VerificationToken == token {
			return clone(account), nil
		}
	}
	return tunzadent.Account{}, tunzadent.ErrAccountNotFound
}

func (s *Store) GetByConsumedVerificationToken(ctx context.Context, token string) (tunzadent.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, account := range s.byID {
		if account.ConsumedVerificationToken != "" && account.ConsumedVerificationToken == token {
			return clone(account), nil
		}
	}
	return tunzadent.Account{}, tunzadent.ErrAccountNotFound
}

func (s *Store) Update(ctx context.Context, account tunzadent.Account) (tunzadent.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[account.ID]
	if !ok {
		return tunzadent.Account{}, tunzadent.ErrAccountNotFound
	}
	if current.Version != account.Version {
		return tunzadent.Account{}, tunzadent.ErrVersionConflict
	}

	oldEmail := strings.ToLower(current.Email)
	newEmail := strings.ToLower(account.Email)
	if oldEmail != newEmail {
		if owner, taken := s.byEmail[newEmail]; taken && owner != account.ID {
			return tunzadent.Account{}, tunzadent.ErrEmailTaken
		}
		delete(s.byEmail, oldEmail)
		s.byEmail[newEmail] = account.ID
	}

	account.Version++
	s.byID[account.ID] = clone(account)

	return clone(account), nil
}

func clone(a tunzadent.Account) tunzadent.Account {
	out := a
	if a.BackupCodes != nil {
		out.BackupCodes = make([]tunzadent.BackupCode, len(a.BackupCodes))
		copy(out.BackupCodes, a.BackupCodes)
	}
	return out
}
