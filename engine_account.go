package tunzadent

import (
	"context"
	"errors"
	"strings"
)

// GetAccount returns the account behind an ID.
func (e *Engine) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	account, err := e.store.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// UpdateProfile applies the non-nil fields of update. Changing the email
// re-checks uniqueness; ownership of the new address is not re-proven, the
// account keeps its verified standing.
func (e *Engine) UpdateProfile(ctx context.Context, accountID string, update ProfileUpdate) (*Account, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	var newEmail string
	if update.Email != nil {
		newEmail = strings.TrimSpace(*update.Email)
		if newEmail == "" || !strings.Contains(newEmail, "@") {
			return nil, ErrValidation
		}

		existing, err := e.store.GetByEmail(ctx, newEmail)
		if err == nil && existing.ID != accountID {
			return nil, ErrEmailTaken
		}
		if err != nil && !errors.Is(err, ErrAccountNotFound) {
			return nil, errors.Join(ErrStoreUnavailable, err)
		}
	}

	updated, err := e.mutateAccount(ctx, accountID, func(a *Account) error {
		if update.FirstName != nil {
			a.FirstName = strings.TrimSpace(*update.FirstName)
		}
		if update.LastName != nil {
			a.LastName = strings.TrimSpace(*update.LastName)
		}
		if update.Phone != nil {
			a.Phone = strings.TrimSpace(*update.Phone)
		}
		if update.Email != nil {
			a.Email = newEmail
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.emitAudit(ctx, auditEventProfileUpdated, true, updated.ID, "", nil, nil)
	return &updated, nil
}
