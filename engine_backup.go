package tunzadent

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/lizztt/tunzadent/internal"
)

// backupCodeAlphabet deliberately omits lowercase; codes are compared
// case-insensitively after canonicalization.
const backupCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RegenerateBackupCodes replaces the whole batch with freshly generated
// codes and returns them in plaintext exactly once. Unlike the enrollment
// batch, regenerated codes are persisted only as salted hashes. Requires an
// active second factor.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, accountID string) ([]string, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	account, err := e.store.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !account.SecondFactorEnabled || !account.SecondFactorConfirmed {
		return nil, ErrSecondFactorNotEnabled
	}

	codes, batch, err := e.newBackupCodeBatch(account.ID, true)
	if err != nil {
		return nil, err
	}

	_, err = e.mutateAccount(ctx, account.ID, func(a *Account) error {
		if !a.SecondFactorEnabled || !a.SecondFactorConfirmed {
			return ErrSecondFactorNotEnabled
		}
		a.BackupCodes = batch
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricBackupCodesRegenerated)
	e.emitAudit(ctx, auditEventBackupCodesRegenerated, true, account.ID, "", nil, nil)

	return codes, nil
}

// newBackupCodeBatch draws a full batch of codes. hashed selects whether
// the stored records carry the code itself or only its salted hash.
func (e *Engine) newBackupCodeBatch(accountID string, hashed bool) ([]string, []BackupCode, error) {
	count := e.config.TOTP.BackupCodeCount
	length := e.config.TOTP.BackupCodeLength

	codes := make([]string, 0, count)
	batch := make([]BackupCode, 0, count)
	for i := 0; i < count; i++ {
		code, err := newBackupCode(length)
		if err != nil {
			return nil, nil, err
		}
		codes = append(codes, code)

		record := BackupCode{Hashed: hashed}
		if hashed {
			record.Hash = backupCodeHash(accountID, code)
		} else {
			record.Code = code
		}
		batch = append(batch, record)
	}

	return codes, batch, nil
}

// consumeBackupCode removes the matching code from the account's batch in
// one compare-and-swap write. Exactly one concurrent caller can consume a
// given code; the loser finds it gone and reports no match.
func (e *Engine) consumeBackupCode(ctx context.Context, accountID, code string) (Account, bool, error) {
	canonical := canonicalizeBackupCode(code)
	if canonical == "" {
		return Account{}, false, nil
	}

	consumed := false
	updated, err := e.mutateAccount(ctx, accountID, func(a *Account) error {
		consumed = false
		for i, record := range a.BackupCodes {
			if !matchBackupCode(a.ID, record, canonical) {
				continue
			}
			a.BackupCodes = append(a.BackupCodes[:i], a.BackupCodes[i+1:]...)
			consumed = true
			return nil
		}
		return errNothingToDo
	})
	if err != nil {
		if errors.Is(err, errNothingToDo) {
			return Account{}, false, nil
		}
		return Account{}, false, err
	}

	return updated, consumed, nil
}

func matchBackupCode(accountID string, record BackupCode, canonical string) bool {
	if record.Hashed {
		want := backupCodeHash(accountID, canonical)
		return subtle.ConstantTimeCompare(record.Hash[:], want[:]) == 1
	}
	return subtle.ConstantTimeCompare(
		[]byte(canonicalizeBackupCode(record.Code)),
		[]byte(canonical),
	) == 1
}

func newBackupCode(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := internal.RandomIndex(len(backupCodeAlphabet))
		if err != nil {
			return "", err
		}
		b.WriteByte(backupCodeAlphabet[n])
	}
	return b.String(), nil
}

func canonicalizeBackupCode(code string) string {
	s := strings.ToUpper(strings.TrimSpace(code))
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}

// backupCodeHash salts the code with the account ID so equal codes on
// different accounts never share a digest.
func backupCodeHash(accountID, canonicalCode string) [32]byte {
	data := make([]byte, 0, len(accountID)+1+len(canonicalCode))
	data = append(data, accountID...)
	data = append(data, 0)
	data = append(data, canonicalCode...)
	return sha256.Sum256(data)
}
