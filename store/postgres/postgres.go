// Package postgres provides the PostgreSQL-backed AccountStore.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lizztt/tunzadent"
)

// Schema is the DDL for the accounts table. Backup codes live in a jsonb
// column; they change only through the engine's compare-and-swap path, so
// a relational layout buys nothing.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
    id                          text PRIMARY KEY,
    username                    text NOT NULL,
    email                       text NOT NULL,
    first_name                  text NOT NULL DEFAULT '',
    last_name                   text NOT NULL DEFAULT '',
    phone                       text NOT NULL DEFAULT '',
    role                        text NOT NULL DEFAULT '',
    password_hash               text NOT NULL,
    email_verified              boolean NOT NULL DEFAULT false,
    verification_token         text NOT NULL DEFAULT '',
    verification_expires_at    bigint NOT NULL DEFAULT 0,
    consumed_verification_token text NOT NULL DEFAULT '',
    second_factor_secret        text NOT NULL DEFAULT '',
    second_factor_enabled       boolean NOT NULL DEFAULT false,
    second_factor_confirmed     boolean NOT NULL DEFAULT false,
    backup_codes                jsonb NOT NULL DEFAULT '[]',
    version                     bigint NOT NULL DEFAULT 1,
    created_at                  bigint NOT NULL DEFAULT 0
);
CREATE UNIQUE INDEX IF NOT EXISTS accounts_username_key ON accounts (lower(username));
CREATE UNIQUE INDEX IF NOT EXISTS accounts_email_key ON accounts (lower(email));
CREATE INDEX IF NOT EXISTS accounts_verification_token_idx ON accounts (verification_token)
    WHERE verification_token <> '';
`

var accountColumns = []string{
	"id",
	"username",
	"email",
	"first_name",
	"last_name",
	"phone",
	"role",
	"password_hash",
	"email_verified",
	"verification_token",
	"verification_expires_at",
	"consumed_verification_token",
	"second_factor_secret",
	"second_factor_enabled",
	"second_factor_confirmed",
	"backup_codes",
	"version",
	"created_at",
}

// backupCodeRow is the jsonb representation of one backup code.
type backupCodeRow struct {
	Code   string `json:"code,omitempty"`
	Hash   []byte `json:"hash,omitempty"`
	Hashed bool   `json:"hashed"`
}

// Store implements tunzadent.AccountStore on a pgx connection pool.
type Store struct {
	pool    *pgxpool.Pool
	builder squirrel.StatementBuilderType
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Migrate applies the schema.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}

func (s *Store) Create(ctx context.Context, account tunzadent.Account) (tunzadent.Account, error) {
	account.Version = 1

	codes, err := encodeBackupCodes(account.BackupCodes)
	if err != nil {
		return tunzadent.Account{}, err
	}

	stmt, args, err := s.builder.Insert("accounts").
		Columns(accountColumns...).
		Values(
			account.ID,
			account.Username,
			account.Email,
			account.FirstName,
			account.LastName,
			account.Phone,
			account.Role,
			account.PasswordHash,
			account.EmailVerified,
			account.VerificationToken,
			account.VerificationExpiresAt,
			account.ConsumedVerificationToken,
			account.SecondFactorSecret,
			account.SecondFactorEnabled,
			account.SecondFactorConfirmed,
			codes,
			account.Version,
			account.CreatedAt,
		).
		ToSql()
	if err != nil {
		return tunzadent.Account{}, fmt.Errorf("build insert account sql: %w", err)
	}

	if _, err := s.pool.Exec(ctx, stmt, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			if strings.Contains(pgErr.ConstraintName, "email") {
				return tunzadent.Account{}, tunzadent.ErrEmailTaken
			}
			return tunzadent.Account{}, tunzadent.ErrUsernameTaken
		}
		return tunzadent.Account{}, fmt.Errorf("insert account: %w", err)
	}

	return account, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (tunzadent.Account, error) {
	return s.getOne(ctx, squirrel.Eq{"id": id})
}

func (s *Store) GetByUsername(ctx context.Context, username string) (tunzadent.Account, error) {
	return s.getOne(ctx, squirrel.Expr("lower(username) = lower(?)", username))
}

func (s *Store) GetByEmail(ctx context.Context, email string) (tunzadent.Account, error) {
	return s.getOne(ctx, squirrel.Expr("lower(email) = lower(?)", email))
}

func (s *Store) GetByVerificationToken(ctx context.Context, token string) (tunzadent.Account, error) {
	if token == "" {
		return tunzadent.Account{}, tunzadent.ErrAccountNotFound
	}
	return s.getOne(ctx, squirrel.Eq{"verification_token": token})
}

func (s *Store) GetByConsumedVerificationToken(ctx context.Context, token string) (tunzadent.Account, error) {
	if token == "" {
		return tunzadent.Account{}, tunzadent.ErrAccountNotFound
	}
	return s.getOne(ctx, squirrel.Eq{"consumed_verification_token": token})
}

// Update writes the account back guarded by its version; a row that moved
// since the read yields ErrVersionConflict.
func (s *Store) Update(ctx context.Context, account tunzadent.Account) (tunzadent.Account, error) {
	codes, err := encodeBackupCodes(account.BackupCodes)
	if err != nil {
		return tunzadent.Account{}, err
	}

	next := account
	next.Version = account.Version + 1

	stmt, args, err := s.builder.Update("accounts").
		Set("username", next.Username).
		Set("email", next.Email).
		Set("first_name", next.FirstName).
		Set("last_name", next.LastName).
		Set("phone", next.Phone).
		Set("role", next.Role).
		Set("password_hash", next.PasswordHash).
		Set("email_verified", next.EmailVerified).
		Set("verification_token", next.VerificationToken).
		Set("verification_expires_at", next.VerificationExpiresAt).
		Set("consumed_verification_token", next.ConsumedVerificationToken).
		Set("second_factor_secret", next.SecondFactorSecret).
		Set("second_factor_enabled", next.SecondFactorEnabled).
		Set("second_factor_confirmed", next.SecondFactorConfirmed).
		Set("backup_codes", codes).
		Set("version", next.Version).
		Where(squirrel.Eq{"id": next.ID, "version": account.Version}).
		ToSql()
	if err != nil {
		return tunzadent.Account{}, fmt.Errorf("build update account sql: %w", err)
	}

	tag, err := s.pool.Exec(ctx, stmt, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			if strings.Contains(pgErr.ConstraintName, "email") {
				return tunzadent.Account{}, tunzadent.ErrEmailTaken
			}
			return tunzadent.Account{}, tunzadent.ErrUsernameTaken
		}
		return tunzadent.Account{}, fmt.Errorf("update account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the row is gone or the version moved.
		if _, err := s.GetByID(ctx, next.ID); err != nil {
			return tunzadent.Account{}, err
		}
		return tunzadent.Account{}, tunzadent.ErrVersionConflict
	}

	return next, nil
}

func (s *Store) getOne(ctx context.Context, where interface{}) (tunzadent.Account, error) {
	stmt, args, err := s.builder.
		Select(accountColumns...).
		From("accounts").
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return tunzadent.Account{}, fmt.Errorf("build select account sql: %w", err)
	}

	row := s.pool.QueryRow(ctx, stmt, args...)

	var (
		account tunzadent.Account
		codes   []byte
	)
	if err := row.Scan(
		&account.ID,
		&account.Username,
		&account.Email,
		&account.FirstName,
		&account.LastName,
		&account.Phone,
		&account.Role,
		&account.PasswordHash,
		&account.EmailVerified,
		&account.VerificationToken,
		&account.VerificationExpiresAt,
		&account.ConsumedVerificationToken,
		&account.SecondFactorSecret,
		&account.SecondFactorEnabled,
		&account.SecondFactorConfirmed,
		&codes,
		&account.Version,
		&account.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return tunzadent.Account{}, tunzadent.ErrAccountNotFound
		}
		return tunzadent.Account{}, fmt.Errorf("scan account: %w", err)
	}

	account.BackupCodes, err = decodeBackupCodes(codes)
	if err != nil {
		return tunzadent.Account{}, err
	}

	return account, nil
}

func encodeBackupCodes(codes []tunzadent.BackupCode) ([]byte, error) {
	rows := make([]backupCodeRow, 0, len(codes))
	for _, c := range codes {
		row := backupCodeRow{Code: c.Code, Hashed: c.Hashed}
		if c.Hashed {
			row.Hash = append([]byte(nil), c.Hash[:]...)
		}
		rows = append(rows, row)
	}
	return json.Marshal(rows)
}

func decodeBackupCodes(data []byte) ([]tunzadent.BackupCode, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var rows []backupCodeRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode backup codes: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	out := make([]tunzadent.BackupCode, 0, len(rows))
	for _, row := range rows {
		code := tunzadent.BackupCode{Code: row.Code, Hashed: row.Hashed}
		copy(code.Hash[:], row.Hash)
		out = append(out, code)
	}
	return out, nil
}
