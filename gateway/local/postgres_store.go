package local

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// AccountsSchema creates the table PostgresAccountStore reads and writes.
const AccountsSchema = `
CREATE TABLE IF NOT EXISTS credflow_accounts (
	id            UUID PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL DEFAULT '',
	provider      TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
)`

// PostgresAccountStore stores accounts in the credflow_accounts table. The db
// handle is expected to use the "postgres" driver from lib/pq.
type PostgresAccountStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresAccountStore(db *sql.DB) *PostgresAccountStore {
	return &PostgresAccountStore{db: db, now: time.Now}
}

// EnsureSchema applies AccountsSchema.
func (s *PostgresAccountStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, AccountsSchema); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PostgresAccountStore) Create(ctx context.Context, account *Account) error {
	if account == nil || account.ID == "" || account.Email == "" {
		return errors.New("account id and email required")
	}
	id, err := uuid.Parse(account.ID)
	if err != nil {
		return fmt.Errorf("account id: %w", err)
	}

	now := s.now().UTC()
	query := `
		INSERT INTO credflow_accounts (id, email, password_hash, provider, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
	`
	email := NormalizeEmail(account.Email)
	_, err = s.db.ExecContext(ctx, query, id, email, account.PasswordHash, account.Provider, now)
	if err != nil {
		return mapPostgresError(err)
	}

	account.Email = email
	account.CreatedAt = now
	account.UpdatedAt = now
	return nil
}

func (s *PostgresAccountStore) GetByEmail(ctx context.Context, email string) (*Account, error) {
	account := &Account{}
	query := `
		SELECT id, email, password_hash, provider, created_at, updated_at
		FROM credflow_accounts
		WHERE email = $1
	`
	err := s.db.QueryRowContext(ctx, query, NormalizeEmail(email)).Scan(
		&account.ID,
		&account.Email,
		&account.PasswordHash,
		&account.Provider,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	return account, nil
}

func (s *PostgresAccountStore) UpdatePasswordHash(ctx context.Context, email, hash string) error {
	query := `
		UPDATE credflow_accounts
		SET password_hash = $2, updated_at = $3
		WHERE email = $1
	`
	res, err := s.db.ExecContext(ctx, query, NormalizeEmail(email), hash, s.now().UTC())
	if err != nil {
		return mapPostgresError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if n == 0 {
		return ErrAccountMissing
	}
	return nil
}

func mapPostgresError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrAccountMissing
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrAccountExists
	}

	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
