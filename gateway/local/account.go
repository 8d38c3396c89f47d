package local

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrAccountExists is returned by AccountStore.Create for a taken email.
	ErrAccountExists = errors.New("account already exists")
	// ErrAccountMissing is returned when no account matches the email.
	ErrAccountMissing = errors.New("account not found")
	// ErrStoreUnavailable wraps backend failures of an AccountStore.
	ErrStoreUnavailable = errors.New("account store unavailable")
)

// Account is one stored identity. PasswordHash is empty for accounts created
// through social sign-in.
type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash,omitempty"`
	Provider     string    `json:"provider,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AccountStore persists accounts keyed by normalized email.
type AccountStore interface {
	Create(ctx context.Context, account *Account) error
	GetByEmail(ctx context.Context, email string) (*Account, error)
	UpdatePasswordHash(ctx context.Context, email, hash string) error
}

// NormalizeEmail is the account key form of an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
