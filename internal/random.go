package internal

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"math/big"
	"time"

	"github.com/google/uuid"
)

const (
	resetIDSize       = 16
	resetSecretSize   = 32
	resetTokenRawSize = resetIDSize + resetSecretSize
)

// ResetSecret is the random half of a password reset token.
type ResetSecret [resetSecretSize]byte

// NewResetChallenge draws a fresh reset ID and secret and returns the token
// to mail out together with the hash to store.
func NewResetChallenge() (resetID string, token string, secretHash [32]byte, err error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", "", secretHash, err
	}

	var secret ResetSecret
	if _, err := rand.Read(secret[:]); err != nil {
		return "", "", secretHash, err
	}

	token, err = EncodeResetToken(id.String(), secret)
	if err != nil {
		return "", "", secretHash, err
	}

	return id.String(), token, HashResetSecret(secret), nil
}

func HashResetSecret(secret ResetSecret) [32]byte {
	return sha256.Sum256(secret[:])
}

// EncodeResetToken packs the uuid reset ID and secret as base64url.
func EncodeResetToken(resetID string, secret ResetSecret) (string, error) {
	id, err := uuid.Parse(resetID)
	if err != nil {
		return "", err
	}

	var raw [resetTokenRawSize]byte
	copy(raw[:resetIDSize], id[:])
	copy(raw[resetIDSize:], secret[:])

	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

func DecodeResetToken(token string) (string, ResetSecret, error) {
	var secret ResetSecret

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", secret, err
	}
	if len(raw) != resetTokenRawSize {
		return "", secret, errors.New("invalid reset token size")
	}

	id, err := uuid.FromBytes(raw[:resetIDSize])
	if err != nil {
		return "", secret, err
	}
	copy(secret[:], raw[resetIDSize:])

	return id.String(), secret, nil
}

// SleepJitter blocks for a random duration in [min, max] or until ctx is
// done. Used to flatten timing differences between known and unknown emails.
func SleepJitter(ctx context.Context, min, max time.Duration) error {
	if max <= min {
		max = min
	}
	span := int64(max-min) + 1

	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return err
	}

	timer := time.NewTimer(min + time.Duration(n.Int64()))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
