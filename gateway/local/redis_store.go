package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisAccountStore keeps one JSON record per account under
// <prefix>:acct:<email>. Records never expire.
type RedisAccountStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisAccountStore(redisClient redis.UniversalClient, prefix string) *RedisAccountStore {
	if prefix == "" {
		prefix = "credflow"
	}
	return &RedisAccountStore{
		redis:  redisClient,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *RedisAccountStore) key(email string) string {
	return s.prefix + ":acct:" + NormalizeEmail(email)
}

// Create stores account if its email is free. SETNX makes concurrent sign-ups
// for the same email resolve to exactly one winner.
func (s *RedisAccountStore) Create(ctx context.Context, account *Account) error {
	if account == nil || account.ID == "" || account.Email == "" {
		return errors.New("account id and email required")
	}

	now := s.now().UTC()
	stored := *account
	stored.Email = NormalizeEmail(account.Email)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	data, err := json.Marshal(&stored)
	if err != nil {
		return err
	}

	ok, err := s.redis.SetNX(ctx, s.key(stored.Email), data, 0).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return ErrAccountExists
	}

	*account = stored
	return nil
}

func (s *RedisAccountStore) GetByEmail(ctx context.Context, email string) (*Account, error) {
	data, err := s.redis.Get(ctx, s.key(email)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrAccountMissing
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var account Account
	if err := json.Unmarshal(data, &account); err != nil {
		return nil, fmt.Errorf("%w: corrupt account record: %v", ErrStoreUnavailable, err)
	}
	return &account, nil
}

// UpdatePasswordHash rewrites the hash under WATCH so a concurrent update is
// retried instead of lost.
func (s *RedisAccountStore) UpdatePasswordHash(ctx context.Context, email, hash string) error {
	const maxRetries = 4
	key := s.key(email)

	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			var account Account
			if err := json.Unmarshal(data, &account); err != nil {
				return err
			}
			account.PasswordHash = hash
			account.UpdatedAt = s.now().UTC()

			updated, err := json.Marshal(&account)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, 0)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, redis.Nil) {
			return ErrAccountMissing
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return nil
	}

	return fmt.Errorf("%w: update contention", ErrStoreUnavailable)
}
