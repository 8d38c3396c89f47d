package social

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrStateInvalid is returned for unknown, expired, reused or
	// cross-provider state values.
	ErrStateInvalid = errors.New("oauth state invalid")
	// ErrStateUnavailable wraps Redis failures.
	ErrStateUnavailable = errors.New("oauth state store unavailable")
)

// StateStore keeps OAuth state values in Redis under <prefix>:oauth:<state>
// until they are consumed or expire.
type StateStore struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewStateStore(redisClient redis.UniversalClient, prefix string, ttl time.Duration) *StateStore {
	if prefix == "" {
		prefix = "credflow"
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &StateStore{redis: redisClient, prefix: prefix, ttl: ttl}
}

func (s *StateStore) key(state string) string {
	return s.prefix + ":oauth:" + state
}

// Issue records a fresh state bound to provider. payload comes back from
// Consume; the HTTP host uses it for the form ID.
func (s *StateStore) Issue(ctx context.Context, provider, payload string) (string, error) {
	state := uuid.NewString()
	if err := s.redis.Set(ctx, s.key(state), provider+"\n"+payload, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStateUnavailable, err)
	}
	return state, nil
}

// Consume deletes state, checks it was issued for provider and returns its
// payload. A state can be consumed once.
func (s *StateStore) Consume(ctx context.Context, state, provider string) (string, error) {
	if state == "" {
		return "", ErrStateInvalid
	}

	value, err := s.redis.GetDel(ctx, s.key(state)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrStateInvalid
		}
		return "", fmt.Errorf("%w: %v", ErrStateUnavailable, err)
	}

	issuedFor, payload, _ := strings.Cut(value, "\n")
	if issuedFor != provider {
		return "", ErrStateInvalid
	}
	return payload, nil
}
