package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds throttle tuning parameters. A zero max disables that throttle.
type Config struct {
	Prefix             string
	EnableIPThrottle   bool
	MaxSignInFailures  int
	SignInCooldown     time.Duration
	MaxResetRequests   int
	ResetRequestWindow time.Duration
}

// Limiter enforces per-email and per-IP budgets for failed sign-ins and
// password reset requests using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "credflow"
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckSignIn reports ErrRateLimited when the email (or IP) has used its
// failed sign-in budget for the current window. It does not count an attempt.
func (l *Limiter) CheckSignIn(ctx context.Context, email, ip string) error {
	if l == nil || l.config.MaxSignInFailures <= 0 {
		return nil
	}
	if err := l.checkCounter(ctx, l.signInKey(email), l.config.MaxSignInFailures); err != nil {
		return err
	}

	if l.config.EnableIPThrottle && ip != "" {
		if err := l.checkCounter(ctx, l.signInIPKey(ip), l.config.MaxSignInFailures); err != nil {
			return err
		}
	}

	return nil
}

// RecordSignInFailure counts one failed sign-in for the email+IP pair.
func (l *Limiter) RecordSignInFailure(ctx context.Context, email, ip string) error {
	if l == nil || l.config.MaxSignInFailures <= 0 {
		return nil
	}
	if _, err := l.incrementWithTTL(ctx, l.signInKey(email), l.config.SignInCooldown); err != nil {
		return err
	}

	if l.config.EnableIPThrottle && ip != "" {
		if _, err := l.incrementWithTTL(ctx, l.signInIPKey(ip), l.config.SignInCooldown); err != nil {
			return err
		}
	}

	return nil
}

// ResetSignIn clears the failure counters after a successful sign-in or a
// completed password reset.
func (l *Limiter) ResetSignIn(ctx context.Context, email, ip string) error {
	if l == nil || l.config.MaxSignInFailures <= 0 {
		return nil
	}
	keys := []string{l.signInKey(email)}
	if l.config.EnableIPThrottle && ip != "" {
		keys = append(keys, l.signInIPKey(ip))
	}

	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// AllowResetRequest counts one reset request for email and returns
// ErrRateLimited once the window budget is exceeded.
func (l *Limiter) AllowResetRequest(ctx context.Context, email string) error {
	if l == nil || l.config.MaxResetRequests <= 0 {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, l.resetKey(email), l.config.ResetRequestWindow)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxResetRequests) {
		return ErrRateLimited
	}

	return nil
}

// SignInFailures returns the current failure count for email. Missing keys
// return zero.
func (l *Limiter) SignInFailures(ctx context.Context, email string) (int, error) {
	count, err := l.redis.Get(ctx, l.signInKey(email)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(count), nil
}

func (l *Limiter) checkCounter(ctx context.Context, key string, limit int) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(limit) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 && ttl > 0 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

func (l *Limiter) signInKey(email string) string {
	return l.config.Prefix + ":rl:si:" + strings.ToLower(email)
}

func (l *Limiter) signInIPKey(ip string) string {
	return l.config.Prefix + ":rl:sip:" + ip
}

func (l *Limiter) resetKey(email string) string {
	return l.config.Prefix + ":rl:rr:" + strings.ToLower(email)
}
