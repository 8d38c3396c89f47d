package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestSignInThrottle(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := New(rdb, Config{
		MaxSignInFailures: 3,
		SignInCooldown:    time.Minute,
		EnableIPThrottle:  true,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.CheckSignIn(ctx, "a@b.com", "10.0.0.1"); err != nil {
			t.Fatalf("attempt %d: unexpected %v", i, err)
		}
		if err := l.RecordSignInFailure(ctx, "a@b.com", "10.0.0.1"); err != nil {
			t.Fatalf("record failed: %v", err)
		}
	}
	if err := l.CheckSignIn(ctx, "A@B.com", "10.0.0.2"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected email throttle regardless of case, got %v", err)
	}
	if err := l.CheckSignIn(ctx, "other@b.com", "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected IP throttle, got %v", err)
	}

	if n, _ := l.SignInFailures(ctx, "a@b.com"); n != 3 {
		t.Fatalf("expected 3 failures, got %d", n)
	}

	mr.FastForward(2 * time.Minute)
	if err := l.CheckSignIn(ctx, "a@b.com", "10.0.0.1"); err != nil {
		t.Fatalf("expected window to expire, got %v", err)
	}
}

func TestResetSignInClearsCounters(t *testing.T) {
	_, rdb := newTestRedis(t)
	l := New(rdb, Config{MaxSignInFailures: 1, SignInCooldown: time.Minute})
	ctx := context.Background()

	_ = l.RecordSignInFailure(ctx, "a@b.com", "")
	if err := l.CheckSignIn(ctx, "a@b.com", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected throttle, got %v", err)
	}
	if err := l.ResetSignIn(ctx, "a@b.com", ""); err != nil {
		t.Fatalf("ResetSignIn failed: %v", err)
	}
	if err := l.CheckSignIn(ctx, "a@b.com", ""); err != nil {
		t.Fatalf("expected cleared counter, got %v", err)
	}
}

func TestAllowResetRequest(t *testing.T) {
	_, rdb := newTestRedis(t)
	l := New(rdb, Config{MaxResetRequests: 2, ResetRequestWindow: time.Hour})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.AllowResetRequest(ctx, "a@b.com"); err != nil {
			t.Fatalf("request %d: unexpected %v", i, err)
		}
	}
	if err := l.AllowResetRequest(ctx, "a@b.com"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestDisabledThrottlesAreNoOps(t *testing.T) {
	_, rdb := newTestRedis(t)
	l := New(rdb, Config{})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_ = l.RecordSignInFailure(ctx, "a@b.com", "")
		if err := l.AllowResetRequest(ctx, "a@b.com"); err != nil {
			t.Fatalf("unexpected %v", err)
		}
	}
	if err := l.CheckSignIn(ctx, "a@b.com", ""); err != nil {
		t.Fatalf("unexpected %v", err)
	}
}

func TestRedisDownWrapsUnavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := New(rdb, Config{MaxSignInFailures: 1, SignInCooldown: time.Minute})
	mr.Close()

	err := l.RecordSignInFailure(context.Background(), "a@b.com", "")
	if !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
