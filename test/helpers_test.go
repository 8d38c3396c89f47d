//go:build integration
// +build integration

package test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/MrEthical07/credflow/gateway/local"
	"github.com/MrEthical07/credflow/jwt"
	"github.com/MrEthical07/credflow/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// redisMode describes which Redis backend a suite is running against.
type redisMode struct {
	name  string
	setup func(t *testing.T) redis.UniversalClient
}

// redisModes always includes miniredis. Real Redis is added when REDIS_ADDR
// is set (e.g. "127.0.0.1:6379").
func redisModes(t *testing.T) []redisMode {
	t.Helper()
	modes := []redisMode{
		{
			name: "miniredis",
			setup: func(t *testing.T) redis.UniversalClient {
				t.Helper()
				mr := miniredis.RunT(t)
				rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				t.Cleanup(func() { _ = rdb.Close() })
				return rdb
			},
		},
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		modes = append(modes, redisMode{
			name: "standalone:" + addr,
			setup: func(t *testing.T) redis.UniversalClient {
				t.Helper()
				rdb := redis.NewClient(&redis.Options{Addr: addr})
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis at %s: %v", addr, err)
				}
				rdb.FlushDB(context.Background())
				t.Cleanup(func() {
					rdb.FlushDB(context.Background())
					_ = rdb.Close()
				})
				return rdb
			},
		})
	}

	return modes
}

type captureMailer struct {
	links chan string
}

func newCaptureMailer() *captureMailer {
	return &captureMailer{links: make(chan string, 16)}
}

func (m *captureMailer) SendPasswordReset(_ context.Context, _, link string) error {
	m.links <- link
	return nil
}

func newLocalGateway(t *testing.T, rdb redis.UniversalClient, accounts local.AccountStore, mailer local.Mailer) *local.Gateway {
	t.Helper()

	hashCfg := password.DefaultConfig()
	hashCfg.Memory = 8 * 1024
	hashCfg.Time = 1
	hashCfg.Parallelism = 1
	hasher, err := password.NewArgon2(hashCfg)
	if err != nil {
		t.Fatalf("NewArgon2: %v", err)
	}

	tokens, err := jwt.NewManager(jwt.Config{
		SessionTTL:    time.Hour,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("integration-secret-0123456789abcdef"),
		Issuer:        "credflow-test",
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	cfg := local.DefaultConfig()
	cfg.Prefix = "it"
	cfg.ResetURL = "https://app.example/reset"
	gw, err := local.New(cfg, local.Deps{
		Redis:    rdb,
		Accounts: accounts,
		Hasher:   hasher,
		Tokens:   tokens,
		Mailer:   mailer,
	})
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}
	return gw
}
