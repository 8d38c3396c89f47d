// Command credflow-loadtest drives many Login controllers concurrently
// against the local gateway and reports latency percentiles.
//
// The submit phase signs seeded accounts in through independent
// controllers. The burst phase fires several Submits at the same controller
// at once and counts how many were turned away as already in flight.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/credflow"
	"github.com/MrEthical07/credflow/gateway/local"
	"github.com/MrEthical07/credflow/jwt"
	"github.com/MrEthical07/credflow/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const loadPassword = "correct-horse-battery"

func main() {
	var (
		accounts    = flag.Int("accounts", 200, "number of accounts to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 2000, "submissions per phase")
		burst       = flag.Int("burst", 4, "simultaneous submits per controller in the burst phase")
		memoryKiB   = flag.Uint("argon-memory", 8*1024, "argon2id memory in KiB")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "credflow-load", "redis key prefix")
	)
	flag.Parse()

	if *accounts <= 0 || *concurrency <= 0 || *ops <= 0 || *burst <= 1 {
		fmt.Fprintln(os.Stderr, "accounts, concurrency and ops must be > 0; burst must be > 1")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	gateway, err := newGateway(client, *prefix, uint32(*memoryKiB))
	if err != nil {
		fmt.Fprintf(os.Stderr, "gateway: %v\n", err)
		os.Exit(1)
	}

	engine, err := credflow.New().WithGateway(gateway).WithLatencyHistograms(true).Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	emails := make([]string, *accounts)
	fmt.Printf("seeding %d accounts...\n", *accounts)
	startSeed := time.Now()
	for i := range emails {
		emails[i] = fmt.Sprintf("load-%d@example.com", i)
		if err := gateway.SignUp(ctx, emails[i], loadPassword); err != nil && !errors.Is(err, credflow.ErrGatewayEmailInUse) {
			fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	submitStats := runSubmitPhase(ctx, engine, emails, *ops, *concurrency)
	burstStats := runBurstPhase(ctx, engine, emails, *ops, *concurrency, *burst)

	fmt.Println("---- results ----")
	printStats("submit", submitStats)
	printStats("burst", burstStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("engine: counters=%v\n", snap.Counters)
}

func newGateway(client redis.UniversalClient, prefix string, memoryKiB uint32) (*local.Gateway, error) {
	hashCfg := password.DefaultConfig()
	hashCfg.Memory = memoryKiB
	hashCfg.Time = 1
	hashCfg.Parallelism = 1
	hasher, err := password.NewArgon2(hashCfg)
	if err != nil {
		return nil, err
	}

	tokens, err := jwt.NewManager(jwt.Config{
		SessionTTL:    time.Hour,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("credflow-loadtest-secret-0123456789"),
		Issuer:        "credflow-loadtest",
	})
	if err != nil {
		return nil, err
	}

	cfg := local.DefaultConfig()
	cfg.Prefix = prefix
	cfg.MaxSignInFailures = 0
	return local.New(cfg, local.Deps{
		Redis:    client,
		Accounts: local.NewRedisAccountStore(client, prefix),
		Hasher:   hasher,
		Tokens:   tokens,
		Mailer:   local.NewLogMailer(nil),
	})
}

func runSubmitPhase(ctx context.Context, engine *credflow.Engine, emails []string, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				ctrl := engine.NewController()
				ctrl.SetEmail(emails[r.Intn(len(emails))])
				ctrl.SetPassword(loadPassword)

				t0 := time.Now()
				outcome, err := ctrl.Submit(ctx)
				d := time.Since(t0)
				if err != nil || !outcome.Authenticated() {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures, 0)
}

func runBurstPhase(ctx context.Context, engine *credflow.Engine, emails []string, ops, concurrency, burst int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		rejected  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*6151))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				ctrl := engine.NewController()
				ctrl.SetEmail(emails[r.Intn(len(emails))])
				ctrl.SetPassword(loadPassword)

				var (
					inner     sync.WaitGroup
					succeeded int64
				)
				t0 := time.Now()
				for b := 0; b < burst; b++ {
					inner.Add(1)
					go func() {
						defer inner.Done()
						_, err := ctrl.Submit(ctx)
						switch {
						case err == nil:
							atomic.AddInt64(&succeeded, 1)
						case errors.Is(err, credflow.ErrSubmitInFlight):
							atomic.AddInt64(&rejected, 1)
						default:
							atomic.AddInt64(&failures, 1)
						}
					}()
				}
				inner.Wait()
				d := time.Since(t0)
				if succeeded == 0 {
					atomic.AddInt64(&failures, 1)
				}

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures, rejected)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	rejected int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures, rejected int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		rejected: rejected,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d in_flight_rejected=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.rejected,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
