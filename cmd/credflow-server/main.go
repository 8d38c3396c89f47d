// Command credflow-server hosts Login forms over HTTP.
//
// Configuration comes from the environment, optionally seeded from a .env
// file in the working directory. With REDIS_ADDR unset an in-process
// miniredis is started, which is enough for local development:
//
//	CREDFLOW_SESSION_SECRET=$(openssl rand -hex 32) CREDFLOW_SECURE_COOKIE=false \
//	  go run ./cmd/credflow-server
//
//	curl -s -X POST localhost:8080/forms
//	curl -s -X PATCH localhost:8080/forms/<id>/fields \
//	  -d '{"email":"alice@example.com","password":"correct-horse-battery"}'
//	curl -s -X POST localhost:8080/forms/<id>/mode -d '{"mode":"create_account"}'
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/credflow"
	"github.com/MrEthical07/credflow/gateway/kratos"
	"github.com/MrEthical07/credflow/gateway/local"
	"github.com/MrEthical07/credflow/httpapi"
	"github.com/MrEthical07/credflow/jwt"
	"github.com/MrEthical07/credflow/middleware"
	"github.com/MrEthical07/credflow/metrics/export/prometheus"
	"github.com/MrEthical07/credflow/password"
	"github.com/MrEthical07/credflow/social"
	"github.com/MrEthical07/credflow/social/google"
	"github.com/alicebob/miniredis/v2"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(2)
	}

	cfg, err := loadConfig(os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}

func newLogger(cfg serverConfig) (*zap.Logger, error) {
	if cfg.DevelopmentLogs {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(ctx context.Context, cfg serverConfig, logger *zap.Logger) error {
	rdb, closeRedis, err := openRedis(cfg, logger)
	if err != nil {
		return err
	}
	defer closeRedis()

	backend, err := buildBackend(ctx, cfg, rdb, logger)
	if err != nil {
		return err
	}
	defer backend.close()

	engineCfg := credflow.DefaultConfig()
	engineCfg.Gateway.Timeout = cfg.GatewayTimeout
	engineCfg.Audit.Enabled = cfg.AuditEnabled
	if backend.social != nil {
		engineCfg.Social.Enabled = true
		engineCfg.Social.Providers = []string{google.Name}
	}

	builder := credflow.New().
		WithConfig(engineCfg).
		WithGateway(backend.gateway).
		WithLogger(logger).
		WithAuthenticatedHook(func(_ context.Context, s credflow.Session) {
			logger.Info("signed in", zap.String("subject", s.Subject), zap.String("provider", s.Provider))
		})
	if backend.social != nil {
		builder = builder.WithSocialGateway(backend.social)
	}
	if cfg.AuditEnabled {
		builder = builder.WithAuditSink(credflow.NewZapSink(logger))
	}
	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	httpCfg := httpapi.DefaultConfig()
	httpCfg.FormIdleTTL = cfg.FormIdleTTL
	httpCfg.MaxForms = cfg.MaxForms
	httpCfg.SecureCookie = cfg.SecureCookie

	var forms *httpapi.FormRegistry
	exporter := prometheus.NewPrometheusExporter(engine).
		WithGauge("credflow_open_forms", "Login forms currently held by the server", func() float64 {
			if forms == nil {
				return 0
			}
			return float64(forms.Len())
		})

	deps := httpapi.Deps{
		Engine:   engine,
		Verifier: backend.verifier,
		Resets:   backend.resets,
		Metrics:  exporter.Handler(),
		Logger:   logger,
	}
	if backend.google != nil {
		deps.Social = []httpapi.SocialStarter{backend.google}
		deps.States = social.NewStateStore(rdb, cfg.Prefix, 10*time.Minute)
	}

	srv, err := httpapi.New(httpCfg, deps)
	if err != nil {
		return err
	}
	forms = srv.Forms()

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go forms.Run(janitorCtx, time.Minute)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr), zap.String("backend", cfg.Backend))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	logger.Info("shutting down")
	return httpServer.Shutdown(shutdownCtx)
}

func openRedis(cfg serverConfig, logger *zap.Logger) (redis.UniversalClient, func(), error) {
	if cfg.RedisAddr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{cfg.RedisAddr}})
		logger.Info("using redis", zap.String("addr", cfg.RedisAddr))
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	logger.Warn("REDIS_ADDR unset, using in-process miniredis", zap.String("addr", mr.Addr()))
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

// backend bundles the identity backend chosen by CREDFLOW_BACKEND.
type backend struct {
	gateway  credflow.AuthGateway
	social   credflow.SocialGateway
	verifier middleware.SessionVerifier
	resets httpapi.ResetConfirmer
	google *google.Provider
	close  func()
}

func buildBackend(ctx context.Context, cfg serverConfig, rdb redis.UniversalClient, logger *zap.Logger) (*backend, error) {
	if cfg.Backend == backendKratos {
		gw, err := kratos.New(kratos.Config{PublicURL: cfg.KratosPublicURL}, logger)
		if err != nil {
			return nil, err
		}
		return &backend{gateway: gw, verifier: gw, close: func() {}}, nil
	}

	accounts, closeAccounts, err := openAccounts(ctx, cfg, rdb, logger)
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewArgon2(password.DefaultConfig())
	if err != nil {
		closeAccounts()
		return nil, err
	}
	tokens, err := jwt.NewManager(jwt.Config{
		SessionTTL:    cfg.SessionTTL,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte(cfg.SessionSecret),
		Issuer:        cfg.Issuer,
		Audience:      cfg.Issuer,
		Leeway:        30 * time.Second,
	})
	if err != nil {
		closeAccounts()
		return nil, err
	}

	b := &backend{close: closeAccounts}
	var providers []local.IdentityProvider
	if cfg.googleEnabled() {
		g, err := google.New(google.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		})
		if err != nil {
			closeAccounts()
			return nil, err
		}
		b.google = g
		providers = append(providers, g)
	}

	localCfg := local.DefaultConfig()
	localCfg.Prefix = cfg.Prefix
	localCfg.ResetURL = cfg.ResetURL
	gw, err := local.New(localCfg, local.Deps{
		Redis:     rdb,
		Accounts:  accounts,
		Hasher:    hasher,
		Tokens:    tokens,
		Mailer:    local.NewLogMailer(logger),
		Providers: providers,
		Logger:    logger,
	})
	if err != nil {
		closeAccounts()
		return nil, err
	}

	b.gateway = gw
	b.verifier = gw
	b.resets = gw
	if b.google != nil {
		b.social = gw
	}
	return b, nil
}

func openAccounts(ctx context.Context, cfg serverConfig, rdb redis.UniversalClient, logger *zap.Logger) (local.AccountStore, func(), error) {
	if cfg.DatabaseURL == "" {
		return local.NewRedisAccountStore(rdb, cfg.Prefix), func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := local.NewPostgresAccountStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	logger.Info("using postgres account store")
	return store, func() { _ = db.Close() }, nil
}
