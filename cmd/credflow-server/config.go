package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	backendLocal  = "local"
	backendKratos = "kratos"
)

// serverConfig is everything the binary reads from the environment.
type serverConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
	DevelopmentLogs bool

	RedisAddr string
	Prefix    string

	// DatabaseURL switches account storage from Redis to Postgres.
	DatabaseURL string

	Backend         string
	KratosPublicURL string

	SessionSecret string
	SessionTTL    time.Duration
	Issuer        string
	ResetURL      string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	GatewayTimeout time.Duration
	AuditEnabled   bool

	FormIdleTTL  time.Duration
	MaxForms     int
	SecureCookie bool
}

func defaultServerConfig() serverConfig {
	return serverConfig{
		Addr:            ":8080",
		ShutdownTimeout: 10 * time.Second,
		Prefix:          "credflow",
		Backend:         backendLocal,
		SessionTTL:      24 * time.Hour,
		Issuer:          "credflow",
		ResetURL:        "http://localhost:8080/reset",
		GatewayTimeout:  15 * time.Second,
		FormIdleTTL:     30 * time.Minute,
		MaxForms:        10000,
		SecureCookie:    true,
	}
}

// loadConfig reads the CREDFLOW_* variables (plus REDIS_ADDR and
// DATABASE_URL) through getenv. Unset variables keep their defaults.
func loadConfig(getenv func(string) string) (serverConfig, error) {
	cfg := defaultServerConfig()
	p := envParser{getenv: getenv}

	p.str("CREDFLOW_ADDR", &cfg.Addr)
	p.duration("CREDFLOW_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)
	p.boolean("CREDFLOW_DEV_LOGS", &cfg.DevelopmentLogs)

	p.str("REDIS_ADDR", &cfg.RedisAddr)
	p.str("CREDFLOW_PREFIX", &cfg.Prefix)
	p.str("DATABASE_URL", &cfg.DatabaseURL)

	p.str("CREDFLOW_BACKEND", &cfg.Backend)
	p.str("KRATOS_PUBLIC_URL", &cfg.KratosPublicURL)

	p.str("CREDFLOW_SESSION_SECRET", &cfg.SessionSecret)
	p.duration("CREDFLOW_SESSION_TTL", &cfg.SessionTTL)
	p.str("CREDFLOW_ISSUER", &cfg.Issuer)
	p.str("CREDFLOW_RESET_URL", &cfg.ResetURL)

	p.str("GOOGLE_CLIENT_ID", &cfg.GoogleClientID)
	p.str("GOOGLE_CLIENT_SECRET", &cfg.GoogleClientSecret)
	p.str("GOOGLE_REDIRECT_URL", &cfg.GoogleRedirectURL)

	p.duration("CREDFLOW_GATEWAY_TIMEOUT", &cfg.GatewayTimeout)
	p.boolean("CREDFLOW_AUDIT", &cfg.AuditEnabled)

	p.duration("CREDFLOW_FORM_IDLE_TTL", &cfg.FormIdleTTL)
	p.integer("CREDFLOW_MAX_FORMS", &cfg.MaxForms)
	p.boolean("CREDFLOW_SECURE_COOKIE", &cfg.SecureCookie)

	if p.err != nil {
		return serverConfig{}, p.err
	}
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	if err := cfg.Validate(); err != nil {
		return serverConfig{}, err
	}
	return cfg, nil
}

func (c serverConfig) googleEnabled() bool {
	return c.GoogleClientID != ""
}

func (c serverConfig) Validate() error {
	if c.Addr == "" {
		return errors.New("CREDFLOW_ADDR must not be empty")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("CREDFLOW_SHUTDOWN_TIMEOUT must be > 0")
	}
	if c.Prefix == "" {
		return errors.New("CREDFLOW_PREFIX must not be empty")
	}
	if c.GatewayTimeout < 0 {
		return errors.New("CREDFLOW_GATEWAY_TIMEOUT must be >= 0")
	}
	if c.FormIdleTTL < 0 || c.MaxForms < 0 {
		return errors.New("CREDFLOW_FORM_IDLE_TTL and CREDFLOW_MAX_FORMS must be >= 0")
	}

	switch c.Backend {
	case backendLocal:
		if len(c.SessionSecret) < 32 {
			return errors.New("CREDFLOW_SESSION_SECRET must be at least 32 bytes for the local backend")
		}
		if c.SessionTTL <= 0 {
			return errors.New("CREDFLOW_SESSION_TTL must be > 0")
		}
	case backendKratos:
		if c.KratosPublicURL == "" {
			return errors.New("KRATOS_PUBLIC_URL is required for the kratos backend")
		}
		if c.DatabaseURL != "" {
			return errors.New("DATABASE_URL is only used by the local backend")
		}
		if c.googleEnabled() {
			return errors.New("Google sign-in requires the local backend")
		}
	default:
		return fmt.Errorf("CREDFLOW_BACKEND %q must be %q or %q", c.Backend, backendLocal, backendKratos)
	}

	if c.googleEnabled() && (c.GoogleClientSecret == "" || c.GoogleRedirectURL == "") {
		return errors.New("GOOGLE_CLIENT_SECRET and GOOGLE_REDIRECT_URL are required with GOOGLE_CLIENT_ID")
	}
	return nil
}

// envParser records the first malformed variable and ignores the rest.
type envParser struct {
	getenv func(string) string
	err    error
}

func (p *envParser) lookup(key string) (string, bool) {
	if p.err != nil {
		return "", false
	}
	v := strings.TrimSpace(p.getenv(key))
	return v, v != ""
}

func (p *envParser) str(key string, dst *string) {
	if v, ok := p.lookup(key); ok {
		*dst = v
	}
}

func (p *envParser) duration(key string, dst *time.Duration) {
	v, ok := p.lookup(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.err = fmt.Errorf("%s: %w", key, err)
		return
	}
	*dst = d
}

func (p *envParser) integer(key string, dst *int) {
	v, ok := p.lookup(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.err = fmt.Errorf("%s: %w", key, err)
		return
	}
	*dst = n
}

func (p *envParser) boolean(key string, dst *bool) {
	v, ok := p.lookup(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.err = fmt.Errorf("%s: %w", key, err)
		return
	}
	*dst = b
}
