package credflow

import (
	"errors"
	"strings"
	"time"
)

// Config holds engine-wide settings shared by every controller an Engine
// creates. It is copied by Builder.WithConfig and treated as immutable after
// Build.
type Config struct {
	Flow    FlowConfig
	Gateway GatewayConfig
	Social  SocialConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
FLOW CONFIG
====================================
*/

// FlowConfig controls the submit dispatch table.
type FlowConfig struct {
	// ChainSignInAfterSignUp signs the new account in right after SignUp
	// succeeds. When false, Submit stops at OutcomeAccountCreated.
	ChainSignInAfterSignUp bool
	// ClearPasswordOnFailure wipes the password fields after a failed
	// sign-in. Off by default so the user can correct a typo.
	ClearPasswordOnFailure bool
	// GuardVisibilityToggle ignores TogglePasswordVisible while the password
	// field is empty in sign-in mode.
	GuardVisibilityToggle bool
}

// GatewayConfig bounds every Auth Gateway call.
type GatewayConfig struct {
	// Timeout caps a single gateway call. Zero disables the cap.
	Timeout time.Duration
}

// SocialConfig gates SubmitSocial.
type SocialConfig struct {
	Enabled   bool
	Providers []string
}

// AuditConfig configures the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig configures in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the configuration used when Builder.WithConfig is not
// called.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Flow: FlowConfig{
			ChainSignInAfterSignUp: true,
			ClearPasswordOnFailure: false,
			GuardVisibilityToggle:  true,
		},
		Gateway: GatewayConfig{
			Timeout: 15 * time.Second,
		},
		Social: SocialConfig{
			Enabled:   false,
			Providers: nil,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if len(cfg.Social.Providers) > 0 {
		out.Social.Providers = make([]string, len(cfg.Social.Providers))
		copy(out.Social.Providers, cfg.Social.Providers)
	}
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects configurations that would let a controller misbehave.
func (c *Config) Validate() error {
	if c.Gateway.Timeout < 0 {
		return errors.New("Gateway Timeout must be >= 0")
	}
	if c.Gateway.Timeout > 0 && c.Gateway.Timeout < 100*time.Millisecond {
		return errors.New("Gateway Timeout must be >= 100ms when set")
	}

	if c.Social.Enabled {
		if len(c.Social.Providers) == 0 {
			return errors.New("Social Providers must not be empty when Social is enabled")
		}
		seen := make(map[string]struct{}, len(c.Social.Providers))
		for _, p := range c.Social.Providers {
			name := strings.TrimSpace(p)
			if name == "" {
				return errors.New("Social Providers must not contain blank names")
			}
			if _, dup := seen[name]; dup {
				return errors.New("Social Providers must be unique")
			}
			seen[name] = struct{}{}
		}
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when Audit is enabled")
	}

	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}

func (c *Config) providerAllowed(provider string) bool {
	for _, p := range c.Social.Providers {
		if strings.TrimSpace(p) == provider {
			return true
		}
	}
	return false
}
