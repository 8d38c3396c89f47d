package credflow

import (
	"errors"

	"github.com/MrEthical07/credflow/internal/audit"
	"github.com/MrEthical07/credflow/internal/flows"
	"go.uber.org/zap"
)

// Builder assembles an Engine. A Builder can be used for one Build call.
type Builder struct {
	config Config

	gateway AuthGateway
	social  SocialGateway

	auditSink AuditSink
	logger    *zap.Logger
	hooks     []AuthenticatedHook

	built bool
}

// New returns a Builder preloaded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration with a copy of cfg.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithGateway sets the Auth Gateway every controller dispatches to. Required.
func (b *Builder) WithGateway(gateway AuthGateway) *Builder {
	b.gateway = gateway
	return b
}

// WithSocialGateway sets the gateway used by Controller.SubmitSocial. It is
// only consulted when Config.Social.Enabled is true.
func (b *Builder) WithSocialGateway(social SocialGateway) *Builder {
	b.social = social
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the zap logger. Without it the engine logs nothing.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuthenticatedHook registers a hook fired for every controller that
// reaches the authenticated state. Hooks run in registration order.
func (b *Builder) WithAuthenticatedHook(hook AuthenticatedHook) *Builder {
	if hook != nil {
		b.hooks = append(b.hooks, hook)
	}
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.gateway == nil {
		return nil, errors.New("auth gateway required")
	}
	if cfg.Social.Enabled && b.social == nil {
		return nil, errors.New("Social enabled requires a social gateway")
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	engine := &Engine{
		config:  cfg,
		gateway: b.gateway,
		social:  b.social,
		logger:  logger.Named("credflow"),
		hooks:   append([]AuthenticatedHook(nil), b.hooks...),
	}

	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink, engine.logger)
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.flows = flows.Deps{Submit: engine.submitDeps()}

	b.built = true

	return engine, nil
}
