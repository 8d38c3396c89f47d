package credflow

import (
	"context"
	"time"

	"github.com/MrEthical07/credflow/internal/audit"
	"github.com/MrEthical07/credflow/internal/flows"
	"go.uber.org/zap"
)

// Engine holds the collaborators shared by every Controller: the Auth
// Gateway, audit dispatcher, metrics, logger and engine-wide hooks. It is
// safe for concurrent use and immutable after Build.
type Engine struct {
	config  Config
	gateway AuthGateway
	social  SocialGateway
	audit   *audit.Dispatcher
	metrics *Metrics
	logger  *zap.Logger
	hooks   []AuthenticatedHook
	flows   flows.Deps
}

// NewController returns a fresh controller in sign-in mode with empty fields.
// Each open Login form needs its own controller.
func (e *Engine) NewController() *Controller {
	return &Controller{
		engine: e,
		mode:   ModeSignIn,
	}
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return defaultConfig()
	}
	return cloneConfig(e.config)
}

// Close stops the audit dispatcher after draining queued events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) submitDeps() flows.SubmitDeps {
	deps := flows.SubmitDeps{
		ChainSignIn: e.config.Flow.ChainSignInAfterSignUp,
		Timeout:     e.config.Gateway.Timeout,
		Now:         time.Now,

		SignIn: func(ctx context.Context, email, password string) (flows.Session, error) {
			s, err := e.gateway.SignIn(ctx, email, password)
			return toFlowSession(s), err
		},
		SignUp:            e.gateway.SignUp,
		SendPasswordReset: e.gateway.SendPasswordReset,

		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		Observe: func(id int, d time.Duration) {
			if e.metrics != nil {
				e.metrics.Observe(MetricID(id), d)
			}
		},

		Metrics: flows.SubmitMetrics{
			SignInSuccess:        int(MetricSignInSuccess),
			SignInFailure:        int(MetricSignInFailure),
			SignUpSuccess:        int(MetricSignUpSuccess),
			SignUpFailure:        int(MetricSignUpFailure),
			PasswordResetSuccess: int(MetricPasswordResetSuccess),
			PasswordResetFailure: int(MetricPasswordResetFailure),
			SocialSignInSuccess:  int(MetricSocialSignInSuccess),
			SocialSignInFailure:  int(MetricSocialSignInFailure),
			GatewayTimeout:       int(MetricGatewayTimeout),
			GatewayLatency:       int(MetricGatewayLatency),
		},
		Events: flows.SubmitEvents{
			SignInSuccess:       auditEventSignInSuccess,
			SignInFailure:       auditEventSignInFailure,
			SignUpSuccess:       auditEventSignUpSuccess,
			SignUpFailure:       auditEventSignUpFailure,
			PasswordResetSent:   auditEventPasswordResetSent,
			PasswordResetFailed: auditEventPasswordResetFailure,
			SocialSignInSuccess: auditEventSocialSignInSuccess,
			SocialSignInFailure: auditEventSocialSignInFailure,
		},
	}

	if e.social != nil {
		deps.SignInWithProvider = func(ctx context.Context, provider, credential string) (flows.Session, error) {
			s, err := e.social.SignInWithProvider(ctx, provider, credential)
			return toFlowSession(s), err
		}
	}

	deps.EmitAudit = func(ctx context.Context, event string, success bool, subject string, err error) {
		e.emitAudit(ctx, event, modeFromContext(ctx), success, subject, err, nil)
	}

	return deps
}

// runHooks calls every hook, recovering and logging panics.
func (e *Engine) runHooks(ctx context.Context, session Session, hooks []AuthenticatedHook) {
	for _, hook := range hooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Warn("authenticated hook panicked",
						zap.Any("panic", r),
						zap.String("form_id", formIDFromContext(ctx)),
					)
				}
			}()
			hook(ctx, session)
		}()
	}
}

func toFlowSession(s Session) flows.Session {
	return flows.Session{
		Token:     s.Token,
		Subject:   s.Subject,
		Email:     s.Email,
		Provider:  s.Provider,
		ExpiresAt: s.ExpiresAt,
	}
}

func fromFlowSession(s flows.Session) Session {
	return Session{
		Token:     s.Token,
		Subject:   s.Subject,
		Email:     s.Email,
		Provider:  s.Provider,
		ExpiresAt: s.ExpiresAt,
	}
}
