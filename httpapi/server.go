package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MrEthical07/credflow"
	"github.com/MrEthical07/credflow/middleware"
	"github.com/MrEthical07/credflow/social"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Config tunes the HTTP host.
type Config struct {
	// FormIdleTTL evicts forms nobody touched for this long. Zero keeps them
	// until DELETE.
	FormIdleTTL time.Duration
	// MaxForms caps open forms. Zero means no cap.
	MaxForms      int
	SessionCookie string
	SecureCookie  bool
	HomePath      string
}

func DefaultConfig() Config {
	return Config{
		FormIdleTTL:   30 * time.Minute,
		MaxForms:      10000,
		SessionCookie: "credflow_session",
		SecureCookie:  true,
		HomePath:      "/home",
	}
}

// SocialStarter builds the provider URL a browser is sent to.
type SocialStarter interface {
	Name() string
	AuthCodeURL(state string) string
}

// ResetConfirmer completes a password reset from the emailed link.
type ResetConfirmer interface {
	ConfirmPasswordReset(ctx context.Context, token, newPassword string) error
}

// Deps are the collaborators of a Server. Engine is required; Verifier guards
// the home route; Social and States enable the social redirect routes.
type Deps struct {
	Engine   *credflow.Engine
	Verifier middleware.SessionVerifier
	Social   []SocialStarter
	States   *social.StateStore
	Resets   ResetConfirmer
	Metrics  http.Handler
	Logger   *zap.Logger
}

type Server struct {
	config   Config
	engine   *credflow.Engine
	forms    *FormRegistry
	verifier middleware.SessionVerifier
	social   map[string]SocialStarter
	states   *social.StateStore
	resets   ResetConfirmer
	metrics  http.Handler
	logger   *zap.Logger
	router   chi.Router
}

func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Engine == nil {
		return nil, errors.New("httpapi requires an engine")
	}
	if len(deps.Social) > 0 && deps.States == nil {
		return nil, errors.New("social providers require a state store")
	}
	if cfg.SessionCookie == "" {
		cfg.SessionCookie = "credflow_session"
	}
	if cfg.HomePath == "" {
		cfg.HomePath = "/home"
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		config:   cfg,
		engine:   deps.Engine,
		forms:    NewFormRegistry(deps.Engine, cfg.FormIdleTTL, cfg.MaxForms),
		verifier: deps.Verifier,
		social:   make(map[string]SocialStarter, len(deps.Social)),
		states:   deps.States,
		resets:   deps.Resets,
		metrics:  deps.Metrics,
		logger:   logger.Named("http"),
	}
	for _, p := range deps.Social {
		s.social[p.Name()] = p
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Forms() *FormRegistry {
	return s.forms
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(accessLog(s.logger))
	r.Use(chimw.Recoverer)

	r.Route("/forms", func(r chi.Router) {
		r.Post("/", s.handleOpenForm)
		r.Route("/{formID}", func(r chi.Router) {
			r.Use(s.withForm)
			r.Get("/", s.handleGetForm)
			r.Delete("/", s.handleCloseForm)
			r.Patch("/fields", s.handleSetFields)
			r.Post("/mode", s.handleToggleMode)
			r.Post("/password-visibility", s.handleTogglePasswordVisible)
			r.Post("/validate", s.handleValidate)
			r.Post("/submit", s.handleSubmit)
		})
	})

	r.Get("/social/{provider}/start", s.handleSocialStart)
	r.Get("/social/{provider}/callback", s.handleSocialCallback)

	if s.resets != nil {
		r.Post("/password-reset/confirm", s.handleConfirmReset)
	}

	r.With(middleware.GuardWithCookie(s.verifier, s.config.SessionCookie)).Get(s.config.HomePath, s.handleHome)

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	return r
}

func accessLog(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", chimw.GetReqID(r.Context())),
			)
		})
	}
}
