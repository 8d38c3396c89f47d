package httpapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"

	"github.com/MrEthical07/credflow"
	"github.com/MrEthical07/credflow/middleware"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 16

type formContextKey struct{}

type formRef struct {
	id         string
	controller *credflow.Controller
}

func formFromContext(ctx context.Context) formRef {
	ref, _ := ctx.Value(formContextKey{}).(formRef)
	return ref
}

// withForm resolves {formID} and attaches the caller's IP, user agent and
// form ID for audit events.
func (s *Server) withForm(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "formID")
		ctrl, ok := s.forms.Get(id)
		if !ok {
			writeError(w, http.StatusNotFound, "form_not_found", "no open form with this id")
			return
		}

		ctx := requestContext(r, id)
		ctx = context.WithValue(ctx, formContextKey{}, formRef{id: id, controller: ctrl})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestContext(r *http.Request, formID string) context.Context {
	ctx := r.Context()
	ctx = credflow.WithClientIP(ctx, clientIP(r))
	ctx = credflow.WithUserAgent(ctx, r.UserAgent())
	if formID != "" {
		ctx = credflow.WithFormID(ctx, formID)
	}
	return ctx
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type formResponse struct {
	ID    string         `json:"id"`
	State credflow.State `json:"state"`
}

func (s *Server) handleOpenForm(w http.ResponseWriter, r *http.Request) {
	id, ctrl, err := s.forms.Open()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "too_many_forms", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, formResponse{ID: id, State: ctrl.Snapshot()})
}

func (s *Server) handleGetForm(w http.ResponseWriter, r *http.Request) {
	ref := formFromContext(r.Context())
	writeJSON(w, http.StatusOK, formResponse{ID: ref.id, State: ref.controller.Snapshot()})
}

func (s *Server) handleCloseForm(w http.ResponseWriter, r *http.Request) {
	s.forms.Close(formFromContext(r.Context()).id)
	w.WriteHeader(http.StatusNoContent)
}

type fieldsRequest struct {
	Email           *string `json:"email"`
	Password        *string `json:"password"`
	ConfirmPassword *string `json:"confirmPassword"`
}

func (s *Server) handleSetFields(w http.ResponseWriter, r *http.Request) {
	ref := formFromContext(r.Context())

	var req fieldsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email != nil {
		ref.controller.SetEmail(*req.Email)
	}
	if req.Password != nil {
		ref.controller.SetPassword(*req.Password)
	}
	if req.ConfirmPassword != nil {
		ref.controller.SetConfirmPassword(*req.ConfirmPassword)
	}
	writeJSON(w, http.StatusOK, formResponse{ID: ref.id, State: ref.controller.Snapshot()})
}

type modeRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) handleToggleMode(w http.ResponseWriter, r *http.Request) {
	ref := formFromContext(r.Context())

	var req modeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	mode, err := credflow.ParseFlowMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_mode", err.Error())
		return
	}
	if err := ref.controller.ToggleMode(r.Context(), mode); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_mode", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, formResponse{ID: ref.id, State: ref.controller.Snapshot()})
}

func (s *Server) handleTogglePasswordVisible(w http.ResponseWriter, r *http.Request) {
	ref := formFromContext(r.Context())
	visible := ref.controller.TogglePasswordVisible()
	writeJSON(w, http.StatusOK, map[string]bool{"passwordVisible": visible})
}

type validateResponse struct {
	OK         bool                     `json:"ok"`
	Validation credflow.ValidationState `json:"validation"`
	Error      *errorBody               `json:"error,omitempty"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	ref := formFromContext(r.Context())

	state, err := ref.controller.Validate()
	if err != nil {
		status, body := classify(err)
		writeJSON(w, status, validateResponse{Validation: state, Error: &body})
		return
	}
	writeJSON(w, http.StatusOK, validateResponse{OK: true, Validation: state})
}

type submitResponse struct {
	Outcome  credflow.OutcomeKind `json:"outcome,omitempty"`
	Session  *sessionView         `json:"session,omitempty"`
	Navigate string               `json:"navigate,omitempty"`
	State    credflow.State       `json:"state"`
	Error    *errorBody           `json:"error,omitempty"`
}

type sessionView struct {
	Subject   string `json:"subject,omitempty"`
	Email     string `json:"email,omitempty"`
	Provider  string `json:"provider,omitempty"`
	ExpiresAt int64  `json:"expiresAt,omitempty"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ref := formFromContext(r.Context())

	outcome, err := ref.controller.Submit(r.Context())
	if err != nil {
		status, body := classify(err)
		if status >= http.StatusInternalServerError {
			s.logger.Warn("submit failed", zap.String("form", ref.id), zap.Error(err))
		}
		writeJSON(w, status, submitResponse{State: ref.controller.Snapshot(), Error: &body})
		return
	}

	resp := submitResponse{Outcome: outcome.Kind, State: ref.controller.Snapshot()}
	if outcome.Authenticated() && outcome.Session != nil {
		s.setSessionCookie(w, *outcome.Session)
		resp.Session = viewOf(*outcome.Session)
		resp.Navigate = s.config.HomePath
	}
	writeJSON(w, http.StatusOK, resp)
}

type confirmResetRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// opConfirmPasswordReset labels reset confirmation failures.
const opConfirmPasswordReset = "confirmPasswordReset"

func (s *Server) handleConfirmReset(w http.ResponseWriter, r *http.Request) {
	var req confirmResetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Token == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_body", "token and password are required")
		return
	}

	if err := s.resets.ConfirmPasswordReset(r.Context(), req.Token, req.Password); err != nil {
		status, body := classify(credflow.ClassifyAuthError(opConfirmPasswordReset, err))
		if status >= http.StatusInternalServerError {
			s.logger.Warn("confirm password reset failed", zap.Error(err))
		}
		writeJSON(w, status, map[string]errorBody{"error": body})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "no session")
		return
	}
	writeJSON(w, http.StatusOK, viewOf(session))
}

func viewOf(session credflow.Session) *sessionView {
	v := &sessionView{
		Subject:  session.Subject,
		Email:    session.Email,
		Provider: session.Provider,
	}
	if !session.ExpiresAt.IsZero() {
		v.ExpiresAt = session.ExpiresAt.Unix()
	}
	return v
}

func (s *Server) setSessionCookie(w http.ResponseWriter, session credflow.Session) {
	c := &http.Cookie{
		Name:     s.config.SessionCookie,
		Value:    session.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.config.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	}
	if !session.ExpiresAt.IsZero() {
		c.Expires = session.ExpiresAt
	}
	http.SetCookie(w, c)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return false
	}
	return true
}
