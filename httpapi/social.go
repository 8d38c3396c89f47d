package httpapi

import (
	"errors"
	"net/http"

	"github.com/MrEthical07/credflow/social"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

var errUnknownSocialProvider = errors.New("unknown social provider")

// handleSocialStart redirects the browser to the provider. The form to
// complete is taken from ?form=, or a new one is opened.
func (s *Server) handleSocialStart(w http.ResponseWriter, r *http.Request) {
	provider, ok := s.social[chi.URLParam(r, "provider")]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown_provider", errUnknownSocialProvider.Error())
		return
	}

	formID := r.URL.Query().Get("form")
	if formID == "" {
		id, _, err := s.forms.Open()
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "too_many_forms", err.Error())
			return
		}
		formID = id
	} else if _, ok := s.forms.Get(formID); !ok {
		writeError(w, http.StatusNotFound, "form_not_found", "no open form with this id")
		return
	}

	state, err := s.states.Issue(r.Context(), provider.Name(), formID)
	if err != nil {
		s.logger.Warn("issue oauth state", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "state_unavailable", "could not start sign-in")
		return
	}

	http.Redirect(w, r, provider.AuthCodeURL(state), http.StatusFound)
}

// handleSocialCallback completes the form bound to ?state= with ?code= and
// sends the browser home on success.
func (s *Server) handleSocialCallback(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	if _, ok := s.social[name]; !ok {
		writeError(w, http.StatusNotFound, "unknown_provider", errUnknownSocialProvider.Error())
		return
	}

	q := r.URL.Query()
	if providerErr := q.Get("error"); providerErr != "" {
		writeError(w, http.StatusUnauthorized, "provider_denied", providerErr)
		return
	}

	formID, err := s.states.Consume(r.Context(), q.Get("state"), name)
	if err != nil {
		if errors.Is(err, social.ErrStateInvalid) {
			writeError(w, http.StatusBadRequest, "invalid_state", err.Error())
			return
		}
		writeError(w, http.StatusServiceUnavailable, "state_unavailable", err.Error())
		return
	}

	ctrl, ok := s.forms.Get(formID)
	if !ok {
		writeError(w, http.StatusNotFound, "form_not_found", "form expired before the provider answered")
		return
	}

	outcome, err := ctrl.SubmitSocial(requestContext(r, formID), name, q.Get("code"))
	if err != nil {
		status, body := classify(err)
		writeJSON(w, status, submitResponse{State: ctrl.Snapshot(), Error: &body})
		return
	}

	if outcome.Session != nil {
		s.setSessionCookie(w, *outcome.Session)
	}
	s.forms.Close(formID)
	http.Redirect(w, r, s.config.HomePath, http.StatusSeeOther)
}
