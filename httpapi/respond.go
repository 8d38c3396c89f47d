package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrEthical07/credflow"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]errorBody{"error": {Code: code, Message: message}})
}

// classify maps a controller error to an HTTP status and error code.
func classify(err error) (int, errorBody) {
	body := errorBody{Message: err.Error()}

	var verr *credflow.ValidationError
	if errors.As(err, &verr) {
		body.Code = verr.Kind.String()
		return http.StatusUnprocessableEntity, body
	}

	switch {
	case errors.Is(err, credflow.ErrSubmitInFlight):
		body.Code = "in_flight"
		return http.StatusConflict, body
	case errors.Is(err, credflow.ErrSocialDisabled):
		body.Code = "social_disabled"
		return http.StatusNotFound, body
	case errors.Is(err, credflow.ErrUnknownProvider), errors.Is(err, errUnknownSocialProvider):
		body.Code = "unknown_provider"
		return http.StatusNotFound, body
	case errors.Is(err, credflow.ErrSocialCredentialEmpty):
		body.Code = "credential_empty"
		return http.StatusBadRequest, body
	case errors.Is(err, credflow.ErrEngineNotReady):
		body.Code = "not_ready"
		return http.StatusInternalServerError, body
	}

	var aerr *credflow.AuthError
	if !errors.As(err, &aerr) {
		body.Code = "internal"
		return http.StatusInternalServerError, body
	}

	body.Code = aerr.Kind.String()
	switch aerr.Kind {
	case credflow.AuthErrorInvalidCredentials:
		return http.StatusUnauthorized, body
	case credflow.AuthErrorEmailInUse:
		return http.StatusConflict, body
	case credflow.AuthErrorInvalidInput:
		return http.StatusBadRequest, body
	case credflow.AuthErrorAccountNotFound:
		return http.StatusNotFound, body
	case credflow.AuthErrorRateLimited:
		return http.StatusTooManyRequests, body
	case credflow.AuthErrorTimeout:
		return http.StatusGatewayTimeout, body
	default:
		return http.StatusBadGateway, body
	}
}
