package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/credflow"
)

// SessionVerifier resolves a session token. Both the local and the Kratos
// gateways implement it.
type SessionVerifier interface {
	VerifySession(ctx context.Context, token string) (credflow.Session, error)
}

type sessionContextKey struct{}

// SessionFromContext returns the session a guard attached to the request.
func SessionFromContext(ctx context.Context) (credflow.Session, bool) {
	session, ok := ctx.Value(sessionContextKey{}).(credflow.Session)
	return session, ok
}

// Guard rejects requests without a valid bearer session token.
func Guard(verifier SessionVerifier) func(http.Handler) http.Handler {
	return guard(verifier, func(r *http.Request) (string, bool) {
		return bearerToken(r.Header.Get("Authorization"))
	})
}

func guard(verifier SessionVerifier, extract func(*http.Request) (string, bool)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := extract(r)
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			session, err := verifier.VerifySession(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey{}, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
