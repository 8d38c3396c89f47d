package middleware

import "net/http"

// GuardWithCookie accepts the session token from the Authorization header or,
// failing that, from the named cookie. Browser redirects after social sign-in
// only carry the cookie.
func GuardWithCookie(verifier SessionVerifier, cookieName string) func(http.Handler) http.Handler {
	return guard(verifier, func(r *http.Request) (string, bool) {
		if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
			return token, true
		}
		c, err := r.Cookie(cookieName)
		if err != nil || c.Value == "" {
			return "", false
		}
		return c.Value, true
	})
}
