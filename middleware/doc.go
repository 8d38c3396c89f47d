// Package middleware guards HTTP routes that require an authenticated
// credflow session.
//
//   - [Guard] reads a bearer token from the Authorization header.
//   - [GuardWithCookie] also accepts the token from a cookie.
//
// Both delegate the decision to a [SessionVerifier] and attach the resolved
// session to the request context, see [SessionFromContext].
package middleware
