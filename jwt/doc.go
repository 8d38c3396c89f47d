// Package jwt issues and verifies the session tokens handed out by the local
// identity backend. Tokens carry the account ID as subject, a random session
// ID, and the email and provider that authenticated the session.
package jwt
