// Package local is a self-hosted credflow.AuthGateway. Accounts live in Redis
// or PostgreSQL, passwords are argon2id hashed, and sessions are signed JWTs.
//
// Failed sign-ins and reset requests are throttled with Redis counters.
// Password reset mails a single-use token that ConfirmPasswordReset consumes.
// Social sign-in resolves an IdentityProvider and finds or creates the account
// by email.
package local
