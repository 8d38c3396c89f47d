// Package stores provides the Redis-backed password reset challenge store used
// by the local identity backend.
//
// # Design
//
// Each challenge is a versioned, binary-encoded record with a TTL. Consume
// uses WATCH/MULTI optimistic transactions with retry on contention. Records
// are single-use and carry an attempt counter. Secret comparisons use
// constant-time compare.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for reset records. It
// does NOT generate secrets, throttle requests, or send mail.
//
// # What this package must NOT do
//
//   - Import credflow or any sibling internal package.
//   - Log or expose plaintext secrets.
//   - Use non-constant-time comparisons for secret matching.
package stores
