// Package rate provides Redis-backed fixed-window throttles for the local
// identity backend.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key suffixes
// under the configured prefix:
//   - rl:si:  failed sign-ins per email
//   - rl:sip: failed sign-ins per client IP
//   - rl:rr:  password reset requests per email
//
// # What this package must NOT do
//
//   - Decide what a throttled caller sees. Callers map ErrRateLimited.
//   - Be imported outside the credflow module.
package rate
