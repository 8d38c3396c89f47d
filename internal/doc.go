// Package internal contains helpers private to credflow: password reset
// token generation and encoding, and response jitter.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: field validation and the submit dispatch table
//   - rate: Redis-backed fixed-window throttles for the local backend
//   - stores: Redis-backed password reset challenges
//
// # What this package must NOT do
//
//   - Export types that appear in the public credflow API.
//   - Log or return reset secrets anywhere but the encoded token.
package internal
