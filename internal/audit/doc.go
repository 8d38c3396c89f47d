// Package audit implements async event dispatching for credential-flow
// submissions.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, zap, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full / block-if-full semantics.
//     Drops are counted and reported at Warn on the first, every Nth and on Close.
//   - [Event]: structured record with timestamp, type, form, mode, IP, metadata.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which
// events to emit; that belongs to the Engine and the flow functions.
//
// # What this package must NOT do
//
//   - Record passwords or any other secret field value.
//   - Import credflow or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
