// Package credflow implements the credential flow behind a Login screen:
// field validation, the sign-in / create-account / forgot-password modes, and
// dispatch of a validated submission to an injected [AuthGateway].
//
// An [Engine] is built once through [Builder.Build] and shared; it hands out
// one [Controller] per open form. Controller methods are safe to call from
// multiple goroutines and allow a single outstanding gateway call per form.
//
// # Architecture boundaries
//
// credflow is the public surface. It exposes [Engine], [Builder], [Config],
// [Controller] and value types (State, SessionOutcome, MetricsSnapshot, ...).
// Flow orchestration and audit dispatch live under internal/. Gateway
// implementations live in gateway/local and gateway/kratos; the HTTP host in
// httpapi.
//
// # What this package must NOT do
//
//   - Store or log password values beyond the controller's own fields.
//   - Retry a failed gateway call.
//   - Import any sub-package that re-imports credflow (no import cycles).
//
// # Loading contract
//
// Every return path of Submit and SubmitSocial clears the loading flag,
// including gateway failures, timeouts and recovered gateway panics.
package credflow
