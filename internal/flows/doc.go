// Package flows contains pure-function orchestrators for every Controller
// operation.
//
// RunValidate applies the field rules; RunSubmit and RunSocialSubmit dispatch
// a validated submission to the gateway callbacks carried in SubmitDeps and
// report where the controller should end up. Neither holds state between
// calls, so they are exercised directly with stub dependencies.
//
// # Architecture boundaries
//
// Flow functions coordinate gateway calls, timeouts, audit emission and
// metrics. They do NOT own the controller lock or the loading flag; that stays
// with the Controller.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import credflow (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency functions.
package flows
