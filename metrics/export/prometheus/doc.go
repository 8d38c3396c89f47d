// Package prometheus renders credflow metrics in Prometheus text exposition
// format.
//
// [NewPrometheusExporter] accepts a [credflow.Engine] and exposes an
// [http.Handler]. Counter names are prefixed credflow_*_total; the single
// histogram is credflow_gateway_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus
