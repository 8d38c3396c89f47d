package internaldefs

import (
	"github.com/MrEthical07/credflow"
)

// CounterDef maps a credflow counter to its exported name.
type CounterDef struct {
	ID   credflow.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   credflow.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: credflow.MetricSignInSuccess, Name: "credflow_sign_in_success_total", Help: "Successful sign-in gateway calls."},
	{ID: credflow.MetricSignInFailure, Name: "credflow_sign_in_failure_total", Help: "Failed sign-in gateway calls."},
	{ID: credflow.MetricSignUpSuccess, Name: "credflow_sign_up_success_total", Help: "Accounts created through the sign-up flow."},
	{ID: credflow.MetricSignUpFailure, Name: "credflow_sign_up_failure_total", Help: "Failed sign-up gateway calls."},
	{ID: credflow.MetricPasswordResetSuccess, Name: "credflow_password_reset_sent_total", Help: "Password reset messages dispatched."},
	{ID: credflow.MetricPasswordResetFailure, Name: "credflow_password_reset_failure_total", Help: "Failed password reset gateway calls."},
	{ID: credflow.MetricSocialSignInSuccess, Name: "credflow_social_sign_in_success_total", Help: "Successful social sign-ins."},
	{ID: credflow.MetricSocialSignInFailure, Name: "credflow_social_sign_in_failure_total", Help: "Failed social sign-ins."},
	{ID: credflow.MetricValidationRejected, Name: "credflow_validation_rejected_total", Help: "Submissions rejected by field validation."},
	{ID: credflow.MetricSubmitInFlightRejected, Name: "credflow_submit_in_flight_rejected_total", Help: "Submissions rejected while another was outstanding."},
	{ID: credflow.MetricGatewayTimeout, Name: "credflow_gateway_timeout_total", Help: "Gateway calls that hit the configured timeout."},
	{ID: credflow.MetricAuthenticated, Name: "credflow_authenticated_total", Help: "Forms that reached the authenticated state."},
	{ID: credflow.MetricModeChanged, Name: "credflow_mode_changed_total", Help: "Flow mode transitions."},
}

var HistogramDefs = []HistogramDef{
	{ID: credflow.MetricGatewayLatency, Name: "credflow_gateway_latency_seconds", Help: "Gateway call latency histogram."},
}

// HistogramBounds are the upper bucket edges in seconds, matching the
// buckets of credflow.Metrics.
var HistogramBounds = []string{
	"0.01",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"5",
	"+Inf",
}

var HistogramBoundSuffix = []string{
	"0_01",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
