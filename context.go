package credflow

import "context"

type clientIPContextKey struct{}
type userAgentContextKey struct{}
type formIDContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. It is copied into
// audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the client User-Agent to ctx for audit metadata.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// WithFormID attaches the presentation-layer form identifier to ctx.
func WithFormID(ctx context.Context, formID string) context.Context {
	return context.WithValue(ctx, formIDContextKey{}, formID)
}

// ClientIPFromContext returns the IP set by WithClientIP, or "".
func ClientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}

func formIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	formID, _ := ctx.Value(formIDContextKey{}).(string)
	return formID
}

type modeContextKey struct{}

func withMode(ctx context.Context, mode FlowMode) context.Context {
	return context.WithValue(ctx, modeContextKey{}, mode)
}

func modeFromContext(ctx context.Context) FlowMode {
	if ctx == nil {
		return ModeSignIn
	}

	mode, _ := ctx.Value(modeContextKey{}).(FlowMode)
	return mode
}
