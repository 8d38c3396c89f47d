package credflow

import (
	"testing"

	"go.uber.org/zap"
)

func TestBuildRequiresGateway(t *testing.T) {
	if _, err := New().Build(); err == nil {
		t.Fatal("expected error without gateway")
	}
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gateway.Timeout = -1
	if _, err := New().WithConfig(cfg).WithGateway(&fakeGateway{}).Build(); err == nil {
		t.Fatal("expected config validation error")
	}
}

func TestBuildSocialRequiresSocialGateway(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Social.Enabled = true
	cfg.Social.Providers = []string{"google"}
	if _, err := New().WithConfig(cfg).WithGateway(&fakeGateway{}).Build(); err == nil {
		t.Fatal("expected error for social without social gateway")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	b := New().WithGateway(&fakeGateway{}).WithLogger(zap.NewNop())
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestBuilderConfigIsCopied(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Social.Enabled = true
	cfg.Social.Providers = []string{"google"}

	engine, err := New().WithConfig(cfg).WithGateway(&fakeGateway{}).WithSocialGateway(&fakeSocial{}).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	cfg.Social.Providers[0] = "mutated"
	if got := engine.Config().Social.Providers[0]; got != "google" {
		t.Fatalf("expected engine config isolated from caller, got %q", got)
	}
}

func TestBuilderMetricsToggles(t *testing.T) {
	engine, err := New().
		WithGateway(&fakeGateway{}).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	c := engine.NewController()
	c.SetEmail("a@b.com")
	c.SetPassword("x")
	if _, err := c.Submit(t.Context()); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricSignInSuccess] != 1 {
		t.Fatalf("expected sign-in success 1, got %d", snap.Counters[MetricSignInSuccess])
	}
	var total uint64
	for _, v := range snap.Histograms[MetricGatewayLatency] {
		total += v
	}
	if total != 1 {
		t.Fatalf("expected one latency observation, got %d", total)
	}
}
