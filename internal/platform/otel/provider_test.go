package otel_test

import (
	"context"
	"testing"

	"terrastream.ai/internal/platform/otel"
)

func TestSetupNoopWithoutEndpoint(t *testing.T) {
	t.Setenv("TERRASTREAM_OTEL_ENDPOINT", "")

	shutdown, err := otel.Setup(context.Background(), "terrastream-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("noop shutdown should not error: %v", err)
	}
}

func TestSetupNoopWhenDisabled(t *testing.T) {
	t.Setenv("TERRASTREAM_OTEL_ENDPOINT", "http://localhost:4318")
	t.Setenv("TERRASTREAM_OTEL_ENABLED", "false")

	shutdown, err := otel.Setup(context.Background(), "terrastream-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetupWithEndpoint(t *testing.T) {
	// Non-routable, nothing is exported before shutdown.
	t.Setenv("TERRASTREAM_OTEL_ENDPOINT", "http://192.0.2.1:4318")
	t.Setenv("TERRASTREAM_OTEL_SAMPLE_RATIO", "0.5")

	shutdown, err := otel.Setup(context.Background(), "terrastream-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetupRejectsBadRatio(t *testing.T) {
	t.Setenv("TERRASTREAM_OTEL_ENDPOINT", "http://192.0.2.1:4318")
	t.Setenv("TERRASTREAM_OTEL_SAMPLE_RATIO", "half")

	if _, err := otel.Setup(context.Background(), "terrastream-test"); err == nil {
		t.Fatalf("expected parse error")
	}
}
