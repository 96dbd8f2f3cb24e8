package requestctx

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestLoggerRoundTrip(t *testing.T) {
	logger := zap.NewExample()
	ctx := WithLogger(context.Background(), logger)

	if got := Logger(ctx); got != logger {
		t.Fatal("expected stored logger back from context")
	}
}

func TestLoggerDefaultsToNoop(t *testing.T) {
	if got := Logger(context.Background()); got != NoopLogger() {
		t.Fatal("expected noop logger for empty context")
	}
}

func TestTraceRoundTrip(t *testing.T) {
	info := TraceInfo{TraceID: "abc123", SpanID: "def456", Sampled: true, ProjectID: "proj"}
	ctx := WithTrace(context.Background(), info)

	got, ok := Trace(ctx)
	if !ok || got != info {
		t.Fatalf("expected trace info back, got %+v (ok=%v)", got, ok)
	}
	if TraceID(ctx) != "abc123" {
		t.Fatalf("unexpected trace id %q", TraceID(ctx))
	}

	if _, ok := Trace(context.Background()); ok {
		t.Fatal("expected no trace info on empty context")
	}
}
