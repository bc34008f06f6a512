package observability

import (
	"context"
	"errors"
	"testing"
)

func TestNewTracerNoEndpointIsNoOp(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{ServiceName: "fleetsub-test"})
	defer shutdown(context.Background())

	ctx, span := tracer.Start(context.Background(), "watcher.flush")
	defer span.End()

	if ctx == nil {
		t.Fatal("expected a non-nil context")
	}
	if GetTraceID(ctx) != "" {
		t.Error("no-op tracer should not produce a recording span")
	}
}

func TestTracerRecordErrorOnNoOpSpanDoesNotPanic(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{ServiceName: "fleetsub-test"})
	defer shutdown(context.Background())

	_, span := tracer.Start(context.Background(), "enrich.session")
	defer span.End()

	tracer.RecordError(span, errors.New("boom"))
	// A no-op span silently accepts RecordError without panicking; the
	// real assertion here is that this doesn't crash.
}

func TestTraceWatcherFlushReturnsContext(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{ServiceName: "fleetsub-test"})
	defer shutdown(context.Background())

	ctx, span := tracer.TraceWatcherFlush(context.Background(), "sess-1", 3)
	defer span.End()
	if ctx == nil {
		t.Fatal("expected a non-nil context")
	}
}

func TestMapCarrierRoundTrips(t *testing.T) {
	carrier := make(MapCarrier)
	carrier.Set("traceparent", "00-abc-def-01")
	if got := carrier.Get("traceparent"); got != "00-abc-def-01" {
		t.Errorf("Get = %q", got)
	}
	keys := carrier.Keys()
	if len(keys) != 1 || keys[0] != "traceparent" {
		t.Errorf("Keys() = %#v", keys)
	}
}
