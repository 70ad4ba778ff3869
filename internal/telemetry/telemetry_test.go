package telemetry_test

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/gradrix/dendrite/internal/telemetry"
)

func TestNoopBundleDiscardsEverythingWithoutPanicking(t *testing.T) {
	bundle := telemetry.NewNoop()
	ctx := context.Background()

	bundle.Log.Debug(ctx, "msg", "k", "v")
	bundle.Log.Info(ctx, "msg")
	bundle.Log.Warn(ctx, "msg")
	bundle.Log.Error(ctx, "msg")

	bundle.Metrics.IncCounter("c", 1, "tag", "val")
	bundle.Metrics.RecordTimer("t", time.Millisecond)
	bundle.Metrics.RecordGauge("g", 1.5)

	spanCtx, span := bundle.Tracer.Start(ctx, "op")
	if spanCtx == nil {
		t.Fatal("Start must return a non-nil context")
	}
	span.AddEvent("event")
	span.SetStatus(codes.Ok, "done")
	span.RecordError(nil)
	span.End()
}

func TestNoopTracerPreservesIncomingContext(t *testing.T) {
	bundle := telemetry.NewNoop()
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "value")

	out, _ := bundle.Tracer.Start(ctx, "op")
	if out.Value(key{}) != "value" {
		t.Fatal("noop tracer must return the same context it was given")
	}
}
