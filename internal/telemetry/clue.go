package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	cluelog "goa.design/clue/log"
)

type (
	clueLogger struct{}

	clueMetrics struct {
		meter metric.Meter
	}

	clueTracer struct {
		tracer trace.Tracer
	}

	clueSpan struct {
		span trace.Span
	}
)

// NewClue builds a Bundle that delegates logging to goa.design/clue/log and
// metrics/tracing to the global OpenTelemetry providers. Callers configure
// the providers (via clue.ConfigureOpenTelemetry or OTEL_EXPORTER_OTLP_*
// environment variables) before constructing the bundle.
func NewClue() Bundle {
	return Bundle{
		Log:     clueLogger{},
		Metrics: &clueMetrics{meter: otel.Meter("github.com/gradrix/dendrite")},
		Tracer:  &clueTracer{tracer: otel.Tracer("github.com/gradrix/dendrite")},
	}
}

func (clueLogger) Debug(ctx context.Context, msg string, keyvals ...any) {
	cluelog.Debug(ctx, msg, toFields(keyvals)...)
}

func (clueLogger) Info(ctx context.Context, msg string, keyvals ...any) {
	cluelog.Info(ctx, msg, toFields(keyvals)...)
}

func (clueLogger) Warn(ctx context.Context, msg string, keyvals ...any) {
	cluelog.Print(ctx, msg, toFields(keyvals)...)
}

func (clueLogger) Error(ctx context.Context, msg string, keyvals ...any) {
	cluelog.Error(ctx, fmt.Errorf("%s", msg), toFields(keyvals)...)
}

func toFields(keyvals []any) []cluelog.Fielder {
	fields := cluelog.Fields{}
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		fields[key] = keyvals[i+1]
	}
	return []cluelog.Fielder{fields}
}

func (m *clueMetrics) IncCounter(name string, value float64, tags ...string) {
	counter, err := m.meter.Float64Counter(name)
	if err != nil {
		return
	}
	counter.Add(context.Background(), value, metric.WithAttributes(attrsFromTags(tags)...))
}

func (m *clueMetrics) RecordTimer(name string, duration time.Duration, tags ...string) {
	hist, err := m.meter.Float64Histogram(name)
	if err != nil {
		return
	}
	hist.Record(context.Background(), duration.Seconds(), metric.WithAttributes(attrsFromTags(tags)...))
}

func (m *clueMetrics) RecordGauge(name string, value float64, tags ...string) {
	gauge, err := m.meter.Float64Gauge(name)
	if err != nil {
		return
	}
	gauge.Record(context.Background(), value, metric.WithAttributes(attrsFromTags(tags)...))
}

func (t *clueTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name, opts...)
	return ctx, &clueSpan{span: span}
}

func (s *clueSpan) End(opts ...trace.SpanEndOption) { s.span.End(opts...) }
func (s *clueSpan) AddEvent(name string, attrs ...any) {
	s.span.AddEvent(name)
	_ = attrs
}
func (s *clueSpan) SetStatus(code codes.Code, description string) {
	s.span.SetStatus(code, description)
}
func (s *clueSpan) RecordError(err error, opts ...trace.EventOption) {
	s.span.RecordError(err, opts...)
}

func attrsFromTags(tags []string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(tags)/2)
	for i := 0; i+1 < len(tags); i += 2 {
		attrs = append(attrs, attribute.String(tags[i], tags[i+1]))
	}
	return attrs
}
