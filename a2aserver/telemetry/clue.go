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
	"goa.design/clue/log"
)

// instrumentationName identifies this package's metrics and spans to OTEL,
// independent of which caller (a2aserver, a2ahttp, ...) actually started
// them.
const instrumentationName = "goa.design/a2a-runtime/a2aserver"

// clueLogger delegates to goa.design/clue/log, which in turn reads
// formatting and debug settings off the context (log.Context,
// log.WithFormat, log.WithDebug).
type clueLogger struct{}

// NewClueLogger constructs a Logger backed by goa.design/clue/log.
func NewClueLogger() Logger { return clueLogger{} }

func (clueLogger) Debug(ctx context.Context, msg string, keyvals ...any) {
	log.Debug(ctx, withMessage(msg, keyvals)...)
}

func (clueLogger) Info(ctx context.Context, msg string, keyvals ...any) {
	log.Info(ctx, withMessage(msg, keyvals)...)
}

func (clueLogger) Warn(ctx context.Context, msg string, keyvals ...any) {
	fields := withMessage(msg, keyvals)
	fields = append(fields, log.KV{K: "severity", V: "warning"})
	log.Warn(ctx, fields...)
}

func (clueLogger) Error(ctx context.Context, msg string, keyvals ...any) {
	log.Error(ctx, nil, withMessage(msg, keyvals)...)
}

func withMessage(msg string, keyvals []any) []log.Fielder {
	fields := make([]log.Fielder, 0, 1+len(keyvals)/2)
	fields = append(fields, log.KV{K: "msg", V: msg})
	return appendFielders(fields, keyvals)
}

// appendFielders walks keyvals in (key, value) pairs and appends one
// log.KV per pair. A non-string key, or a trailing key with no paired
// value, is skipped rather than guessed at.
func appendFielders(fields []log.Fielder, keyvals []any) []log.Fielder {
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, log.KV{K: key, V: keyvals[i+1]})
	}
	return fields
}

// otelMetrics records counters, timers, and gauges against an OTEL Meter.
// Instruments are created lazily per call rather than cached: the handful
// of distinct metric names this runtime emits (§ tracing/metrics) makes the
// repeated lookup cost negligible against the clarity of not managing an
// instrument cache.
type otelMetrics struct {
	meter metric.Meter
}

// NewClueMetrics constructs a Metrics backed by the global OTEL
// MeterProvider. Configure the provider (via clue.ConfigureOpenTelemetry or
// otel.SetMeterProvider) before any runtime metric is recorded.
func NewClueMetrics() Metrics {
	return otelMetrics{meter: otel.Meter(instrumentationName)}
}

func (m otelMetrics) IncCounter(name string, value float64, tags ...string) {
	counter, err := m.meter.Float64Counter(name)
	if err != nil {
		return
	}
	counter.Add(context.Background(), value, metric.WithAttributes(attrsFromPairs(tags)...))
}

func (m otelMetrics) RecordTimer(name string, duration time.Duration, tags ...string) {
	histogram, err := m.meter.Float64Histogram(name)
	if err != nil {
		return
	}
	histogram.Record(context.Background(), duration.Seconds(), metric.WithAttributes(attrsFromPairs(tags)...))
}

// RecordGauge records value against a histogram instrument suffixed
// "_gauge": OTEL's metric API exposes gauges only as asynchronous
// (callback-driven) instruments, which don't fit this interface's
// synchronous RecordGauge call.
func (m otelMetrics) RecordGauge(name string, value float64, tags ...string) {
	histogram, err := m.meter.Float64Histogram(name + "_gauge")
	if err != nil {
		return
	}
	histogram.Record(context.Background(), value, metric.WithAttributes(attrsFromPairs(tags)...))
}

// otelTracer starts spans against an OTEL Tracer.
type otelTracer struct {
	tracer trace.Tracer
}

// NewClueTracer constructs a Tracer backed by the global OTEL
// TracerProvider. Configure the provider (via clue.ConfigureOpenTelemetry,
// otel.SetTracerProvider, or OTEL_EXPORTER_OTLP_ENDPOINT) before any
// runtime span is started.
func NewClueTracer() Tracer {
	return otelTracer{tracer: otel.Tracer(instrumentationName)}
}

func (t otelTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name, opts...)
	return ctx, otelSpan{span: span}
}

func (t otelTracer) Span(ctx context.Context) Span {
	return otelSpan{span: trace.SpanFromContext(ctx)}
}

// otelSpan adapts a live trace.Span to this package's Span interface.
type otelSpan struct {
	span trace.Span
}

func (s otelSpan) End(opts ...trace.SpanEndOption) { s.span.End(opts...) }

func (s otelSpan) AddEvent(name string, attrs ...any) {
	s.span.AddEvent(name, trace.WithAttributes(attrsFromKeyvals(attrs)...))
}

func (s otelSpan) SetStatus(code codes.Code, description string) { s.span.SetStatus(code, description) }

func (s otelSpan) RecordError(err error, opts ...trace.EventOption) { s.span.RecordError(err, opts...) }

// attrsFromPairs converts metric tag pairs (k1, v1, k2, ...), all strings,
// into OTEL attributes. An unpaired trailing key is given an empty value.
func attrsFromPairs(tags []string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, (len(tags)+1)/2)
	for i := 0; i < len(tags); i += 2 {
		var v string
		if i+1 < len(tags) {
			v = tags[i+1]
		}
		attrs = append(attrs, attribute.String(tags[i], v))
	}
	return attrs
}

// attrsFromKeyvals converts span event key-value pairs (k1, v1, k2, ...) —
// values of arbitrary type — into OTEL attributes, falling back to a string
// conversion for types with no dedicated attribute constructor.
func attrsFromKeyvals(keyvals []any) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, (len(keyvals)+1)/2)
	for i := 0; i < len(keyvals); i += 2 {
		key, _ := keyvals[i].(string)
		var val any
		if i+1 < len(keyvals) {
			val = keyvals[i+1]
		}
		switch v := val.(type) {
		case string:
			attrs = append(attrs, attribute.String(key, v))
		case int:
			attrs = append(attrs, attribute.Int(key, v))
		case int64:
			attrs = append(attrs, attribute.Int64(key, v))
		case float64:
			attrs = append(attrs, attribute.Float64(key, v))
		case bool:
			attrs = append(attrs, attribute.Bool(key, v))
		default:
			attrs = append(attrs, attribute.String(key, fmt.Sprint(v)))
		}
	}
	return attrs
}
