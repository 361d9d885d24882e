package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// disabled backs NewNoopLogger, NewNoopMetrics, and NewNoopTracer: it is the
// default Logger/Metrics/Tracer an A2AServer or SessionManager runs with
// until a real backend (NewClueLogger, NewClueTracer, ...) is wired in via
// ServerOption/ManagerOption. Logger, Metrics, Tracer, and Span share no
// method names, so one zero-size value implements all four interfaces;
// Start hands back the receiver itself as the Span rather than allocating a
// second discard type per call.
type disabled struct{}

// NewNoopLogger returns a Logger that discards every call.
func NewNoopLogger() Logger { return disabled{} }

// NewNoopMetrics returns a Metrics that discards every call.
func NewNoopMetrics() Metrics { return disabled{} }

// NewNoopTracer returns a Tracer whose spans discard every call.
func NewNoopTracer() Tracer { return disabled{} }

func (disabled) Debug(context.Context, string, ...any) {}
func (disabled) Info(context.Context, string, ...any)  {}
func (disabled) Warn(context.Context, string, ...any)  {}
func (disabled) Error(context.Context, string, ...any) {}

func (disabled) IncCounter(string, float64, ...string)       {}
func (disabled) RecordTimer(string, time.Duration, ...string) {}
func (disabled) RecordGauge(string, float64, ...string)      {}

// Start satisfies Tracer.Start without starting anything: the incoming ctx
// is returned unchanged and d itself stands in as the Span.
func (d disabled) Start(ctx context.Context, _ string, _ ...trace.SpanStartOption) (context.Context, Span) {
	return ctx, d
}

// Span satisfies Tracer.Span; there is never a current span to return.
func (d disabled) Span(context.Context) Span { return d }

func (disabled) End(...trace.SpanEndOption)              {}
func (disabled) AddEvent(string, ...any)                 {}
func (disabled) SetStatus(codes.Code, string)            {}
func (disabled) RecordError(error, ...trace.EventOption) {}
