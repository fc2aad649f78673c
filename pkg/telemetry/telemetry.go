// Package telemetry provides distributed tracing for workflow executions.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otlptracehttp "go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Span attribute keys.
const (
	WorkflowIDKey  = "flowdeck.workflow.id"
	ExecutionIDKey = "flowdeck.execution.id"
	UserIDKey      = "flowdeck.user.id"
	TriggerKey     = "flowdeck.execution.trigger"
	BlockIDKey     = "flowdeck.block.id"
	BlockTypeKey   = "flowdeck.block.type"
	DocumentIDKey  = "flowdeck.document.id"
	BatchSizeKey   = "flowdeck.batch.size"
)

// Provider owns the tracer provider so callers can flush spans on
// shutdown.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// NewProvider configures an OTLP/HTTP exporter and installs it as the
// global tracer provider. The exporter endpoint comes from the
// standard OTEL_EXPORTER_OTLP_* environment variables.
func NewProvider(ctx context.Context, serviceName string) (*Provider, error) {
	r, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(r),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}))

	return &Provider{tp: tp}, nil
}

// Tracer returns a named tracer from the installed provider.
func (p *Provider) Tracer(name string) trace.Tracer {
	return p.tp.Tracer(name)
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.tp.Shutdown(ctx)
}

// NoopTracer returns a tracer that records nothing. Used by tests and
// by deployments that run without a collector.
func NoopTracer() trace.Tracer {
	return noop.NewTracerProvider().Tracer("noop")
}

// StartSpan opens a span with the given attributes.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// SetError records err on the span and marks it failed.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.AddEvent("error_occurred", trace.WithAttributes(attrs...))
}
