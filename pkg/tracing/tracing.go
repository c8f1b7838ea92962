// Package tracing sets up OpenTelemetry tracing for workflow runs.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys.
const (
	RunIDKey        = "pilot.run.id"
	WorkflowNameKey = "pilot.workflow.name"
	RowIDKey        = "pilot.row.id"
	StepIDKey       = "pilot.step.id"
	StepActionKey   = "pilot.step.action"
	StepAttemptsKey = "pilot.step.attempts"
	LocatorKey      = "pilot.locator.name"
	StrategyKey     = "pilot.locator.strategy"
	StatusKey       = "pilot.run.status"
)

// Config selects the exporter.
type Config struct {
	Enabled     bool
	ServiceName string
	// Endpoint is the OTLP/HTTP host:port. Empty uses the OTEL_EXPORTER_OTLP_* environment.
	Endpoint string
	Insecure bool
}

// Shutdown flushes and stops the tracer provider.
type Shutdown func(ctx context.Context) error

// Setup returns a tracer for cfg. When tracing is disabled it returns the global
// tracer, which is a no-op unless something else installed a provider.
//
// nolint:ireturn
func Setup(ctx context.Context, cfg Config) (trace.Tracer, Shutdown, error) {
	name := cfg.ServiceName
	if name == "" {
		name = "pilot"
	}
	if !cfg.Enabled {
		return otel.Tracer(name), func(context.Context) error { return nil }, nil
	}

	r, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(name)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build trace resource: %w", err)
	}

	var opts []otlptracehttp.Option
	if cfg.Endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(r),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}))

	return tp.Tracer(name), tp.Shutdown, nil
}

// StartSpan starts a span with attrs.
//
// nolint:ireturn,spancheck
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// SetError marks span as failed with err.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.AddEvent("error_occurred", trace.WithAttributes(attrs...))
}
