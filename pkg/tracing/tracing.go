// Package tracing wraps the OpenTelemetry SDK to produce spans around Run
// and Step execution.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "agentrunner"
	ServiceName          = "agent-runner"
)

// Provider owns the process-wide TracerProvider and must be shut down on exit.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// NewProvider builds a TracerProvider exporting to an OTLP/HTTP collector at
// endpoint. An empty endpoint yields a provider with no span processor
// (spans are created but dropped), so tracing stays opt-in via config.
func NewProvider(ctx context.Context, version, endpoint string) (*Provider, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}

	if endpoint != "" {
		exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
		if err != nil {
			return nil, fmt.Errorf("build otlp exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)

	return &Provider{tp: tp}, nil
}

// Shutdown flushes pending spans and releases exporter resources.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.tp.Shutdown(ctx)
}

func tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StartRun opens a span covering one Run's full execution, from claim to
// terminal state.
func StartRun(ctx context.Context, runID, runType, projectID string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "run.execute",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("run.type", runType),
			attribute.String("project.id", projectID),
		),
	)
}

// StartStep opens a span covering a single Workflow Engine step.
func StartStep(ctx context.Context, stepName, stepType, model string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "workflow.step",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("step.name", stepName),
			attribute.String("step.type", stepType),
			attribute.String("step.model", model),
		),
	)
}

// End records err (if any) on span and closes it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
