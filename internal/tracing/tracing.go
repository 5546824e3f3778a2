// Package tracing configures the process-wide OpenTelemetry trace
// provider. No exporter or SpanProcessor is registered here, and no
// OTEL_* environment variable is read, so spans are not exported; this
// package's job is only to make sure every Tracer() call returns a
// provider-backed tracer instead of the no-op default.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/slopoverlord/slopoverlord"

// Setup installs a process-wide TracerProvider tagged with serviceName
// and returns its shutdown func. Safe to call once per process; the
// provider is registered globally via otel.SetTracerProvider.
func Setup(ctx context.Context, serviceName, version string) (shutdown func(context.Context) error, err error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// Tracer returns the package-wide named tracer, resolved against
// whatever TracerProvider Setup installed (or the no-op default if it
// was never called, e.g. in unit tests).
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}
