// Package telemetry sets up OpenTelemetry tracing and context propagation.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// TracerName is the instrumentation scope used by harvester spans.
const TracerName = "github.com/JakeFAU/standards-harvester"

// InitTracerProvider installs a global tracer provider tagged with the
// service name and run ID, and a W3C trace-context plus baggage propagator
// so spans carry into published download events.
func InitTracerProvider(ctx context.Context, serviceName, runID string) (*sdktrace.TracerProvider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			attribute.String("harvester.run_id", runID),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	// No exporter yet; spans exist for propagation into the event log.
	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp, nil
}
