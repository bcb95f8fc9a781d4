// internal/telemetry/tracer.go
package telemetry

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/owl29bd/cctv-automation-backend/internal/config"
)

const instrumentationName = "github.com/owl29bd/cctv-automation-backend"

var tracerProvider *sdktrace.TracerProvider

// InitTracer installs a stdout span exporter when tracing is enabled.
// When it is disabled the global no-op provider stays in place.
func InitTracer(cfg config.TracingConfig, version string) error {
	if !cfg.Enabled {
		return nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return fmt.Errorf("failed to create stdout exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	tracerProvider = tp

	logrus.WithField("service", cfg.ServiceName).Info("Tracing enabled")
	return nil
}

// Tracer returns the named tracer from the global provider.
func Tracer(component string) trace.Tracer {
	return otel.Tracer(instrumentationName + "/" + component)
}

// ShutdownTracer flushes pending spans.
func ShutdownTracer(ctx context.Context) {
	if tracerProvider == nil {
		return
	}
	if err := tracerProvider.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("Error shutting down tracer provider")
	}
	tracerProvider = nil
}
