// Package tracing provides the tracer behind the "Reconcile" span opened per
// cycle and the "DeleteNode" span opened per delete attempt.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/docent-net/stale-node-controller"

// Init installs a stdout-exporting tracer provider. When disabled the global
// no-op provider stays in place and spans cost nothing.
func Init(serviceName string, enabled bool) error {
	if !enabled {
		return nil
	}
	exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		)),
	)

	otel.SetTracerProvider(tp)
	return nil
}

// Tracer returns the controller's tracer from the global provider, so spans
// are no-ops until Init enables export.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

func Shutdown(ctx context.Context) error {
	if tp, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); ok {
		return tp.Shutdown(ctx)
	}
	return nil
}
