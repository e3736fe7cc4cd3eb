package neurales

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/honeycombio/otel-config-go/otelconfig"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	Ns "github.com/maroda/neurales/server"
)

const tracerName = "github.com/maroda/neurales"

// InitOTelHNY uses the Honeycomb library to interface with OTel
func InitOTelHNY() (func(), error) {
	if Ns.FillEnvVar("HONEYCOMB_API_KEY") == "ENOENT" {
		slog.Warn("HONEYCOMB_API_KEY is not set, spans will be rejected")
	}
	otelShutdown, err := otelconfig.ConfigureOpenTelemetry()
	if err != nil {
		return nil, fmt.Errorf("failed to configure OpenTelemetry: %w", err)
	}
	return func() { otelShutdown() }, nil
}

// InitOTelGRF uses the Grafana recommended configuration including Baggage for propagation
func InitOTelGRF() (*sdktrace.TracerProvider, error) {
	exporter, err := otlptrace.New(context.Background(), otlptracehttp.NewClient())
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))
	return tp, err
}

// InitTelemetry picks an exporter by name and returns its shutdown func.
// An empty name leaves the global no-op provider in place.
func InitTelemetry(exporter string) (func(), error) {
	switch exporter {
	case "":
		return func() {}, nil
	case "honeycomb":
		return InitOTelHNY()
	case "otlp":
		tp, err := InitOTelGRF()
		if err != nil {
			return nil, fmt.Errorf("failed to configure OTLP exporter: %w", err)
		}
		return func() { _ = tp.Shutdown(context.Background()) }, nil
	default:
		return nil, fmt.Errorf("unknown telemetry exporter: %s", exporter)
	}
}

// StartSessionSpan opens the span that covers one streaming session
func StartSessionSpan(ctx context.Context, sessionID, source string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "eeg.stream",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("recording.source", source),
		))
}
