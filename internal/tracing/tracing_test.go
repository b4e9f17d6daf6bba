package tracing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// keepGlobalProvider restores the global tracer provider after the test.
func keepGlobalProvider(t *testing.T) {
	t.Helper()
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
}

func TestSetup_Disabled(t *testing.T) {
	keepGlobalProvider(t)
	before := otel.GetTracerProvider()

	shutdown, err := Setup(context.Background(), Options{Service: "locamap"}, quietLogger())
	if err != nil {
		t.Fatalf("Setup() unexpected error = %v", err)
	}
	if otel.GetTracerProvider() != before {
		t.Error("disabled tracing must not replace the global provider")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() on disabled tracing = %v", err)
	}
}

func TestSetup_RejectsBadOptions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"missing service name", Options{Enabled: true, SampleRate: 0.1}},
		{"negative sampling", Options{Service: "locamap", Enabled: true, SampleRate: -0.1}},
		{"sampling above one", Options{Service: "locamap", Enabled: true, SampleRate: 1.5}},
		{"unknown exporter", Options{Service: "locamap", Enabled: true, Exporter: "zipkin", SampleRate: 0.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keepGlobalProvider(t)
			if _, err := Setup(context.Background(), tt.opts, quietLogger()); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestSetup_UnknownExporterIsTyped(t *testing.T) {
	keepGlobalProvider(t)
	_, err := Setup(context.Background(), Options{Service: "locamap", Enabled: true, Exporter: "zipkin"}, quietLogger())
	if !errors.Is(err, ErrUnknownExporter) {
		t.Errorf("Setup() = %v, want ErrUnknownExporter", err)
	}
}

func TestSetup_Exporters(t *testing.T) {
	tests := []struct {
		name       string
		exporter   string
		sampleRate float64
		endpoint   string
	}{
		{"otlp-http", ExporterOTLPHTTP, 0.1, "localhost:4318"},
		{"otlp-grpc", ExporterOTLPGRPC, 1.0, "localhost:4317"},
		{"default exporter", "", 0.0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keepGlobalProvider(t)
			before := otel.GetTracerProvider()

			shutdown, err := Setup(context.Background(), Options{
				Enabled:     true,
				Service:     "locamap",
				Environment: "test",
				Exporter:    tt.exporter,
				Endpoint:    tt.endpoint,
				SampleRate:  tt.sampleRate,
				Insecure:    true,
			}, quietLogger())
			if err != nil {
				t.Fatalf("Setup() unexpected error = %v", err)
			}
			if otel.GetTracerProvider() == before {
				t.Error("expected a new global tracer provider")
			}

			_, end := StartSpan(context.Background(), "geocode.resolve")
			end(nil)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				t.Errorf("shutdown() unexpected error = %v", err)
			}
		})
	}
}
