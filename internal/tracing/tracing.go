// Package tracing installs the OpenTelemetry exporter for locamap and
// provides span helpers for the engine's remote calls.
package tracing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Exporter names accepted in Options.Exporter.
const (
	ExporterOTLPGRPC = "otlp-grpc"
	ExporterOTLPHTTP = "otlp-http"
)

// ServiceVersion is reported as service.version on every span.
const ServiceVersion = "0.1.0"

const exporterDialTimeout = 10 * time.Second

// ErrUnknownExporter is returned by Setup for an exporter name it cannot build.
var ErrUnknownExporter = errors.New("unknown trace exporter")

// Options selects where spans go. The zero value disables tracing.
type Options struct {
	Enabled     bool
	Service     string
	Environment string
	Exporter    string // ExporterOTLPHTTP when empty
	Endpoint    string // collector host:port; exporter default when empty
	SampleRate  float64
	Insecure    bool
}

// ShutdownFunc flushes pending spans and releases the exporter.
type ShutdownFunc func(context.Context) error

func noopShutdown(context.Context) error { return nil }

type exporterFunc func(context.Context, Options) (sdktrace.SpanExporter, error)

var exporters = map[string]exporterFunc{
	ExporterOTLPHTTP: func(ctx context.Context, o Options) (sdktrace.SpanExporter, error) {
		var opts []otlptracehttp.Option
		if o.Endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(o.Endpoint))
		}
		if o.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	},
	ExporterOTLPGRPC: func(ctx context.Context, o Options) (sdktrace.SpanExporter, error) {
		var opts []otlptracegrpc.Option
		if o.Endpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(o.Endpoint))
		}
		if o.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)
	},
}

// Setup installs a global tracer provider built from opts and returns its
// shutdown function. When tracing is disabled the global no-op provider is
// left in place and the returned function does nothing.
func Setup(ctx context.Context, opts Options, logger *slog.Logger) (ShutdownFunc, error) {
	if !opts.Enabled {
		logger.Info("tracing disabled")
		return noopShutdown, nil
	}
	if opts.Service == "" {
		return nil, errors.New("tracing: service name is required")
	}
	if opts.SampleRate < 0 || opts.SampleRate > 1 {
		return nil, fmt.Errorf("tracing: sample rate must be between 0 and 1, got %g", opts.SampleRate)
	}
	if opts.Exporter == "" {
		opts.Exporter = ExporterOTLPHTTP
	}
	newExporter, ok := exporters[opts.Exporter]
	if !ok {
		return nil, fmt.Errorf("tracing: %w: %q", ErrUnknownExporter, opts.Exporter)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(opts.Service),
		semconv.ServiceVersion(ServiceVersion),
		attribute.String("environment", opts.Environment),
	))
	if err != nil {
		return nil, fmt.Errorf("tracing: resource: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, exporterDialTimeout)
	defer cancel()
	exp, err := newExporter(dialCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("tracing: %s exporter: %w", opts.Exporter, err)
	}

	// TraceIDRatioBased samples everything at 1 and nothing at 0.
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opts.SampleRate))),
		sdktrace.WithBatcher(exp, sdktrace.WithBatchTimeout(5*time.Second)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("tracing enabled",
		slog.String("exporter", opts.Exporter),
		slog.String("endpoint", opts.Endpoint),
		slog.Float64("sample_rate", opts.SampleRate),
	)
	return tp.Shutdown, nil
}
