package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/onnwee/locamap"

// StoreOperation is the kind of call made to a remote store.
type StoreOperation string

const (
	StoreOpRead   StoreOperation = "read"
	StoreOpCreate StoreOperation = "create"
	StoreOpDelete StoreOperation = "delete"
	StoreOpAppend StoreOperation = "append"
	StoreOpRemove StoreOperation = "remove"
	StoreOpPut    StoreOperation = "put"
)

// StartStoreSpan creates a client span for a call to a remote store.
// system names the backend ("redis", "s3"), target the collection or bucket.
//
//	ctx, end := tracing.StartStoreSpan(ctx, "redis", tracing.StoreOpAppend, "locations")
//	defer func() { end(err) }()
func StartStoreSpan(ctx context.Context, system string, op StoreOperation, target string) (context.Context, func(error)) {
	spanName := string(op)
	if target != "" {
		spanName += " " + target
	}

	ctx, span := otel.Tracer(instrumentationName).Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("store.system", system),
			attribute.String("store.operation", string(op)),
		),
	)
	if target != "" {
		span.SetAttributes(attribute.String("store.target", target))
	}

	return ctx, endFunc(span)
}

// StartSpan creates an internal span for a general operation.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, endFunc(span)
}

func endFunc(span trace.Span) func(error) {
	return func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// AddEvent adds an event to the current span.
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}
