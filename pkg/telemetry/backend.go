package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// BackendConfig configures the OTEL-backed provider. Exporter is
// supplied by the caller (e.g. an OTLP gRPC or HTTP exporter wired in
// cmd/sqlagent) so this package never has to pick one for the deployer;
// a nil Exporter yields a TracerProvider that records spans in-process
// without exporting them, matching the test-mode fallback.
type BackendConfig struct {
	ServiceName string
	Exporter    sdktrace.SpanExporter
}

// OTELBackend owns the process-wide TracerProvider and vends a named
// tracer. It is the concrete, promoted-to-direct use of the OTEL SDK
// described in SPEC_FULL.md §11.
type OTELBackend struct {
	tracerName string
	provider   *sdktrace.TracerProvider
	tracer     oteltrace.Tracer
}

// NewOTELBackend configures a TracerProvider per cfg and returns a
// backend bound to tracerName. Call Shutdown on process exit to flush
// any pending spans.
func NewOTELBackend(tracerName string, cfg BackendConfig) (*OTELBackend, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(semconv.ServiceName(cfg.ServiceName)),
	)
	if err != nil {
		return nil, err
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.Exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(cfg.Exporter))
	}
	provider := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)

	return &OTELBackend{
		tracerName: tracerName,
		provider:   provider,
		tracer:     provider.Tracer(tracerName),
	}, nil
}

// Shutdown flushes and releases the underlying TracerProvider.
func (b *OTELBackend) Shutdown(ctx context.Context) error {
	return b.provider.Shutdown(ctx)
}

// ForceFlush force-flushes all pending spans, honoring ctx's deadline.
func (b *OTELBackend) ForceFlush(ctx context.Context) error {
	return b.provider.ForceFlush(ctx)
}

// startOTELSpan starts the underlying OTEL span with kind fixed to
// Internal, matching the teacher spec's "OTEL SpanKind is usually
// INTERNAL for these" convention for logical (non-transport) spans.
func (b *OTELBackend) startOTELSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, oteltrace.Span) {
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		kvs = append(kvs, toKeyValue(k, v))
	}
	return b.tracer.Start(ctx, name, oteltrace.WithSpanKind(oteltrace.SpanKindInternal), oteltrace.WithAttributes(kvs...))
}

// currentTraceID returns the 32-hex-char trace id of ctx's active span,
// or "" if there is none or it is invalid.
func currentTraceID(ctx context.Context) string {
	span := oteltrace.SpanFromContext(ctx)
	sc := span.SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
