package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Service is the process-wide telemetry facade: it wraps an OTELBackend
// with sticky-metadata inheritance, contract enforcement, and context
// serialization. Unlike the reference implementation's module-level
// ContextVar, sticky metadata here is carried explicitly on
// context.Context, per Go's convention of threading cancellation and
// request-scoped values through an explicit parameter rather than
// ambient globals.
type Service struct {
	backend     *OTELBackend
	enforceMode EnforceMode

	mu        sync.RWMutex
	contracts map[string]Contract
}

// NewService creates a Service over backend with the given contract
// enforcement mode (EnforceOff disables contract checks entirely).
func NewService(backend *OTELBackend, enforceMode EnforceMode) *Service {
	return &Service{
		backend:     backend,
		enforceMode: enforceMode,
		contracts:   make(map[string]Contract),
	}
}

// RegisterContract declares the required-attribute contract for a named
// span. Re-registering a name overwrites its prior contract.
func (s *Service) RegisterContract(c Contract) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contracts[c.Name] = c
}

func (s *Service) lookupContract(name string) (Contract, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contracts[name]
	return c, ok
}

// StartSpan starts a new span as a child of ctx's active span (if any),
// performing the sticky-metadata sequencing described in SPEC_FULL.md
// §4.4:
//
//  1. Read the parent's sticky metadata (or start empty at the root).
//  2. Assign this span's event.seq from the parent's counter and
//     increment the parent's counter in place, so siblings started from
//     the same ctx see monotonically increasing sequence numbers.
//  3. Give this span's own context a COPY of the (now-incremented)
//     sticky metadata with its own counter reset to 0, so metadata this
//     span's children add is invisible to this span's siblings/parent.
//  4. Merge sticky metadata into the emitted attributes, redact and
//     bound everything, and auto-fill event.type/event.name.
//
// The returned context must be used for any further telemetry or
// downstream calls inside the span's scope; the caller must call
// span.End(svc) exactly once, typically via defer.
func (s *Service) StartSpan(ctx context.Context, name string, kind SpanKind, inputs map[string]any, attrs map[string]any) (context.Context, *Span) {
	parent := stickyFromContext(ctx)
	if parent == nil {
		parent = &stickyState{metadata: map[string]any{}}
	}

	eventSeq := parent.seq
	parent.seq++

	childMeta := parent.copyMetadata()
	child := &stickyState{metadata: childMeta, seq: 0}
	childCtx := context.WithValue(ctx, stickyKey, child)

	merged := make(map[string]any, len(childMeta)+len(attrs)+2)
	for k, v := range childMeta {
		merged[k] = v
	}
	for k, v := range attrs {
		merged[k] = v
	}
	merged["event.seq"] = eventSeq
	if _, ok := merged["event.type"]; !ok {
		merged["event.type"] = string(kind)
	}
	if _, ok := merged["event.name"]; !ok {
		merged["event.name"] = name
	}

	redacted := RedactRecursive(merged)
	bounded := make(map[string]any, len(redacted))
	for k, v := range redacted {
		bounded[k] = BoundAttribute(k, v)
	}

	spanCtx, otelSpan := s.backend.startOTELSpan(childCtx, name, bounded)

	span := &Span{otel: otelSpan, name: name, tracked: bounded}
	if inputs != nil {
		span.SetInputs(inputs)
	}
	return spanCtx, span
}

// UpdateCurrentTrace merges metadata into the active span's attributes
// and into ctx's sticky metadata, so every later sibling and descendant
// span started from (a context derived from) ctx inherits it.
func (s *Service) UpdateCurrentTrace(ctx context.Context, metadata map[string]any) {
	sticky := stickyFromContext(ctx)
	if sticky != nil {
		for k, v := range metadata {
			sticky.metadata[k] = v
		}
	}
	span := oteltrace.SpanFromContext(ctx)
	if span.IsRecording() {
		redacted := RedactRecursive(metadata)
		for k, v := range redacted {
			span.SetAttributes(toKeyValue(k, BoundAttribute(k, v)))
		}
	}
}

// validateContract runs contract enforcement for span on End, per the
// configured EnforceMode.
func (s *Service) validateContract(span *Span) {
	if s.enforceMode == EnforceOff {
		return
	}
	contract, ok := s.lookupContract(span.name)
	if !ok {
		return
	}
	missing := contract.Validate(span.TrackedAttributes(), span.HasError())
	if len(missing) == 0 {
		return
	}

	span.otel.AddEvent("telemetry.contract_violation", oteltrace.WithAttributes(
		toKeyValue("span_name", span.name),
		toKeyValue("missing_attributes", missing),
		toKeyValue("enforce_mode", string(s.enforceMode)),
	))
	if s.enforceMode == EnforceError {
		span.otel.SetStatus(codes.Error, "span attribute contract violated")
	}
}

// CurrentTraceID returns the active trace id (32 hex chars) from ctx, or
// "" if there is no recording span.
func (s *Service) CurrentTraceID(ctx context.Context) string {
	return currentTraceID(ctx)
}

// AddEvent adds a timed event to ctx's active span, if any.
func (s *Service) AddEvent(ctx context.Context, name string, attrs map[string]any) {
	span := oteltrace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	if attrs == nil {
		span.AddEvent(name)
		return
	}
	redacted := RedactRecursive(attrs)
	span.AddEvent(name, oteltrace.WithAttributes(toEventAttrs(redacted)...))
}

// Flush force-flushes the underlying backend.
func (s *Service) Flush(ctx context.Context) error {
	return s.backend.ForceFlush(ctx)
}

// CaptureContext snapshots ctx's active OTEL context (via W3C
// traceparent/tracestate propagation) plus its sticky metadata, for
// later cross-process restoration.
func (s *Service) CaptureContext(ctx context.Context) PropagatedContext {
	carrier := propagation.MapCarrier{}
	propagator.Inject(ctx, carrier)

	pc := PropagatedContext{
		TraceParent: carrier["traceparent"],
		TraceState:  carrier["tracestate"],
	}
	if sticky := stickyFromContext(ctx); sticky != nil {
		pc.StickyMetadata = sticky.copyMetadata()
	}
	return pc
}

// UseContext attaches pc onto a fresh base context, restoring both the
// W3C trace linkage and the sticky metadata that was active when pc was
// captured. The returned context should be used for the resumed scope.
func (s *Service) UseContext(base context.Context, pc PropagatedContext) context.Context {
	carrier := propagation.MapCarrier{}
	if pc.TraceParent != "" {
		carrier["traceparent"] = pc.TraceParent
	}
	if pc.TraceState != "" {
		carrier["tracestate"] = pc.TraceState
	}
	ctx := propagator.Extract(base, carrier)

	meta := pc.StickyMetadata
	if meta == nil {
		meta = map[string]any{}
	}
	ctx = context.WithValue(ctx, stickyKey, &stickyState{metadata: meta})
	return ctx
}

// SerializeContext renders pc as a plain string map suitable for JSON
// persistence (e.g. AgentState.telemetry_context in a checkpoint row).
func SerializeContext(pc PropagatedContext) map[string]any {
	out := map[string]any{
		"traceparent": pc.TraceParent,
		"tracestate":  pc.TraceState,
	}
	if pc.StickyMetadata != nil {
		out["_sticky_metadata"] = pc.StickyMetadata
	}
	return out
}

// DeserializeContext reverses SerializeContext.
func DeserializeContext(data map[string]any) PropagatedContext {
	pc := PropagatedContext{}
	if tp, ok := data["traceparent"].(string); ok {
		pc.TraceParent = tp
	}
	if ts, ok := data["tracestate"].(string); ok {
		pc.TraceState = ts
	}
	if sticky, ok := data["_sticky_metadata"].(map[string]any); ok {
		pc.StickyMetadata = sticky
	}
	return pc
}

var propagator = propagation.TraceContext{}
