package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Span is the concrete handle returned by Service.StartSpan. It tracks
// every attribute set on it (redacted and bounded) so contract
// enforcement can inspect the final attribute set on exit.
type Span struct {
	otel     oteltrace.Span
	name     string
	tracked  map[string]any
	hasError bool
}

// SetInputs records inputs on the span under a single bounded, hashed
// JSON blob, mirroring the backend's input/output payload convention.
func (s *Span) SetInputs(inputs map[string]any) {
	s.setPayload("telemetry.inputs", inputs)
}

// SetOutputs records outputs the same way as SetInputs, additionally
// flagging the span as errored if outputs carries an "error" key.
func (s *Span) SetOutputs(outputs map[string]any) {
	s.setPayload("telemetry.outputs", outputs)
	if errVal, ok := outputs["error"]; ok && errVal != nil {
		s.hasError = true
		msg := fmt.Sprintf("%v", errVal)
		s.otel.SetStatus(codes.Error, msg)
		s.SetAttribute("error", msg)
	}
}

func (s *Span) setPayload(prefix string, payload map[string]any) {
	jsonStr, truncated, size, hash := TruncateJSON(payload)
	s.SetAttribute(prefix, jsonStr)
	s.SetAttribute(prefix+".size", size)
	s.SetAttribute(prefix+".hash", hash)
	if truncated {
		s.SetAttribute(prefix+".truncated", true)
	}
}

// SetAttribute sets one attribute, after redaction and bounding.
func (s *Span) SetAttribute(key string, value any) {
	redacted := RedactRecursive(map[string]any{key: value})[key]
	bounded := BoundAttribute(key, redacted)
	s.otel.SetAttributes(toKeyValue(key, bounded))
	s.tracked[key] = bounded
	if key == "error" || key == "error.category" || key == "error.type" {
		s.hasError = true
	}
}

// SetAttributes sets multiple attributes at once.
func (s *Span) SetAttributes(attrs map[string]any) {
	redacted := RedactRecursive(attrs)
	for k, v := range redacted {
		bounded := BoundAttribute(k, v)
		s.otel.SetAttributes(toKeyValue(k, bounded))
		s.tracked[k] = bounded
		if k == "error" || k == "error.category" || k == "error.type" {
			s.hasError = true
		}
	}
}

// AddEvent adds a timed event to the span, with attribute redaction.
func (s *Span) AddEvent(name string, attrs map[string]any) {
	if attrs == nil {
		s.otel.AddEvent(name)
		return
	}
	redacted := RedactRecursive(attrs)
	var kvs []attribute.KeyValue
	for k, v := range redacted {
		kvs = append(kvs, toKeyValue(k, BoundAttribute(k, v)))
	}
	s.otel.AddEvent(name, oteltrace.WithAttributes(kvs...))
}

// TrackedAttributes returns a copy of every attribute set on this span so
// far, used by contract enforcement.
func (s *Span) TrackedAttributes() map[string]any {
	out := make(map[string]any, len(s.tracked))
	for k, v := range s.tracked {
		out[k] = v
	}
	return out
}

// HasError reports whether SetOutputs or SetAttribute(s) recorded an
// error on this span.
func (s *Span) HasError() bool { return s.hasError }

// End finalizes the span: validates its attribute contract (if one is
// registered for its name) and ends the underlying OTEL span.
func (s *Span) End(svc *Service) {
	svc.validateContract(s)
	s.otel.End()
}

func toKeyValue(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case []string:
		return attribute.StringSlice(key, v)
	default:
		jsonStr, _, _, _ := TruncateJSON(v)
		return attribute.String(key, jsonStr)
	}
}

// toEventAttrs bridges a redacted, unbounded attribute map into a
// attribute.KeyValue slice, applying BoundAttribute per value.
func toEventAttrs(attrs map[string]any) []attribute.KeyValue {
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		kvs = append(kvs, toKeyValue(k, BoundAttribute(k, v)))
	}
	return kvs
}

// logUnexpected logs at debug level, matching the teacher's pattern of
// never letting telemetry instrumentation failures break the calling
// request.
func logUnexpected(op string, err error) {
	slog.Debug("telemetry instrumentation failure", "op", op, "error", err)
}
