// Package telemetry provides a backend-agnostic span and metadata
// propagation layer over OpenTelemetry: hierarchical spans with sticky
// metadata inheritance, deterministic sibling sequencing, redacted and
// size-bounded attributes, contract enforcement, and context
// serialization for cross-process propagation, per SPEC_FULL.md §4.4.
package telemetry

import (
	"context"
)

// SpanKind is the semantic span type, independent of OTEL's own
// transport-level SpanKind (which this package always sets to Internal).
type SpanKind string

const (
	SpanKindChain     SpanKind = "CHAIN"
	SpanKindTool      SpanKind = "TOOL"
	SpanKindRetriever SpanKind = "RETRIEVER"
	SpanKindChatModel SpanKind = "CHAT_MODEL"
	SpanKindParser    SpanKind = "PARSER"
	SpanKindUnknown   SpanKind = "UNKNOWN"
)

// EnforceMode controls how a missing required span attribute is handled.
type EnforceMode string

const (
	EnforceOff   EnforceMode = "off"
	EnforceWarn  EnforceMode = "warn"
	EnforceError EnforceMode = "error"
)

// Contract declares the attributes a named span must carry on exit.
type Contract struct {
	Name               string
	RequiredAttributes []string
	// RequiredOnError lists attributes only required when the span
	// recorded an error (e.g. error.category).
	RequiredOnError []string
}

// Validate returns the subset of required attributes missing from attrs.
func (c Contract) Validate(attrs map[string]any, hasError bool) []string {
	var missing []string
	for _, key := range c.RequiredAttributes {
		if _, ok := attrs[key]; !ok {
			missing = append(missing, key)
		}
	}
	if hasError {
		for _, key := range c.RequiredOnError {
			if _, ok := attrs[key]; !ok {
				missing = append(missing, key)
			}
		}
	}
	return missing
}

// PropagatedContext is the serializable snapshot of a telemetry context:
// W3C trace headers plus the sticky metadata inherited by the span that
// captured it, suitable for passing across a process boundary (e.g. a
// checkpointed workflow resuming a later node).
type PropagatedContext struct {
	TraceParent    string
	TraceState     string
	StickyMetadata map[string]any
}

// ctxKey is the unexported type for context values this package installs.
type ctxKey int

const stickyKey ctxKey = iota

// stickyState is the mutable sticky-metadata record carried in a
// context.Context. Siblings (spans started from the same parent context)
// share one stickyState instance so that the sequence counter increments
// are visible across them; a span's children receive a copy so metadata
// set by a child is invisible to its parent and siblings, matching the
// inheritance rule in SPEC_FULL.md §4.4.
type stickyState struct {
	metadata map[string]any
	seq      int
}

func (s *stickyState) copyMetadata() map[string]any {
	out := make(map[string]any, len(s.metadata))
	for k, v := range s.metadata {
		out[k] = v
	}
	return out
}

func stickyFromContext(ctx context.Context) *stickyState {
	if s, ok := ctx.Value(stickyKey).(*stickyState); ok {
		return s
	}
	return nil
}
