package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, mode EnforceMode) *Service {
	t.Helper()
	backend, err := NewOTELBackend("test-tracer", BackendConfig{ServiceName: "text2sql-agent-test"})
	require.NoError(t, err)
	return NewService(backend, mode)
}

func TestStartSpanSiblingSequencing(t *testing.T) {
	svc := newTestService(t, EnforceOff)
	ctx := context.Background()

	_, s1 := svc.StartSpan(ctx, "child_a", SpanKindChain, nil, nil)
	assert.Equal(t, 0, s1.tracked["event.seq"])
	s1.End(svc)

	_, s2 := svc.StartSpan(ctx, "child_b", SpanKindChain, nil, nil)
	assert.Equal(t, 1, s2.tracked["event.seq"])
	s2.End(svc)
}

func TestStartSpanChildMetadataDoesNotLeakToParent(t *testing.T) {
	svc := newTestService(t, EnforceOff)
	ctx := context.Background()

	parentCtx, parentSpan := svc.StartSpan(ctx, "parent", SpanKindChain, nil, nil)
	defer parentSpan.End(svc)

	childCtx, childSpan := svc.StartSpan(parentCtx, "child", SpanKindChain, nil, nil)
	svc.UpdateCurrentTrace(childCtx, map[string]any{"child_only": "value"})
	childSpan.End(svc)

	_, siblingSpan := svc.StartSpan(parentCtx, "sibling", SpanKindChain, nil, nil)
	defer siblingSpan.End(svc)
	_, hasIt := siblingSpan.tracked["child_only"]
	assert.False(t, hasIt, "metadata set inside a child span must not leak to its siblings")
}

func TestStartSpanInheritsStickyMetadataFromParent(t *testing.T) {
	svc := newTestService(t, EnforceOff)
	ctx := context.Background()

	parentCtx, parentSpan := svc.StartSpan(ctx, "parent", SpanKindChain, nil, nil)
	svc.UpdateCurrentTrace(parentCtx, map[string]any{"tenant_id": "t-1"})

	_, childSpan := svc.StartSpan(parentCtx, "child", SpanKindChain, nil, nil)
	defer childSpan.End(svc)
	defer parentSpan.End(svc)

	assert.Equal(t, "t-1", childSpan.tracked["tenant_id"])
}

func TestRedactRecursiveRedactsSensitiveKeys(t *testing.T) {
	in := map[string]any{
		"password": "hunter2",
		"nested":   map[string]any{"api_key": "abc123"},
		"safe":     "value",
	}
	out := RedactRecursive(in)
	assert.Equal(t, redactedPlaceholder, out["password"])
	assert.Equal(t, "value", out["safe"])
	nested := out["nested"].(map[string]any)
	assert.Equal(t, redactedPlaceholder, nested["api_key"])
}

func TestBoundAttributeTruncatesLongStrings(t *testing.T) {
	long := make([]byte, maxStringLen+100)
	for i := range long {
		long[i] = 'x'
	}
	bounded, truncated := BoundAttributeChecked("x", string(long))
	assert.True(t, truncated)
	assert.Less(t, len(bounded.(string)), len(long))
}

func TestContractValidationEmitsViolationEvent(t *testing.T) {
	svc := newTestService(t, EnforceWarn)
	svc.RegisterContract(Contract{Name: "generate", RequiredAttributes: []string{"model", "prompt_tokens"}})

	ctx := context.Background()
	_, span := svc.StartSpan(ctx, "generate", SpanKindChatModel, nil, map[string]any{"model": "gpt"})
	span.End(svc) // missing prompt_tokens, should emit a warn-level violation but not panic
}

func TestSerializeDeserializeContextRoundTrip(t *testing.T) {
	pc := PropagatedContext{
		TraceParent:    "00-aaaa-bbbb-01",
		TraceState:     "vendor=1",
		StickyMetadata: map[string]any{"tenant_id": "t-1"},
	}
	data := SerializeContext(pc)
	restored := DeserializeContext(data)
	assert.Equal(t, pc.TraceParent, restored.TraceParent)
	assert.Equal(t, pc.TraceState, restored.TraceState)
	assert.Equal(t, pc.StickyMetadata, restored.StickyMetadata)
}

func TestCaptureAndUseContextRestoresStickyMetadata(t *testing.T) {
	svc := newTestService(t, EnforceOff)
	ctx := context.Background()

	parentCtx, parentSpan := svc.StartSpan(ctx, "parent", SpanKindChain, nil, nil)
	svc.UpdateCurrentTrace(parentCtx, map[string]any{"thread_id": "th-1"})
	captured := svc.CaptureContext(parentCtx)
	parentSpan.End(svc)

	resumedCtx := svc.UseContext(context.Background(), captured)
	_, resumedSpan := svc.StartSpan(resumedCtx, "resumed", SpanKindChain, nil, nil)
	defer resumedSpan.End(svc)

	assert.Equal(t, "th-1", resumedSpan.tracked["thread_id"])
}
