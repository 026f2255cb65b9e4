// Package workflow implements the agent's state-graph orchestrator: cache
// lookup, schema retrieval, routing, planning, generation, validation,
// execution, self-correction, visualization, and synthesis, wired as a
// directed graph of named nodes with conditional edges and bounded retry
// loops, per SPEC_FULL.md §4.6.
package workflow

import (
	"time"

	"github.com/jonkmatsumo/text2sql-sub000/pkg/execengine"
	"github.com/jonkmatsumo/text2sql-sub000/pkg/sqlvalidator"
	"github.com/jonkmatsumo/text2sql-sub000/pkg/telemetry"
)

// MaxCorrectionRounds bounds the validate→correct→validate loop before the
// run is routed to terminal failure.
const MaxCorrectionRounds = 3

// MaxClarifyRounds bounds the router→clarify→router loop before the next
// ambiguity is surfaced to the caller instead of looping again.
const MaxClarifyRounds = 2

// MaxEvents bounds the FIFO decision-event and validation-failure audit
// lists carried on state; MaxChars bounds the serialized size of any
// single event's detail string.
const (
	MaxEvents = 50
	MaxChars  = 2000
)

// ChatMessage is a minimal transcript entry; the LLM client and UI gateway
// consume the richer form, this is only what the graph itself inspects.
type ChatMessage struct {
	Role    string
	Content string
}

// DecisionEvent records a single routing or node decision for audit,
// mirroring the original implementation's decision_events list.
type DecisionEvent struct {
	Node      string
	Decision  string
	Detail    string
	Truncated bool
}

// ChartSuggestion is the supplemental output of the visualize node
// (SPEC_FULL.md §4.6.1): a hint for the synthesize node and any UI gateway
// about how query_result could be charted.
type ChartSuggestion struct {
	Kind    string
	XField  string
	YFields []string
	Reason  string
}

// AgentState is the full workflow state threaded through every node. Each
// node function receives the current state and returns an updated copy;
// unlike the reference implementation's dict-shaped state with a shallow
// dict-merge, Go's static typing makes "node returns only a fragment"
// naturally a "node returns the state with only its own fields changed" —
// callers must take care to copy-through every field they don't touch
// (AgentState is a plain value type specifically so `next := state` does
// this correctly).
type AgentState struct {
	ThreadID         string
	TenantID         any
	RawUserInput     string
	Messages         []ChatMessage
	SchemaContext    string
	SchemaSnapshotID string

	CurrentSQL           string
	ActiveQuery          string
	ProceduralPlan       string
	RejectedCacheContext string
	ClauseMap            map[string]string

	FromCache  bool
	AmbiguityType string
	ClarifyCount  int

	ASTValidationResult *sqlvalidator.ValidationResult
	RetryCount          int

	QueryResult   *execengine.Result
	TableNames    []string
	ChartSuggestion *ChartSuggestion

	Error         string
	ErrorCategory string

	DecisionEvents     []DecisionEvent
	ValidationFailures []string

	InteractionID      string
	TelemetryContext   telemetry.PropagatedContext
	PersistenceFailed  bool
	PersistenceError   string

	DeadlineTS time.Time
}

// AppendEvent appends ev to events, trimming detail to MaxChars and
// dropping the oldest entry once the list reaches MaxEvents (FIFO bound),
// per spec.md §4.6's "audit lists are FIFO-bounded" invariant.
func AppendEvent(events []DecisionEvent, ev DecisionEvent) []DecisionEvent {
	if len(ev.Detail) > MaxChars {
		ev.Detail = ev.Detail[:MaxChars]
		ev.Truncated = true
	}
	events = append(events, ev)
	if len(events) > MaxEvents {
		events = events[len(events)-MaxEvents:]
	}
	return events
}

// AppendValidationFailure appends msg to failures under the same FIFO
// bound as AppendEvent.
func AppendValidationFailure(failures []string, msg string) []string {
	if len(msg) > MaxChars {
		msg = msg[:MaxChars]
	}
	failures = append(failures, msg)
	if len(failures) > MaxEvents {
		failures = failures[len(failures)-MaxEvents:]
	}
	return failures
}
