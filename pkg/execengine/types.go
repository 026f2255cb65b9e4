// Package execengine implements the SQL execution pipeline: structural
// validation, tenant rewrite, schema-drift hinting, replay-bundle
// shortcut, prefetch admission, tool dispatch, auto-pagination, prefetch
// scheduling, error classification, and cache write-through, per
// SPEC_FULL.md §4.5.
package execengine

import (
	"time"

	"github.com/jonkmatsumo/text2sql-sub000/pkg/sqlvalidator"
	"github.com/jonkmatsumo/text2sql-sub000/pkg/tenantrewrite"
)

// PaginationStopReason explains why auto-pagination stopped fetching
// additional pages.
type PaginationStopReason string

const (
	StopDisabled                PaginationStopReason = "DISABLED"
	StopNoNextPage               PaginationStopReason = "NO_NEXT_PAGE"
	StopMaxPages                 PaginationStopReason = "MAX_PAGES"
	StopMaxRows                  PaginationStopReason = "MAX_ROWS"
	StopBudgetExhausted          PaginationStopReason = "BUDGET_EXHAUSTED"
	StopFetchError                PaginationStopReason = "FETCH_ERROR"
	StopFetchException            PaginationStopReason = "FETCH_EXCEPTION"
	StopTokenRepeat               PaginationStopReason = "TOKEN_REPEAT"
	StopEmptyPageWithToken         PaginationStopReason = "EMPTY_PAGE_WITH_TOKEN"
	StopPathologicalEmptyPages    PaginationStopReason = "PATHOLOGICAL_EMPTY_PAGES"
	StopUnsupportedCapability      PaginationStopReason = "UNSUPPORTED_CAPABILITY"
)

// PrefetchSuppressionReason explains why a background prefetch of the
// next page was not scheduled.
type PrefetchSuppressionReason string

const (
	SuppressAutoPaginationActive PrefetchSuppressionReason = "AUTO_PAGINATION_ACTIVE"
	SuppressNoNextPage           PrefetchSuppressionReason = "NO_NEXT_PAGE"
	SuppressNotCheap             PrefetchSuppressionReason = "NOT_CHEAP"
	SuppressLowBudget            PrefetchSuppressionReason = "LOW_BUDGET"
	SuppressAlreadyCachedOrInflight PrefetchSuppressionReason = "ALREADY_CACHED_OR_INFLIGHT"
	SuppressScheduled            PrefetchSuppressionReason = "SCHEDULED"
	SuppressCacheHit             PrefetchSuppressionReason = "CACHE_HIT"
)

// ErrorCategory is the canonical, sanitized error classification emitted
// by the execution engine.
type ErrorCategory string

const (
	CategoryTimeout                    ErrorCategory = "timeout"
	CategorySecurityPolicyViolation     ErrorCategory = "security_policy_violation"
	CategoryTenantEnforcementUnsupported ErrorCategory = "tenant_enforcement_unsupported"
	CategoryUnsupportedCapability       ErrorCategory = "unsupported_capability"
	CategoryToolResponseMalformed       ErrorCategory = "tool_response_malformed"
	CategoryTransient                   ErrorCategory = "transient"
	CategoryUnknown                     ErrorCategory = "unknown"
)

// ExecError is a typed, sanitized execution failure. Message is always
// safe to surface to an end user (no table names, no SQL literals for
// tenant/capability-class errors).
type ExecError struct {
	Category ErrorCategory
	Message  string
	TraceID  string
}

func (e *ExecError) Error() string { return e.Message }

// ToolResponseEnvelope is the wire contract between the execution engine
// and a DAL tool, per spec.md §3.
type ToolResponseEnvelope struct {
	SchemaVersion string
	Rows          []map[string]any
	Columns       []ColumnMeta
	Metadata      EnvelopeMetadata
	Error         *EnvelopeError
}

type ColumnMeta struct {
	Name string
	Type string
}

type EnvelopeMetadata struct {
	RowsReturned    int
	IsTruncated     bool
	RowLimit        int
	NextPageToken   string
	PartialReason   string
	CapDetected     bool
	Mitigation      string
	Provider        string
	ExecutionTimeMs int64
}

type EnvelopeError struct {
	Message          string
	Category         string
	Provider         string
	Code             string
	ErrorCode        string
	RetryAfterSecs   int
	IsRetryable      bool
}

// Request is the input to Execute.
type Request struct {
	SQL              string
	TenantID         any
	DeadlineTS       time.Time
	PageToken        string
	PageSize         int
	SchemaSnapshotID string
	Seed             int64
	ReplayBundle     ReplayBundle
	RawSchemaContext []map[string]any
	FromCache        bool
	IsRetry          bool
	ValidatorOptions sqlvalidator.Options
	RewriteSettings  tenantrewrite.Settings
}

// Result is the output state fragment from Execute.
type Result struct {
	QueryResult               []map[string]any
	Columns                   []ColumnMeta
	RowsReturned              int
	IsTruncated               bool
	AutoPaginationStoppedReason PaginationStopReason
	PrefetchSuppressionReason  PrefetchSuppressionReason
	SchemaDriftSuspected       bool
	MissingIdentifiers         []string
	SchemaDriftAutoRefresh     bool
	Err                        *ExecError
}

// ReplayBundle records a previous run's tool invocations, keyed by
// (tool, payload fingerprint), for deterministic replay during
// evaluation or regression testing.
type ReplayBundle struct {
	Entries map[string]ToolResponseEnvelope
}

// Lookup returns a recorded envelope for key, if any.
func (b ReplayBundle) Lookup(key string) (ToolResponseEnvelope, bool) {
	if b.Entries == nil {
		return ToolResponseEnvelope{}, false
	}
	env, ok := b.Entries[key]
	return env, ok
}
