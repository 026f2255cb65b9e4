// Package tenantrewrite implements the tenant-scoped predicate injection
// rewriter: a pure function that adds `table.tenant_column = ?` predicates
// to every eligible base-table reference in a SELECT, producing
// deterministic SQL and a parallel parameter list. It fails closed on any
// shape it cannot prove safe.
package tenantrewrite

import "fmt"

// TransformerErrorKind is the closed set of rewrite failure kinds.
type TransformerErrorKind string

const (
	KindUnsupportedShape      TransformerErrorKind = "UNSUPPORTED_SHAPE"
	KindMissingTenantColumn   TransformerErrorKind = "MISSING_TENANT_COLUMN"
	KindTargetLimitExceeded   TransformerErrorKind = "TARGET_LIMIT_EXCEEDED"
	KindParamLimitExceeded    TransformerErrorKind = "PARAM_LIMIT_EXCEEDED"
	KindASTComplexityExceeded TransformerErrorKind = "AST_COMPLEXITY_EXCEEDED"
	KindCompletenessFailed    TransformerErrorKind = "COMPLETENESS_FAILED"
	KindDialectUnsupported    TransformerErrorKind = "DIALECT_UNSUPPORTED"
	KindParseFailed           TransformerErrorKind = "PARSE_FAILED"
	KindNoPredicatesProduced  TransformerErrorKind = "NO_PREDICATES_PRODUCED"
)

// RewriteError is returned on any rewrite failure. Error() always returns
// a generic, sanitized message; the original table/column names, SQL
// fragments, and literals referenced during classification are never
// included, per the rewriter sanitization invariant. Detail, when
// non-empty, carries a truncated (≤120 char) diagnostic string intended
// for telemetry spans (`details_safe`), not end users.
type RewriteError struct {
	Kind   TransformerErrorKind
	Detail string
}

func (e *RewriteError) Error() string {
	return "tenant isolation is not supported for this provider"
}

// ErrorCode returns the canonical error taxonomy code a caller (C5) should
// surface. Every TransformerErrorKind maps to the same user-facing
// taxonomy entry; the Kind itself is retained for audit/telemetry.
func (e *RewriteError) ErrorCode() string {
	return "TENANT_ENFORCEMENT_UNSUPPORTED"
}

func newError(kind TransformerErrorKind, debugDetail string) *RewriteError {
	return &RewriteError{Kind: kind, Detail: truncate(debugDetail, 120)}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Settings configures a Rewrite call.
type Settings struct {
	// TenantColumn is the default tenant-scoping column name applied to
	// every injected table, unless overridden per-table by
	// TableTenantColumns.
	TenantColumn string

	// TableTenantColumns, when non-nil, is consulted as authoritative
	// per-table column metadata: a table present in the map but missing a
	// tenant column entry fails with MISSING_TENANT_COLUMN. A table absent
	// from the map entirely falls back to TenantColumn. Keys are
	// lower-cased physical table names.
	TableTenantColumns map[string]string

	// GlobalAllowlist names tables to skip injection for entirely (e.g.
	// shared reference/lookup tables with no tenant scoping).
	GlobalAllowlist map[string]bool

	MaxTargets  int
	MaxParams   int
	MaxASTNodes int

	// AssertInvariants re-runs completeness/determinism checks inline and
	// returns a RewriteError(KindCompletenessFailed) if they fail, instead
	// of trusting the single pass. Intended for debug/test builds.
	AssertInvariants bool
}

// DefaultSettings returns conservative defaults matching the original's
// documented caps.
func DefaultSettings(tenantColumn string) Settings {
	return Settings{
		TenantColumn: tenantColumn,
		MaxTargets:   64,
		MaxParams:    64,
		MaxASTNodes:  4096,
	}
}

// Result is the successful output of Rewrite.
type Result struct {
	SQL             string
	Params          []any
	RewrittenTables []string
	PredicateCount  int
	HasCTE          bool
	HasSubquery     bool
	ScopeDepth      int
}

func (e *RewriteError) String() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}
