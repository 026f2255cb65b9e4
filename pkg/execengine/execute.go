package execengine

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jonkmatsumo/text2sql-sub000/pkg/sqlvalidator"
	"github.com/jonkmatsumo/text2sql-sub000/pkg/telemetry"
	"github.com/jonkmatsumo/text2sql-sub000/pkg/tenantrewrite"
)

// GraceDuration is the minimum remaining budget required to attempt a
// dispatch at all; below this the engine fails closed with a timeout
// category rather than issuing a call doomed to be cancelled mid-flight.
const GraceDuration = 500 * time.Millisecond

// SchemaDriftDetector resolves the set of identifiers in sql/errText that
// are not present in rawSchemaContext, used for both the pre-execution
// hint and the post-error drift hint.
type SchemaDriftDetector func(sql, errText string, rawSchemaContext []map[string]any) []string

// CacheWriter is invoked on first-time success to update the semantic
// cache (query -> sql mapping), per spec.md §4.5 step 12.
type CacheWriter func(ctx context.Context, question, sql string, tenantID any, schemaSnapshotID string) error

// Engine runs the execution pipeline described in SPEC_FULL.md §4.5.
type Engine struct {
	Tool            QueryTool
	Telemetry       *telemetry.Service
	Prefetch        *PrefetchManager
	DriftDetector   SchemaDriftDetector
	CacheWriter     CacheWriter
	AutoPagination  bool
	MaxPages        int
	MaxRows         int
	LegacyListShim  bool
	PrefetchCeiling time.Duration
	LowBudgetFloor  time.Duration
}

// Execute runs the full pipeline for req and returns the resulting state
// fragment. It never panics on a malformed tool response; every failure
// mode is represented in Result.Err.
func (e *Engine) Execute(ctx context.Context, req Request) *Result {
	ctx, span := e.Telemetry.StartSpan(ctx, "execute_sql", telemetry.SpanKindTool, map[string]any{
		"sql": req.SQL, "tenant_id": req.TenantID,
	}, nil)
	defer span.End(e.Telemetry)

	tool := e.Tool
	if e.LegacyListShim {
		if legacy, ok := tool.(LegacyRowTool); ok {
			tool = LegacyListShim{Tool: legacy}
		}
	}

	// 1. Budget gate.
	if remaining := time.Until(req.DeadlineTS); !req.DeadlineTS.IsZero() && remaining < GraceDuration {
		return e.fail(span, CategoryTimeout, "execution deadline has no remaining budget", "")
	}

	// 2. Structural validation (C1).
	validation := sqlvalidator.Validate(req.SQL, req.ValidatorOptions)
	if !validation.IsValid {
		span.SetAttribute("validation_failed", true)
		return e.fail(span, CategorySecurityPolicyViolation, "Security Policy Violation", "")
	}

	// 3. Tenant rewrite (C2).
	rewritten, rerr := tenantrewrite.Rewrite(req.SQL, req.TenantID, req.RewriteSettings)
	if rerr != nil {
		span.SetAttribute("error.type", rerr.ErrorCode())
		return e.fail(span, CategoryTenantEnforcementUnsupported, rerr.Error(), e.Telemetry.CurrentTraceID(ctx))
	}
	span.SetAttribute("rewritten_sql", rewritten.SQL)

	// 4. Pre-execution schema validation (soft hint, never blocks dispatch).
	if e.DriftDetector != nil {
		missing := e.DriftDetector(rewritten.SQL, "", req.RawSchemaContext)
		span.SetAttribute("validation.pre_exec_check_passed", len(missing) == 0)
		if len(missing) > 0 {
			span.SetAttribute("validation.pre_exec_missing_tables", len(missing))
			span.AddEvent("validation.pre_exec_warning", map[string]any{"missing": missing})
		}
	}

	// 5. Replay-bundle shortcut.
	replayKey := PrefetchKey(rewritten.SQL, req.TenantID, req.PageToken, req.PageSize, req.SchemaSnapshotID, req.Seed, "")
	if env, ok := req.ReplayBundle.Lookup(replayKey); ok {
		return e.resultFromEnvelope(env, StopNoNextPage, SuppressCacheHit)
	}

	remaining := remainingBudget(req.DeadlineTS)
	timeoutSecs := remaining.Seconds()

	// 6. Prefetch admission.
	prefetchKey := PrefetchKey(rewritten.SQL, req.TenantID, req.PageToken, req.PageSize, req.SchemaSnapshotID, req.Seed, "")
	var firstPage ToolResponseEnvelope
	var firstPageLatency time.Duration
	var fromPrefetch bool
	if e.Prefetch != nil {
		if cached, ok := e.Prefetch.Peek(prefetchKey); ok {
			firstPage = cached
			fromPrefetch = true
		}
	}

	if !fromPrefetch {
		params := rewriteParams(rewritten.Params)
		start := time.Now()
		env, err := tool.ExecuteSQLQuery(ctx, QueryToolRequest{
			SQL: rewritten.SQL, TenantID: req.TenantID, Params: params,
			IncludeColumns: true, TimeoutSeconds: timeoutSecs,
			PageToken: req.PageToken, PageSize: req.PageSize,
		})
		firstPageLatency = time.Since(start)
		if err != nil {
			return e.failFromToolError(ctx, span, rewritten.SQL, err, req)
		}
		firstPage = env
	}

	if firstPage.Error != nil {
		return e.failFromEnvelopeError(ctx, span, rewritten.SQL, firstPage.Error, req)
	}

	// 8. Auto-pagination.
	allRows := append([]map[string]any(nil), firstPage.Rows...)
	columns := firstPage.Columns
	stopReason := StopNoNextPage
	nextToken := firstPage.Metadata.NextPageToken
	pages := 1
	seenTokens := map[string]bool{req.PageToken: true}
	consecutiveEmptyWithToken := 0

	if !e.AutoPagination {
		stopReason = StopDisabled
	} else {
		for nextToken != "" {
			if pages >= e.MaxPages {
				stopReason = StopMaxPages
				break
			}
			if len(allRows) >= e.MaxRows {
				stopReason = StopMaxRows
				break
			}
			remaining = remainingBudget(req.DeadlineTS)
			if !req.DeadlineTS.IsZero() && remaining < GraceDuration {
				stopReason = StopBudgetExhausted
				break
			}
			if seenTokens[nextToken] {
				stopReason = StopTokenRepeat
				break
			}
			seenTokens[nextToken] = true

			page, err := tool.ExecuteSQLQuery(ctx, QueryToolRequest{
				SQL: rewritten.SQL, TenantID: req.TenantID, Params: rewriteParams(rewritten.Params),
				IncludeColumns: true, TimeoutSeconds: remaining.Seconds(),
				PageToken: nextToken, PageSize: req.PageSize,
			})
			if err != nil {
				stopReason = StopFetchException
				break
			}
			if page.Error != nil {
				stopReason = StopFetchError
				break
			}
			pages++
			if len(page.Rows) == 0 {
				if page.Metadata.NextPageToken != "" {
					consecutiveEmptyWithToken++
					if consecutiveEmptyWithToken >= 2 {
						stopReason = StopPathologicalEmptyPages
						break
					}
					stopReason = StopEmptyPageWithToken
					nextToken = page.Metadata.NextPageToken
					continue
				}
				stopReason = StopNoNextPage
				break
			}
			consecutiveEmptyWithToken = 0
			allRows = append(allRows, page.Rows...)
			nextToken = page.Metadata.NextPageToken
			if nextToken == "" {
				stopReason = StopNoNextPage
			}
		}
	}

	// 9. Prefetch scheduling.
	prefetchReason := e.schedulePrefetch(ctx, tool, rewritten.SQL, req, firstPage, firstPageLatency, remainingBudget(req.DeadlineTS))

	// 12. Cache write-through: only on first-time, non-retry, non-cache-hit success.
	if e.CacheWriter != nil && !req.FromCache && !req.IsRetry {
		if err := e.CacheWriter(ctx, "", rewritten.SQL, req.TenantID, req.SchemaSnapshotID); err != nil {
			slog.Warn("cache write-through failed", "error", err)
		}
	}

	span.SetOutputs(map[string]any{"rows_returned": len(allRows)})
	return &Result{
		QueryResult:                 allRows,
		Columns:                     columns,
		RowsReturned:                len(allRows),
		IsTruncated:                 firstPage.Metadata.IsTruncated,
		AutoPaginationStoppedReason: stopReason,
		PrefetchSuppressionReason:   prefetchReason,
	}
}

func (e *Engine) schedulePrefetch(ctx context.Context, tool QueryTool, sql string, req Request, firstPage ToolResponseEnvelope, latency time.Duration, remaining time.Duration) PrefetchSuppressionReason {
	if e.AutoPagination {
		return SuppressAutoPaginationActive
	}
	if firstPage.Metadata.NextPageToken == "" {
		return SuppressNoNextPage
	}
	if !isCheap(latency, firstPage.Metadata.RowsReturned, req.PageSize) {
		return SuppressNotCheap
	}
	if e.LowBudgetFloor > 0 && remaining < e.LowBudgetFloor {
		return SuppressLowBudget
	}
	if e.Prefetch == nil {
		return SuppressNotCheap
	}
	key := PrefetchKey(sql, req.TenantID, firstPage.Metadata.NextPageToken, req.PageSize, req.SchemaSnapshotID, req.Seed, "")
	if e.Prefetch.InFlightOrCached(key) {
		return SuppressAlreadyCachedOrInflight
	}
	ceiling := e.PrefetchCeiling
	if ceiling == 0 || ceiling > remaining {
		ceiling = remaining
	}
	scheduled := e.Prefetch.Schedule(key, tool, QueryToolRequest{
		SQL: sql, TenantID: req.TenantID, IncludeColumns: true,
		TimeoutSeconds: ceiling.Seconds(),
		PageToken:      firstPage.Metadata.NextPageToken,
		PageSize:       req.PageSize,
	})
	if !scheduled {
		return SuppressAlreadyCachedOrInflight
	}
	return SuppressScheduled
}

func (e *Engine) resultFromEnvelope(env ToolResponseEnvelope, stop PaginationStopReason, prefetch PrefetchSuppressionReason) *Result {
	return &Result{
		QueryResult:                 env.Rows,
		Columns:                     env.Columns,
		RowsReturned:                env.Metadata.RowsReturned,
		IsTruncated:                 env.Metadata.IsTruncated,
		AutoPaginationStoppedReason: stop,
		PrefetchSuppressionReason:   prefetch,
	}
}

func (e *Engine) fail(span *telemetry.Span, category ErrorCategory, message, traceID string) *Result {
	span.SetOutputs(map[string]any{"error": message})
	return &Result{Err: &ExecError{Category: category, Message: message, TraceID: traceID}}
}

func (e *Engine) failFromToolError(ctx context.Context, span *telemetry.Span, sql string, err error, req Request) *Result {
	traceID := e.Telemetry.CurrentTraceID(ctx)
	result := e.fail(span, CategoryToolResponseMalformed, sanitizedToolErrorMessage(err), traceID)
	e.attachDriftHint(span, sql, err.Error(), req, result)
	return result
}

func (e *Engine) failFromEnvelopeError(ctx context.Context, span *telemetry.Span, sql string, envErr *EnvelopeError, req Request) *Result {
	category := classifyEnvelopeError(envErr)
	traceID := e.Telemetry.CurrentTraceID(ctx)
	message := envErr.Message
	if category == CategoryUnsupportedCapability || category == CategoryTenantEnforcementUnsupported {
		message = sanitizedCapabilityMessage(category)
	}
	result := e.fail(span, category, message, traceID)
	e.attachDriftHint(span, sql, envErr.Message, req, result)
	return result
}

func (e *Engine) attachDriftHint(span *telemetry.Span, sql, errText string, req Request, result *Result) {
	if e.DriftDetector == nil {
		return
	}
	missing := e.DriftDetector(sql, errText, req.RawSchemaContext)
	if len(missing) == 0 {
		return
	}
	result.SchemaDriftSuspected = true
	result.MissingIdentifiers = missing
	result.SchemaDriftAutoRefresh = false
	span.SetAttributes(map[string]any{
		"schema_drift_suspected": true,
		"missing_identifiers":    missing,
		"schema_snapshot_id":     req.SchemaSnapshotID,
	})
}

func classifyEnvelopeError(envErr *EnvelopeError) ErrorCategory {
	switch {
	case envErr.Category == "unsupported_capability":
		return CategoryUnsupportedCapability
	case envErr.Category == "timeout":
		return CategoryTimeout
	case envErr.IsRetryable:
		return CategoryTransient
	case envErr.Category != "":
		return ErrorCategory(envErr.Category)
	default:
		return CategoryUnknown
	}
}

func sanitizedCapabilityMessage(category ErrorCategory) string {
	switch category {
	case CategoryUnsupportedCapability:
		return "this query uses a capability not supported by the current provider"
	default:
		return "this query could not be executed under the current tenant policy"
	}
}

func sanitizedToolErrorMessage(err error) string {
	if strings.Contains(err.Error(), "context deadline exceeded") {
		return "execution timed out"
	}
	return "tool response malformed"
}

func remainingBudget(deadline time.Time) time.Duration {
	if deadline.IsZero() {
		return time.Hour
	}
	return time.Until(deadline)
}

func rewriteParams(params []any) []any {
	if params == nil {
		return []any{}
	}
	return params
}
