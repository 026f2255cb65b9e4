package tenantrewrite

import (
	"strings"

	"github.com/jonkmatsumo/text2sql-sub000/pkg/sqlast"
)

// Rewrite parses sql, classifies its shape, and injects a
// `<alias>.<tenant_column> = ?` predicate into every eligible base-table
// reference's enclosing scope, returning the rewritten SQL and a
// parallel parameter list. It fails closed (returns a *RewriteError) on
// any unsupported shape, per SPEC_FULL.md §4.2.
func Rewrite(sql string, tenantID any, settings Settings) (*Result, *RewriteError) {
	stmt, err := sqlast.Parse(sql)
	if err != nil {
		return nil, newError(KindParseFailed, err.Error())
	}

	if sqlast.CountNodes(stmt) > settings.MaxASTNodes && settings.MaxASTNodes > 0 {
		return nil, newError(KindASTComplexityExceeded, "AST node count exceeds configured ceiling")
	}

	cteNames := map[string]bool{}
	if stmt.With != nil {
		for _, cte := range stmt.With.CTEs {
			cteNames[strings.ToLower(cte.Name)] = true
		}
	}

	scopes, cerr := buildScopes(stmt)
	if cerr != nil {
		return nil, cerr
	}

	targets := collectTargets(scopes, cteNames, settings.GlobalAllowlist)
	sortTargets(targets)

	if settings.MaxTargets > 0 && len(targets) > settings.MaxTargets {
		return nil, newError(KindTargetLimitExceeded, "tenant rewrite target count exceeds configured ceiling")
	}

	var params []any
	rewrittenSet := map[string]bool{}
	for _, t := range targets {
		tenantColumn := settings.TenantColumn
		if settings.TableTenantColumns != nil {
			col, ok := settings.TableTenantColumns[strings.ToLower(t.physicalName)]
			if !ok {
				return nil, newError(KindMissingTenantColumn, "tenant column metadata missing for a referenced table")
			}
			tenantColumn = col
		}
		if tenantColumn == "" {
			return nil, newError(KindMissingTenantColumn, "no tenant column configured")
		}

		if alreadyHasTenantPredicate(t.scope.sel, t.effectiveName, tenantColumn) {
			// idempotent no-op: this scope already carries the predicate
			// (e.g. Rewrite was invoked on already-rewritten SQL).
			rewrittenSet[scopeTableKey(t)] = true
			continue
		}

		injectPredicate(t.scope.sel, t.effectiveName, tenantColumn)
		params = append(params, tenantID)
		rewrittenSet[scopeTableKey(t)] = true

		if settings.MaxParams > 0 && len(params) > settings.MaxParams {
			return nil, newError(KindParamLimitExceeded, "tenant rewrite parameter count exceeds configured ceiling")
		}
	}

	if len(targets) > 0 && len(rewrittenSet) != len(targets) {
		return nil, newError(KindCompletenessFailed, "not every eligible table reference received a tenant predicate")
	}

	rewrittenSQL := sqlast.Print(stmt)

	result := &Result{
		SQL:            rewrittenSQL,
		Params:         params,
		PredicateCount: len(params),
		HasCTE:         stmt.With != nil,
		HasSubquery:    len(scopes) > countTopLevelScopes(stmt),
		ScopeDepth:     len(scopes),
	}
	for _, t := range targets {
		result.RewrittenTables = append(result.RewrittenTables, t.physicalName)
	}

	if settings.AssertInvariants {
		if verr := assertInvariants(sql, tenantID, settings, result); verr != nil {
			return nil, verr
		}
	}

	return result, nil
}

func countTopLevelScopes(stmt *sqlast.Statement) int {
	n := 1 // final select
	if stmt.With != nil {
		n += len(stmt.With.CTEs)
	}
	return n
}

func scopeTableKey(t *target) string {
	return t.cteName + "\x00" + t.effectiveName + "\x00" + t.physicalName
}

// alreadyHasTenantPredicate reports whether sel.Where already contains an
// equality predicate "<effectiveName>.<tenantColumn> = ?" or
// "<effectiveName>.<tenantColumn> = $N", making injection a no-op — the
// basis of the rewriter's idempotency guarantee.
func alreadyHasTenantPredicate(sel *sqlast.Select, effectiveName, tenantColumn string) bool {
	if sel.Where == nil {
		return false
	}
	found := false
	sqlast.Walk(sel.Where, func(n sqlast.Node) bool {
		if found {
			return false
		}
		bin, ok := n.(*sqlast.BinaryExpr)
		if !ok || bin.Op != "=" {
			return true
		}
		ident, ok := bin.Left.(*sqlast.Ident)
		if !ok {
			return true
		}
		if _, ok := bin.Right.(*sqlast.Placeholder); !ok {
			return true
		}
		if strings.EqualFold(ident.Qualifier, effectiveName) && strings.EqualFold(ident.Name, tenantColumn) {
			found = true
		}
		return true
	})
	return found
}

func injectPredicate(sel *sqlast.Select, effectiveName, tenantColumn string) {
	pred := &sqlast.BinaryExpr{
		Op:   "=",
		Left: &sqlast.Ident{Qualifier: effectiveName, Name: tenantColumn},
		Right: &sqlast.Placeholder{Text: "?"},
	}
	if sel.Where == nil {
		sel.Where = pred
		return
	}
	sel.Where = &sqlast.BinaryExpr{Op: "AND", Left: sel.Where, Right: pred}
}

// assertInvariants re-runs Rewrite on the same original input and on its
// own output, asserting the determinism and idempotency invariants from
// spec.md §8 items 1-2. It does not mutate result; it returns an error if
// either check fails.
func assertInvariants(sql string, tenantID any, settings Settings, result *Result) *RewriteError {
	rerunSettings := settings
	rerunSettings.AssertInvariants = false

	again, err := Rewrite(sql, tenantID, rerunSettings)
	if err != nil {
		return newError(KindCompletenessFailed, "invariant re-run failed: "+err.Error())
	}
	if again.SQL != result.SQL || len(again.Params) != len(result.Params) {
		return newError(KindCompletenessFailed, "rewriter is not deterministic across repeated runs")
	}

	twice, err := Rewrite(result.SQL, tenantID, rerunSettings)
	if err != nil {
		return newError(KindCompletenessFailed, "invariant re-run on rewritten SQL failed: "+err.Error())
	}
	if twice.SQL != result.SQL {
		return newError(KindCompletenessFailed, "rewriter is not idempotent on its own output")
	}
	return nil
}
