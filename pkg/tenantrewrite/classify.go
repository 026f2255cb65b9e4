package tenantrewrite

import (
	"strings"

	"github.com/jonkmatsumo/text2sql-sub000/pkg/sqlast"
)

// scope is one SELECT body eligible for tenant-predicate injection: a CTE
// body, the final SELECT, or a classified-safe subquery nested in either.
type scope struct {
	sel          *sqlast.Select
	index        int
	cteName      string // "" if this scope does not belong to a CTE
	definedNames map[string]bool
}

// buildScopes walks stmt in the canonical scope order ("first CTE bodies
// in lexical order, then the final SELECT and its nested subqueries"),
// classifying CTEs and subqueries as it goes, and returns the full
// ordered scope list or the first classification failure encountered.
func buildScopes(stmt *sqlast.Statement) ([]*scope, *RewriteError) {
	if sqlast.ContainsWindowFunc(stmt) {
		return nil, newError(KindUnsupportedShape, "window functions are not supported by the rewriter")
	}

	var scopes []*scope
	cteNames := map[string]bool{}
	if stmt.With != nil {
		if stmt.With.Recursive {
			return nil, newError(KindUnsupportedShape, "recursive CTEs are not supported")
		}
		for _, cte := range stmt.With.CTEs {
			cteNames[strings.ToLower(cte.Name)] = true
		}
	}

	if stmt.With != nil {
		for _, cte := range stmt.With.CTEs {
			sel, ok := cte.Query.(*sqlast.Select)
			if !ok {
				return nil, newError(KindUnsupportedShape, "CTE body must be a plain SELECT")
			}
			if err := rejectFromSubqueries(sel); err != nil {
				return nil, err
			}
			s := registerScope(&scopes, sel, cte.Name, cteNames)
			if err := classifyNestedSubqueries(sel, s, cteNames, &scopes); err != nil {
				return nil, err
			}
		}
	}

	finalSel, ok := stmt.Body.(*sqlast.Select)
	if !ok {
		return nil, newError(KindUnsupportedShape, "set operations are not supported at the top level")
	}
	if err := rejectFromSubqueries(finalSel); err != nil {
		return nil, err
	}
	s := registerScope(&scopes, finalSel, "", cteNames)
	if err := classifyNestedSubqueries(finalSel, s, cteNames, &scopes); err != nil {
		return nil, err
	}

	return scopes, nil
}

func registerScope(scopes *[]*scope, sel *sqlast.Select, cteName string, cteNames map[string]bool) *scope {
	s := &scope{
		sel:          sel,
		index:        len(*scopes),
		cteName:      cteName,
		definedNames: definedNames(sel),
	}
	*scopes = append(*scopes, s)
	return s
}

func definedNames(sel *sqlast.Select) map[string]bool {
	names := map[string]bool{}
	for _, f := range sel.From {
		if f.Alias != "" {
			names[strings.ToLower(f.Alias)] = true
		} else if f.Table != "" {
			names[strings.ToLower(f.Table)] = true
		}
	}
	return names
}

func rejectFromSubqueries(sel *sqlast.Select) *RewriteError {
	for _, f := range sel.From {
		if f.Subquery != nil {
			return newError(KindUnsupportedShape, "derived tables (nested SELECT in FROM) are not supported")
		}
	}
	return nil
}

// classifyNestedSubqueries finds every IN/EXISTS/scalar subquery reachable
// from sel's WHERE and projection (but not its FROM, already rejected),
// classifies each as SAFE_SIMPLE_SUBQUERY or fails, checks correlation
// against the enclosing scope's visible names, and registers it as a new
// scope inheriting the enclosing scope's cteName.
func classifyNestedSubqueries(sel *sqlast.Select, enclosing *scope, cteNames map[string]bool, scopes *[]*scope) *RewriteError {
	var subqueries []*sqlast.Select

	collect := func(n sqlast.Node) bool {
		switch v := n.(type) {
		case *sqlast.InExpr:
			if v.Subquery != nil {
				if inner, ok := v.Subquery.(*sqlast.Select); ok {
					subqueries = append(subqueries, inner)
				} else {
					subqueries = append(subqueries, nil)
				}
			}
		case *sqlast.ExistsExpr:
			if inner, ok := v.Subquery.(*sqlast.Select); ok {
				subqueries = append(subqueries, inner)
			} else {
				subqueries = append(subqueries, nil)
			}
		case *sqlast.SubqueryExpr:
			if inner, ok := v.Query.(*sqlast.Select); ok {
				subqueries = append(subqueries, inner)
			} else {
				subqueries = append(subqueries, nil)
			}
		}
		return true
	}
	if sel.Where != nil {
		sqlast.Walk(sel.Where, collect)
	}
	for _, item := range sel.Projection {
		if item.Expr != nil {
			sqlast.Walk(item.Expr, collect)
		}
	}

	for _, inner := range subqueries {
		if inner == nil {
			return newError(KindUnsupportedShape, "subquery uses an unsupported set operation")
		}
		if err := classifySubquery(inner); err != nil {
			return err
		}
		if err := rejectFromSubqueries(inner); err != nil {
			return err
		}
		if isCorrelated(inner, enclosing, cteNames) {
			return newError(KindUnsupportedShape, "correlated subqueries are not supported")
		}
		registerScope(scopes, inner, enclosing.cteName, cteNames)
	}
	return nil
}

// classifySubquery enforces the SAFE_SIMPLE_SUBQUERY shape: a SELECT with
// no nested SELECTs of its own, and either not a scalar aggregate or
// satisfying the strict scalar-aggregate form.
func classifySubquery(sel *sqlast.Select) *RewriteError {
	if sel.Where != nil && sqlast.ContainsSubquery(sel.Where) {
		return newError(KindUnsupportedShape, "doubly-nested subqueries are not supported")
	}
	isAgg := sqlast.ContainsAggregate(sel)
	if !isAgg {
		return nil
	}
	strictScalar := len(sel.Projection) == 1 &&
		len(sel.GroupBy) == 0 &&
		sel.Having == nil &&
		!sel.Distinct &&
		(sel.Limit == nil || isLimitOne(sel.Limit))
	if !strictScalar {
		return newError(KindUnsupportedShape, "aggregate subquery does not satisfy the strict scalar-aggregate form")
	}
	return nil
}

func isLimitOne(e sqlast.Expr) bool {
	lit, ok := e.(*sqlast.Literal)
	return ok && lit.Kind == sqlast.LitNumber && lit.Text == "1"
}

// isCorrelated reports whether inner references a relation name defined
// only in the outer scope (or a CTE name), per spec.md §4.2's correlation
// detection rule.
func isCorrelated(inner *sqlast.Select, outer *scope, cteNames map[string]bool) bool {
	outerVisible := map[string]bool{}
	for n := range outer.definedNames {
		outerVisible[n] = true
	}
	for n := range cteNames {
		outerVisible[n] = true
	}
	innerVisible := definedNames(inner)

	correlated := false
	walkIdents(inner, func(ident *sqlast.Ident) {
		if correlated || ident.Qualifier == "" {
			return
		}
		q := strings.ToLower(ident.Qualifier)
		if innerVisible[q] {
			return
		}
		if outerVisible[q] {
			correlated = true
		}
	})
	return correlated
}

func walkIdents(sel *sqlast.Select, fn func(*sqlast.Ident)) {
	visit := func(n sqlast.Node) bool {
		if ident, ok := n.(*sqlast.Ident); ok {
			fn(ident)
		}
		return true
	}
	for _, item := range sel.Projection {
		if item.Expr != nil {
			sqlast.Walk(item.Expr, visit)
		}
	}
	if sel.Where != nil {
		sqlast.Walk(sel.Where, visit)
	}
	for _, f := range sel.From {
		if f.Join != nil && f.Join.On != nil {
			sqlast.Walk(f.Join.On, visit)
		}
	}
}
