package sqlast

// Visitor is called once per node during Walk; returning false stops
// descent into the node's children (Walk itself still visits siblings).
type Visitor func(n Node) bool

// Walk performs a depth-first traversal of the AST rooted at n, calling
// visit for every node reached, including nested subqueries and CTE
// bodies. It does not need to be exhaustive over every expression
// sub-node; validator and rewriter code interested in fine-grained
// expression shapes walk expressions directly.
func Walk(n Node, visit Visitor) {
	if n == nil {
		return
	}
	if !visit(n) {
		return
	}
	switch v := n.(type) {
	case *Statement:
		if v.With != nil {
			Walk(v.With, visit)
		}
		Walk(v.Body, visit)
	case *WithClause:
		for _, cte := range v.CTEs {
			Walk(cte, visit)
		}
	case *CTE:
		Walk(v.Query, visit)
	case *SetOperation:
		Walk(v.Left, visit)
		Walk(v.Right, visit)
	case *Select:
		for _, item := range v.Projection {
			if item.Expr != nil {
				Walk(item.Expr, visit)
			}
		}
		for _, f := range v.From {
			Walk(&f, visit)
		}
		if v.Where != nil {
			Walk(v.Where, visit)
		}
		for _, g := range v.GroupBy {
			Walk(g, visit)
		}
		if v.Having != nil {
			Walk(v.Having, visit)
		}
		for _, o := range v.OrderBy {
			Walk(o.Expr, visit)
		}
	case *FromItem:
		if v.Subquery != nil {
			Walk(v.Subquery, visit)
		}
		if v.Join != nil && v.Join.On != nil {
			Walk(v.Join.On, visit)
		}
	case *BinaryExpr:
		Walk(v.Left, visit)
		Walk(v.Right, visit)
	case *UnaryExpr:
		Walk(v.X, visit)
	case *IsNullExpr:
		Walk(v.X, visit)
	case *BetweenExpr:
		Walk(v.X, visit)
		Walk(v.Lo, visit)
		Walk(v.Hi, visit)
	case *InExpr:
		Walk(v.X, visit)
		for _, e := range v.List {
			Walk(e, visit)
		}
		if v.Subquery != nil {
			Walk(v.Subquery, visit)
		}
	case *ExistsExpr:
		Walk(v.Subquery, visit)
	case *SubqueryExpr:
		Walk(v.Query, visit)
	case *FuncCall:
		for _, a := range v.Args {
			Walk(a, visit)
		}
		if v.Over != nil {
			for _, e := range v.Over.PartitionBy {
				Walk(e, visit)
			}
			for _, o := range v.Over.OrderBy {
				Walk(o.Expr, visit)
			}
		}
	case *CaseExpr:
		if v.Operand != nil {
			Walk(v.Operand, visit)
		}
		for _, w := range v.Whens {
			Walk(w.Cond, visit)
			Walk(w.Then, visit)
		}
		if v.Else != nil {
			Walk(v.Else, visit)
		}
	case *CastExpr:
		Walk(v.X, visit)
	case *ParenExpr:
		Walk(v.X, visit)
	case *Ident, *Literal, *Placeholder:
		// leaves
	}
}

// CountNodes returns the total number of AST nodes reachable from n,
// used by the tenant rewriter's AST-complexity ceiling.
func CountNodes(n Node) int {
	count := 0
	Walk(n, func(Node) bool {
		count++
		return true
	})
	return count
}

// FindSelects returns every *Select reachable from n, in pre-order
// (outermost/earliest first), including the root if it is itself a
// Select.
func FindSelects(n Node) []*Select {
	var out []*Select
	Walk(n, func(node Node) bool {
		if sel, ok := node.(*Select); ok {
			out = append(out, sel)
		}
		return true
	})
	return out
}

// ContainsWindowFunc reports whether any FuncCall reachable from n has a
// non-nil Over clause.
func ContainsWindowFunc(n Node) bool {
	found := false
	Walk(n, func(node Node) bool {
		if found {
			return false
		}
		if fc, ok := node.(*FuncCall); ok && fc.Over != nil {
			found = true
		}
		return true
	})
	return found
}

// ContainsAggregate reports whether any FuncCall reachable from n names a
// recognized aggregate function.
func ContainsAggregate(n Node) bool {
	found := false
	Walk(n, func(node Node) bool {
		if found {
			return false
		}
		if fc, ok := node.(*FuncCall); ok && IsAggregateFunc(fc.Name) {
			found = true
		}
		return true
	})
	return found
}

// ContainsSubquery reports whether n (typically a *Select's WHERE or
// projection) contains a nested SubqueryExpr, InExpr-with-subquery, or
// ExistsExpr.
func ContainsSubquery(n Node) bool {
	found := false
	Walk(n, func(node Node) bool {
		if found {
			return false
		}
		switch node.(type) {
		case *SubqueryExpr, *ExistsExpr:
			found = true
		case *InExpr:
			if node.(*InExpr).Subquery != nil {
				found = true
			}
		}
		return true
	})
	return found
}
