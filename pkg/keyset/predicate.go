package keyset

import (
	"fmt"
	"strings"

	"github.com/jonkmatsumo/text2sql-sub000/pkg/sqlast"
)

// Topology identifies whether a query's backing store is a single
// backend or a federated set of backends whose members can change
// between page requests.
type Topology string

const (
	TopologySingle     Topology = "single"
	TopologyFederated  Topology = "federated"
)

// BuildPredicate constructs the "strictly after cursor" WHERE fragment
// for keys given the last-row values decoded from a cursor, honoring
// each key's direction and NULLS FIRST/LAST placement. For N keys the
// result is the standard row-wise comparison expressed as a disjunction
// of conjunctions:
//
//	(k1 > v1) OR (k1 = v1 AND k2 > v2) OR ... OR (k1 = v1 AND ... AND kN > vN)
//
// with "> "/"<" chosen per key direction, and NULL-aware branches
// substituted for any key whose NULLS FIRST/LAST placement means NULL
// values are not comparable with a plain operator (a NULL boundary is
// handled by routing rows with NULL in that position according to
// whether NULLs sort first or last for that key).
func BuildPredicate(keys []OrderKey, values []any) (sqlast.Expr, error) {
	if len(keys) != len(values) {
		return nil, fmt.Errorf("keyset: key count %d does not match cursor value count %d", len(keys), len(values))
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("keyset: no keys to build a predicate from")
	}

	var branches []sqlast.Expr
	for i := range keys {
		conj, err := equalityPrefix(keys, values, i)
		if err != nil {
			return nil, err
		}
		branches = append(branches, conj)
	}

	pred := branches[len(branches)-1]
	for i := len(branches) - 2; i >= 0; i-- {
		pred = &sqlast.BinaryExpr{Op: "OR", Left: branches[i], Right: pred}
	}
	return pred, nil
}

// equalityPrefix builds `(k1 = v1 AND ... AND k[idx-1] = v[idx-1] AND kIdx <op> vIdx)`
// for the branch at position idx.
func equalityPrefix(keys []OrderKey, values []any, idx int) (sqlast.Expr, error) {
	cmp, err := strictComparison(keys[idx], values[idx])
	if err != nil {
		return nil, err
	}
	expr := cmp
	for i := idx - 1; i >= 0; i-- {
		eq := equality(keys[i], values[i])
		expr = &sqlast.BinaryExpr{Op: "AND", Left: eq, Right: expr}
	}
	return expr, nil
}

func equality(k OrderKey, v any) sqlast.Expr {
	if v == nil {
		return &sqlast.IsNullExpr{X: keyExpr(k), Not: false}
	}
	return &sqlast.BinaryExpr{Op: "=", Left: keyExpr(k), Right: valuePlaceholder()}
}

// strictComparison builds the single "strictly after" comparison for the
// final differing key in a branch, accounting for direction and the
// NULL-ordering placement of the cursor value itself.
func strictComparison(k OrderKey, v any) (sqlast.Expr, error) {
	op := ">"
	if k.Descending {
		op = "<"
	}

	if v == nil {
		// The cursor's boundary value at this key was NULL. "Strictly
		// after" a NULL boundary means: rows sorting after NULL in this
		// key's null placement. If NULLs sort first, that is every
		// non-NULL row; if NULLs sort last, no row can sort after NULL.
		if k.NullsFirst {
			return &sqlast.IsNullExpr{X: keyExpr(k), Not: true}, nil
		}
		return &sqlast.Literal{Kind: sqlast.LitBool, Text: "false"}, nil
	}

	cmp := &sqlast.BinaryExpr{Op: op, Left: keyExpr(k), Right: valuePlaceholder()}
	if !k.NullsFirst {
		// NULLs sort last: a non-NULL boundary's "strictly after" set
		// never includes NULL rows, which the plain comparison already
		// excludes (NULL <op> anything is unknown), so no adjustment
		// needed.
		return cmp, nil
	}
	// NULLs sort first and the boundary is non-NULL: rows with NULL in
	// this key already sort before the boundary, so they must be
	// excluded explicitly since `NULL > v` evaluates to unknown rather
	// than false in standard SQL three-valued logic.
	notNull := &sqlast.IsNullExpr{X: keyExpr(k), Not: true}
	return &sqlast.BinaryExpr{Op: "AND", Left: notNull, Right: cmp}, nil
}

func keyExpr(k OrderKey) sqlast.Expr {
	if k.Alias != "" && !strings.ContainsAny(k.Alias, " ()") {
		parts := strings.SplitN(k.Alias, ".", 2)
		if len(parts) == 2 {
			return &sqlast.Ident{Qualifier: parts[0], Name: parts[1]}
		}
		return &sqlast.Ident{Name: k.Alias}
	}
	return &sqlast.Ident{Name: k.Expr}
}

func valuePlaceholder() sqlast.Expr {
	return &sqlast.Placeholder{Text: "?"}
}
