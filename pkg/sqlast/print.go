package sqlast

import (
	"fmt"
	"strings"
)

// Print renders stmt back to SQL text in a canonical, normalized form:
// consistent keyword casing and spacing, independent of the original
// source's whitespace/casing. Used for cache-key normalization (C1 step
// 10) and for exact-match canonicalization in the evaluation runner (C7).
func Print(stmt *Statement) string {
	var b strings.Builder
	if stmt.With != nil {
		printWith(&b, stmt.With)
	}
	printBody(&b, stmt.Body)
	return b.String()
}

func printWith(b *strings.Builder, wc *WithClause) {
	b.WriteString("WITH ")
	if wc.Recursive {
		b.WriteString("RECURSIVE ")
	}
	for i, cte := range wc.CTEs {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(cte.Name)
		b.WriteString(" AS (")
		printBody(b, cte.Query)
		b.WriteString(")")
	}
	b.WriteString(" ")
}

func printBody(b *strings.Builder, n Node) {
	switch v := n.(type) {
	case *SetOperation:
		printBody(b, v.Left)
		switch v.Op {
		case SetUnion:
			b.WriteString(" UNION ")
		case SetIntersect:
			b.WriteString(" INTERSECT ")
		case SetExcept:
			b.WriteString(" EXCEPT ")
		}
		if v.All {
			b.WriteString("ALL ")
		}
		printBody(b, v.Right)
	case *Select:
		printSelect(b, v)
	}
}

func printSelect(b *strings.Builder, sel *Select) {
	b.WriteString("SELECT ")
	if sel.Distinct {
		b.WriteString("DISTINCT ")
	}
	for i, item := range sel.Projection {
		if i > 0 {
			b.WriteString(", ")
		}
		if item.Star {
			if item.Qual != "" {
				b.WriteString(item.Qual)
				b.WriteString(".")
			}
			b.WriteString("*")
			continue
		}
		b.WriteString(PrintExpr(item.Expr))
		if item.Alias != "" {
			b.WriteString(" AS ")
			b.WriteString(item.Alias)
		}
	}
	if len(sel.From) > 0 {
		b.WriteString(" FROM ")
		for i, f := range sel.From {
			if i > 0 && f.Join == nil {
				b.WriteString(", ")
			} else if f.Join != nil {
				b.WriteString(" ")
				b.WriteString(joinKeyword(f.Join.Kind))
				b.WriteString(" ")
			}
			printFromItem(b, f)
			if f.Join != nil && f.Join.On != nil {
				b.WriteString(" ON ")
				b.WriteString(PrintExpr(f.Join.On))
			}
		}
	}
	if sel.Where != nil {
		b.WriteString(" WHERE ")
		b.WriteString(PrintExpr(sel.Where))
	}
	if len(sel.GroupBy) > 0 {
		b.WriteString(" GROUP BY ")
		for i, g := range sel.GroupBy {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(PrintExpr(g))
		}
	}
	if sel.Having != nil {
		b.WriteString(" HAVING ")
		b.WriteString(PrintExpr(sel.Having))
	}
	if len(sel.OrderBy) > 0 {
		b.WriteString(" ORDER BY ")
		for i, o := range sel.OrderBy {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(PrintExpr(o.Expr))
			if o.Descending {
				b.WriteString(" DESC")
			} else {
				b.WriteString(" ASC")
			}
			if o.ExplicitNulls {
				if o.NullsFirst {
					b.WriteString(" NULLS FIRST")
				} else {
					b.WriteString(" NULLS LAST")
				}
			}
		}
	}
	if sel.Limit != nil {
		b.WriteString(" LIMIT ")
		b.WriteString(PrintExpr(sel.Limit))
	}
	if sel.Offset != nil {
		b.WriteString(" OFFSET ")
		b.WriteString(PrintExpr(sel.Offset))
	}
}

func printFromItem(b *strings.Builder, f FromItem) {
	if f.Subquery != nil {
		b.WriteString("(")
		printBody(b, f.Subquery)
		b.WriteString(")")
	} else {
		b.WriteString(f.Table)
	}
	if f.Alias != "" {
		b.WriteString(" AS ")
		b.WriteString(f.Alias)
	}
}

func joinKeyword(k JoinKind) string {
	switch k {
	case JoinLeft:
		return "LEFT JOIN"
	case JoinRight:
		return "RIGHT JOIN"
	case JoinFull:
		return "FULL JOIN"
	case JoinCross:
		return "CROSS JOIN"
	default:
		return "JOIN"
	}
}

// PrintExpr renders a scalar expression to canonical SQL text.
func PrintExpr(e Expr) string {
	switch v := e.(type) {
	case *Ident:
		if v.Qualifier != "" {
			return v.Qualifier + "." + v.Name
		}
		return v.Name
	case *Literal:
		switch v.Kind {
		case LitString:
			return "'" + strings.ReplaceAll(v.Text, "'", "''") + "'"
		case LitNull:
			return "NULL"
		default:
			return v.Text
		}
	case *Placeholder:
		return v.Text
	case *BinaryExpr:
		return fmt.Sprintf("%s %s %s", PrintExpr(v.Left), v.Op, PrintExpr(v.Right))
	case *UnaryExpr:
		return fmt.Sprintf("%s %s", v.Op, PrintExpr(v.X))
	case *IsNullExpr:
		if v.Not {
			return PrintExpr(v.X) + " IS NOT NULL"
		}
		return PrintExpr(v.X) + " IS NULL"
	case *BetweenExpr:
		not := ""
		if v.Not {
			not = "NOT "
		}
		return fmt.Sprintf("%s %sBETWEEN %s AND %s", PrintExpr(v.X), not, PrintExpr(v.Lo), PrintExpr(v.Hi))
	case *InExpr:
		not := ""
		if v.Not {
			not = "NOT "
		}
		if v.Subquery != nil {
			var sb strings.Builder
			printBody(&sb, v.Subquery)
			return fmt.Sprintf("%s %sIN (%s)", PrintExpr(v.X), not, sb.String())
		}
		parts := make([]string, len(v.List))
		for i, e := range v.List {
			parts[i] = PrintExpr(e)
		}
		return fmt.Sprintf("%s %sIN (%s)", PrintExpr(v.X), not, strings.Join(parts, ", "))
	case *ExistsExpr:
		var sb strings.Builder
		printBody(&sb, v.Subquery)
		if v.Not {
			return fmt.Sprintf("NOT EXISTS (%s)", sb.String())
		}
		return fmt.Sprintf("EXISTS (%s)", sb.String())
	case *SubqueryExpr:
		var sb strings.Builder
		printBody(&sb, v.Query)
		return "(" + sb.String() + ")"
	case *FuncCall:
		var args string
		if v.Star {
			args = "*"
		} else {
			parts := make([]string, len(v.Args))
			for i, a := range v.Args {
				parts[i] = PrintExpr(a)
			}
			prefix := ""
			if v.Distinct {
				prefix = "DISTINCT "
			}
			args = prefix + strings.Join(parts, ", ")
		}
		call := fmt.Sprintf("%s(%s)", v.Name, args)
		if v.Over != nil {
			var parts []string
			if len(v.Over.PartitionBy) > 0 {
				ps := make([]string, len(v.Over.PartitionBy))
				for i, e := range v.Over.PartitionBy {
					ps[i] = PrintExpr(e)
				}
				parts = append(parts, "PARTITION BY "+strings.Join(ps, ", "))
			}
			if len(v.Over.OrderBy) > 0 {
				os := make([]string, len(v.Over.OrderBy))
				for i, o := range v.Over.OrderBy {
					d := "ASC"
					if o.Descending {
						d = "DESC"
					}
					os[i] = PrintExpr(o.Expr) + " " + d
				}
				parts = append(parts, "ORDER BY "+strings.Join(os, ", "))
			}
			call += " OVER (" + strings.Join(parts, " ") + ")"
		}
		return call
	case *CaseExpr:
		var sb strings.Builder
		sb.WriteString("CASE")
		if v.Operand != nil {
			sb.WriteString(" " + PrintExpr(v.Operand))
		}
		for _, w := range v.Whens {
			sb.WriteString(fmt.Sprintf(" WHEN %s THEN %s", PrintExpr(w.Cond), PrintExpr(w.Then)))
		}
		if v.Else != nil {
			sb.WriteString(" ELSE " + PrintExpr(v.Else))
		}
		sb.WriteString(" END")
		return sb.String()
	case *CastExpr:
		return fmt.Sprintf("CAST(%s AS %s)", PrintExpr(v.X), v.TypeName)
	case *ParenExpr:
		return "(" + PrintExpr(v.X) + ")"
	}
	return ""
}
