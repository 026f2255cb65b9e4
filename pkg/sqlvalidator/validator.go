package sqlvalidator

import (
	"sort"
	"strings"

	"github.com/jonkmatsumo/text2sql-sub000/pkg/sqlast"
)

// Validate parses sql and runs the full policy pipeline described in
// SPEC_FULL.md §4.1: root-node policy, forbidden-construct rejection,
// table/column allowlisting (CTE names excluded), per-branch set
// operation checks, join-complexity limit, sensitive-column guard, and
// lineage metadata extraction. Metadata is always populated, even on a
// failed validation, so callers can audit a rejected query.
func Validate(sql string, opts Options) ValidationResult {
	result := ValidationResult{IsValid: true}

	stmt, err := sqlast.Parse(sql)
	if err != nil {
		if pe, ok := err.(*sqlast.ParseError); ok && strings.Contains(pe.Msg, "multiple statements") {
			result.IsValid = false
			result.Violations = append(result.Violations, SecurityViolation{
				Type:    ViolationMultipleStatement,
				Message: "multiple SQL statements are not permitted",
			})
			return result
		}
		result.IsValid = false
		result.Violations = append(result.Violations, SecurityViolation{
			Type:    ViolationSyntaxError,
			Message: "failed to parse SQL",
			Details: map[string]any{"error": err.Error()},
		})
		return result
	}

	// 2. Root-node policy.
	switch stmt.Kind {
	case sqlast.KindSelect, sqlast.KindSetOperation:
		// permitted roots
	default:
		result.IsValid = false
		result.Violations = append(result.Violations, SecurityViolation{
			Type:    ViolationForbiddenCommand,
			Message: "only read-only SELECT statements are permitted",
			Details: map[string]any{"root_kind": rootKindName(stmt.Kind)},
		})
		// metadata extraction is meaningless for a non-SELECT root; return early.
		return result
	}

	cteNames := collectCTENames(stmt)

	// 3+4+6. Walk every Select (including set-operation branches and
	// nested subqueries) for forbidden tables.
	for _, sel := range sqlast.FindSelects(stmt) {
		validateTables(sel, opts, cteNames, &result)
		validateColumns(sel, opts, cteNames, &result)
	}

	// 7. Complexity: join count across the whole statement.
	joinCount := countJoins(stmt)
	if opts.MaxJoinComplexity > 0 && joinCount > opts.MaxJoinComplexity {
		result.IsValid = false
		result.Violations = append(result.Violations, SecurityViolation{
			Type:    ViolationComplexityLimit,
			Message: "query exceeds the maximum allowed join complexity",
			Details: map[string]any{"join_count": joinCount, "max": opts.MaxJoinComplexity},
		})
	}

	// 8. Sensitive-column guard.
	validateSensitiveColumns(stmt, opts, &result)

	// 9. Lineage metadata.
	result.Metadata = extractMetadata(stmt, joinCount)

	// 10. Normalized form for caching/comparison.
	result.Metadata.NormalizedSQL = sqlast.Print(stmt)

	return result
}

func rootKindName(k sqlast.StatementKind) string {
	switch k {
	case sqlast.KindInsert:
		return "INSERT"
	case sqlast.KindUpdate:
		return "UPDATE"
	case sqlast.KindDelete:
		return "DELETE"
	case sqlast.KindDrop:
		return "DROP"
	case sqlast.KindAlter:
		return "ALTER"
	case sqlast.KindCreate:
		return "CREATE"
	case sqlast.KindGrant:
		return "GRANT"
	case sqlast.KindRevoke:
		return "REVOKE"
	case sqlast.KindTruncate:
		return "TRUNCATE"
	case sqlast.KindCall:
		return "CALL"
	case sqlast.KindExplain:
		return "EXPLAIN"
	default:
		return "UNKNOWN"
	}
}

func collectCTENames(stmt *sqlast.Statement) map[string]bool {
	names := map[string]bool{}
	if stmt.With != nil {
		for _, cte := range stmt.With.CTEs {
			names[strings.ToLower(cte.Name)] = true
		}
	}
	return names
}

func validateTables(sel *sqlast.Select, opts Options, cteNames map[string]bool, result *ValidationResult) {
	for _, f := range sel.From {
		if f.Table == "" {
			continue // derived table: its own Select is walked separately by FindSelects
		}
		lower := strings.ToLower(f.Table)
		if cteNames[lower] {
			continue // CTE aliases are excluded from table checks
		}
		if restrictedTables[lower] {
			result.IsValid = false
			result.Violations = append(result.Violations, SecurityViolation{
				Type:    ViolationRestrictedTable,
				Message: "query references a restricted table",
			})
			continue
		}
		for _, prefix := range restrictedPrefixes {
			if strings.HasPrefix(lower, prefix) {
				result.IsValid = false
				result.Violations = append(result.Violations, SecurityViolation{
					Type:    ViolationRestrictedTable,
					Message: "query references a system schema table",
				})
			}
		}
		if opts.AllowedTables != nil && !opts.AllowedTables[lower] {
			result.IsValid = false
			result.Violations = append(result.Violations, SecurityViolation{
				Type:    ViolationTableNotAllowed,
				Message: "query references a table outside the allowlist",
			})
		}
	}
}

func validateColumns(sel *sqlast.Select, opts Options, cteNames map[string]bool, result *ValidationResult) {
	mode := opts.ColumnMode
	if mode == "" {
		mode = ModeOff
	}
	if mode == ModeOff || opts.AllowedColumns == nil {
		return
	}
	for _, item := range sel.Projection {
		if item.Star {
			continue
		}
		ident, ok := item.Expr.(*sqlast.Ident)
		if !ok {
			continue // derived/computed expressions are skipped
		}
		if ident.Qualifier == "" {
			continue // unqualified columns skipped to avoid false positives
		}
		if cteNames[strings.ToLower(ident.Qualifier)] {
			continue // CTE-qualified references skipped
		}
		if opts.AllowedColumns[strings.ToLower(ident.Name)] {
			continue
		}
		v := SecurityViolation{
			Type:    ViolationColumnNotAllowed,
			Message: "column is not in the allowlist",
			Details: map[string]any{"column": ident.Name},
		}
		if mode == ModeBlock {
			result.IsValid = false
			result.Violations = append(result.Violations, v)
		} else {
			result.Warnings = append(result.Warnings, v)
		}
	}
}

func validateSensitiveColumns(stmt *sqlast.Statement, opts Options, result *ValidationResult) {
	if len(opts.SensitiveColumns) == 0 {
		return
	}
	mode := opts.SensitiveMode
	if mode == "" {
		mode = ModeWarn
	}
	seen := map[string]bool{}
	sqlast.Walk(stmt, func(n sqlast.Node) bool {
		ident, ok := n.(*sqlast.Ident)
		if !ok {
			return true
		}
		if !opts.SensitiveColumns[strings.ToLower(ident.Name)] {
			return true
		}
		if seen[strings.ToLower(ident.Name)] {
			return true
		}
		seen[strings.ToLower(ident.Name)] = true
		v := SecurityViolation{
			Type:    ViolationSensitiveColumn,
			Message: "query references a sensitive column",
			Details: map[string]any{"column": ident.Name},
		}
		if mode == ModeBlock {
			result.IsValid = false
			result.Violations = append(result.Violations, v)
		} else {
			result.Warnings = append(result.Warnings, v)
		}
		return true
	})
}

func countJoins(stmt *sqlast.Statement) int {
	count := 0
	for _, sel := range sqlast.FindSelects(stmt) {
		for _, f := range sel.From {
			if f.Join != nil {
				count++
			}
		}
	}
	return count
}

func extractMetadata(stmt *sqlast.Statement, joinCount int) SQLMetadata {
	md := SQLMetadata{JoinComplexity: joinCount}
	tableSet := map[string]bool{}
	columnSet := map[string]bool{}
	cteNames := collectCTENames(stmt)

	for _, sel := range sqlast.FindSelects(stmt) {
		for _, f := range sel.From {
			if f.Table != "" && !cteNames[strings.ToLower(f.Table)] {
				tableSet[f.Table] = true
			}
		}
		if sqlast.ContainsAggregate(sel) {
			md.HasAggregation = true
		}
		if sqlast.ContainsWindowFunc(sel) {
			md.HasWindowFunction = true
		}
		if sel.Where != nil && sqlast.ContainsSubquery(sel.Where) {
			md.HasSubquery = true
		}
		for _, item := range sel.Projection {
			if ident, ok := item.Expr.(*sqlast.Ident); ok {
				columnSet[ident.Name] = true
			}
		}
	}

	for t := range tableSet {
		md.TableLineage = append(md.TableLineage, t)
	}
	for c := range columnSet {
		md.ColumnUsage = append(md.ColumnUsage, c)
	}
	// Map iteration order is randomized in Go; sort for the validator
	// determinism invariant (identical violation/metadata output across runs).
	sort.Strings(md.TableLineage)
	sort.Strings(md.ColumnUsage)
	return md
}
