// Package keyset implements deterministic, optionally-signed keyset
// pagination cursors: ORDER BY key extraction, stable tie-breaker
// validation, opaque cursor encode/decode with integrity checks, and
// "strictly after" predicate construction honoring NULLS FIRST/LAST
// semantics, per SPEC_FULL.md §4.3.
package keyset

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jonkmatsumo/text2sql-sub000/pkg/sqlast"
)

// Reason is a coded rejection reason for keyset operations.
type Reason string

const (
	ReasonTiebreakerNullable    Reason = "KEYSET_TIEBREAKER_NULLABLE"
	ReasonTiebreakerNotUnique   Reason = "KEYSET_TIEBREAKER_NOT_UNIQUE"
	ReasonRequiresTiebreaker    Reason = "KEYSET_REQUIRES_STABLE_TIEBREAKER"
	ReasonOrderMismatch         Reason = "KEYSET_ORDER_MISMATCH"
	ReasonFederatedOrderingUnsafe Reason = "PAGINATION_FEDERATED_ORDERING_UNSAFE"
	ReasonBackendSetChanged     Reason = "PAGINATION_BACKEND_SET_CHANGED"
)

// Error wraps a coded keyset pagination rejection.
type Error struct {
	Reason Reason
	Msg    string
}

func (e *Error) Error() string { return string(e.Reason) + ": " + e.Msg }

func newErr(r Reason, msg string) *Error { return &Error{Reason: r, Msg: msg} }

// OrderKey is one extracted ORDER BY key.
type OrderKey struct {
	Expr          string // canonical rendered expression text
	Alias         string
	Descending    bool
	NullsFirst    bool
	ExplicitNulls bool
}

// Dialect identifies the null-ordering convention to apply.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectOther    Dialect = "other"
)

// ExtractOrderKeys parses sql (must be a single SELECT, no set operation)
// and returns its ORDER BY keys with dialect-appropriate null-ordering
// defaults applied where not explicit. It rejects non-deterministic key
// expressions (RAND/UUID/NOW/CURRENT_TIMESTAMP family).
func ExtractOrderKeys(sql string, dialect Dialect) ([]OrderKey, error) {
	stmt, err := sqlast.Parse(sql)
	if err != nil {
		return nil, fmt.Errorf("keyset: failed to parse query: %w", err)
	}
	sel, ok := stmt.Body.(*sqlast.Select)
	if !ok {
		return nil, errors.New("keyset: only a single SELECT is supported for keyset pagination")
	}
	if len(sel.OrderBy) == 0 {
		return nil, errors.New("keyset: query has no ORDER BY clause")
	}

	keys := make([]OrderKey, 0, len(sel.OrderBy))
	for _, o := range sel.OrderBy {
		if err := rejectNonDeterministic(o.Expr); err != nil {
			return nil, err
		}
		k := OrderKey{
			Expr:          sqlast.PrintExpr(o.Expr),
			Descending:    o.Descending,
			ExplicitNulls: o.ExplicitNulls,
			NullsFirst:    o.NullsFirst,
		}
		if ident, ok := o.Expr.(*sqlast.Ident); ok {
			k.Alias = ident.Name
		}
		if !o.ExplicitNulls {
			applyDefaultNullOrdering(&k, dialect)
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func applyDefaultNullOrdering(k *OrderKey, dialect Dialect) {
	if dialect == DialectPostgres {
		// ASC -> NULLS LAST, DESC -> NULLS FIRST.
		k.NullsFirst = k.Descending
		return
	}
	// Conservative fallback for all other dialects: absent NULLS
	// FIRST/LAST is treated as nulls_last regardless of sort direction.
	k.NullsFirst = false
}

func rejectNonDeterministic(e sqlast.Expr) error {
	var bad string
	sqlast.Walk(e, func(n sqlast.Node) bool {
		if bad != "" {
			return false
		}
		if fc, ok := n.(*sqlast.FuncCall); ok && sqlast.IsNonDeterministicFunc(fc.Name) {
			bad = fc.Name
		}
		if id, ok := n.(*sqlast.Ident); ok && sqlast.IsNonDeterministicFunc(id.Name) {
			bad = id.Name
		}
		return true
	})
	if bad != "" {
		return fmt.Errorf("keyset: ORDER BY key uses non-deterministic expression %q", bad)
	}
	return nil
}

// SchemaInfoProvider supplies the column metadata needed to validate a
// stable tie-breaker against the real schema. A nil provider falls back
// to the legacy allowlist in ValidateStableTiebreaker.
type SchemaInfoProvider interface {
	HasColumn(table, column string) bool
	IsNullable(table, column string) bool
	IsUniqueKey(table string, columns []string) bool
}

// legacyTiebreakerNames is the fallback allowlist used when no
// SchemaInfoProvider is supplied.
var legacyTiebreakerNames = map[string]bool{"id": true}

// ValidateStableTiebreaker enforces that the last ORDER BY key is a
// plain column that is either schema-verified NOT NULL + part of a
// unique-key suffix of the ORDER BY, or falls back to the legacy
// allowlist (`id`, `<table>_id`, configured names).
func ValidateStableTiebreaker(keys []OrderKey, table string, schemaInfo SchemaInfoProvider, extraAllowlist map[string]bool) error {
	if len(keys) == 0 {
		return newErr(ReasonRequiresTiebreaker, "no ORDER BY keys present")
	}
	last := keys[len(keys)-1]
	if last.Alias == "" {
		return newErr(ReasonRequiresTiebreaker, "tie-breaker must be a plain column reference")
	}

	if schemaInfo != nil && schemaInfo.HasColumn(table, last.Alias) {
		nullable := schemaInfo.IsNullable(table, last.Alias)
		cols := make([]string, len(keys))
		for i, k := range keys {
			cols[i] = k.Alias
		}
		unique := schemaInfo.IsUniqueKey(table, suffixFrom(cols, len(cols)-1))
		if !unique {
			return newErr(ReasonTiebreakerNotUnique, "ORDER BY suffix is not a known unique key")
		}
		if nullable && !last.ExplicitNulls {
			return newErr(ReasonTiebreakerNullable, "nullable tie-breaker requires an explicit NULLS FIRST/LAST")
		}
		return nil
	}

	name := strings.ToLower(last.Alias)
	if legacyTiebreakerNames[name] || name == strings.ToLower(table)+"_id" || (extraAllowlist != nil && extraAllowlist[name]) {
		return nil
	}
	return newErr(ReasonTiebreakerNotUnique, "ORDER BY suffix is not a known unique key")
}

func suffixFrom(cols []string, fromIdx int) []string {
	return append([]string(nil), cols[fromIdx:]...)
}

// StaticSchemaInfoProvider is a simple in-memory SchemaInfoProvider for
// tests and static schema snapshots.
type StaticSchemaInfoProvider struct {
	Columns    map[string]map[string]bool // table -> column -> exists
	Nullable   map[string]map[string]bool // table -> column -> nullable
	UniqueKeys map[string][][]string      // table -> list of unique-key column sets
}

func (s *StaticSchemaInfoProvider) HasColumn(table, column string) bool {
	return s.Columns[table] != nil && s.Columns[table][column]
}

func (s *StaticSchemaInfoProvider) IsNullable(table, column string) bool {
	return s.Nullable[table] != nil && s.Nullable[table][column]
}

func (s *StaticSchemaInfoProvider) IsUniqueKey(table string, columns []string) bool {
	for _, uk := range s.UniqueKeys[table] {
		if sameSet(uk, columns) {
			return true
		}
	}
	return false
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := map[string]bool{}
	for _, x := range a {
		set[strings.ToLower(x)] = true
	}
	for _, y := range b {
		if !set[strings.ToLower(y)] {
			return false
		}
	}
	return true
}
