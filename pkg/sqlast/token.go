// Package sqlast implements a small, dialect-aware SQL tokenizer and
// recursive-descent parser, scoped to the grammar the validation, tenant
// rewrite, keyset pagination, and evaluation packages need: SELECT,
// WITH (CTEs), JOIN, WHERE, GROUP BY/HAVING, ORDER BY, LIMIT, set
// operations (UNION/INTERSECT/EXCEPT), subqueries, window functions, and
// the DDL/DML command keywords needed only so that the validator can
// recognize and reject them.
//
// It does not attempt to be a general-purpose SQL parser: unsupported
// constructs surface as parse errors rather than being silently accepted.
package sqlast

// TokenType identifies the lexical class of a Token.
type TokenType int

const (
	ILLEGAL TokenType = iota
	EOF

	IDENT     // table_name, column_name
	NUMBER    // 123, 123.45
	STRING    // 'literal'
	PLACEHOLDER // ? or $1

	PLUS
	MINUS
	ASTERISK
	SLASH
	PERCENT
	EQ
	NEQ
	LT
	GT
	LTE
	GTE
	CONCAT // ||

	COMMA
	SEMICOLON
	LPAREN
	RPAREN
	DOT

	keywordBeg
	SELECT
	FROM
	WHERE
	JOIN
	INNER
	LEFT
	RIGHT
	FULL
	OUTER
	CROSS
	ON
	AS
	WITH
	RECURSIVE
	UNION
	INTERSECT
	EXCEPT
	ALL
	DISTINCT
	GROUP
	BY
	HAVING
	ORDER
	ASC
	DESC
	NULLS
	FIRST
	LAST
	LIMIT
	OFFSET
	AND
	OR
	NOT
	IN
	EXISTS
	BETWEEN
	LIKE
	ILIKE
	IS
	NULL
	CASE
	WHEN
	THEN
	ELSE
	END
	OVER
	PARTITION
	CAST
	TRUE
	FALSE

	// forbidden root / DML-DDL keywords, recognized so the validator can
	// reject them explicitly rather than failing to parse at all.
	INSERT
	UPDATE
	DELETE
	DROP
	ALTER
	CREATE
	GRANT
	REVOKE
	TRUNCATE
	CALL
	EXPLAIN
	keywordEnd
)

var keywords = map[string]TokenType{
	"select": SELECT, "from": FROM, "where": WHERE, "join": JOIN,
	"inner": INNER, "left": LEFT, "right": RIGHT, "full": FULL,
	"outer": OUTER, "cross": CROSS, "on": ON, "as": AS, "with": WITH,
	"recursive": RECURSIVE, "union": UNION, "intersect": INTERSECT,
	"except": EXCEPT, "all": ALL, "distinct": DISTINCT, "group": GROUP,
	"by": BY, "having": HAVING, "order": ORDER, "asc": ASC, "desc": DESC,
	"nulls": NULLS, "first": FIRST, "last": LAST, "limit": LIMIT,
	"offset": OFFSET, "and": AND, "or": OR, "not": NOT, "in": IN,
	"exists": EXISTS, "between": BETWEEN, "like": LIKE, "ilike": ILIKE,
	"is": IS, "null": NULL, "case": CASE, "when": WHEN, "then": THEN,
	"else": ELSE, "end": END, "over": OVER, "partition": PARTITION,
	"cast": CAST, "true": TRUE, "false": FALSE,
	"insert": INSERT, "update": UPDATE, "delete": DELETE, "drop": DROP,
	"alter": ALTER, "create": CREATE, "grant": GRANT, "revoke": REVOKE,
	"truncate": TRUNCATE, "call": CALL, "explain": EXPLAIN,
}

// LookupIdent classifies an identifier as a keyword token or a plain IDENT.
func LookupIdent(lit string) TokenType {
	if tok, ok := keywords[lowerASCII(lit)]; ok {
		return tok
	}
	return IDENT
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// IsAggregateFunc reports whether name is a recognized aggregate function.
func IsAggregateFunc(name string) bool {
	switch lowerASCII(name) {
	case "count", "sum", "avg", "min", "max",
		"array_agg", "string_agg", "json_agg", "bool_and", "bool_or":
		return true
	}
	return false
}

// IsNonDeterministicFunc reports whether name is a non-deterministic
// function that keyset ORDER BY keys must reject.
func IsNonDeterministicFunc(name string) bool {
	switch lowerASCII(name) {
	case "rand", "random", "uuid", "gen_random_uuid", "now", "current_timestamp":
		return true
	}
	return false
}

// Token is a single lexical token with its source position.
type Token struct {
	Type    TokenType
	Literal string
	Pos     int
}
