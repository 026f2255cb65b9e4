package sqlast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSimpleSelect(t *testing.T) {
	stmt, err := Parse("SELECT id, name FROM customers WHERE status = 'active'")
	require.NoError(t, err)
	require.Equal(t, KindSelect, stmt.Kind)

	sel, ok := stmt.Body.(*Select)
	require.True(t, ok)
	assert.Len(t, sel.Projection, 2)
	assert.Equal(t, "customers", sel.From[0].Table)
	assert.NotNil(t, sel.Where)
}

func TestParseJoin(t *testing.T) {
	stmt, err := Parse(`SELECT o.id, c.name FROM orders o JOIN customers c ON o.customer_id = c.id WHERE o.status='open'`)
	require.NoError(t, err)
	sel := stmt.Body.(*Select)
	require.Len(t, sel.From, 2)
	assert.Equal(t, "orders", sel.From[0].Table)
	assert.Equal(t, "o", sel.From[0].Alias)
	assert.Equal(t, "customers", sel.From[1].Table)
	require.NotNil(t, sel.From[1].Join)
	assert.Equal(t, JoinInner, sel.From[1].Join.Kind)
}

func TestParseCTE(t *testing.T) {
	stmt, err := Parse(`WITH recent AS (SELECT id FROM orders WHERE created_at > NOW()) SELECT * FROM recent`)
	require.NoError(t, err)
	require.NotNil(t, stmt.With)
	assert.Len(t, stmt.With.CTEs, 1)
	assert.Equal(t, "recent", stmt.With.CTEs[0].Name)
}

func TestParseSetOperation(t *testing.T) {
	stmt, err := Parse(`SELECT id FROM a UNION SELECT id FROM b`)
	require.NoError(t, err)
	assert.Equal(t, KindSetOperation, stmt.Kind)
	_, ok := stmt.Body.(*SetOperation)
	assert.True(t, ok)
}

func TestParseRejectsForbiddenRoot(t *testing.T) {
	stmt, err := Parse("DROP TABLE customers")
	require.NoError(t, err)
	assert.Equal(t, KindDrop, stmt.Kind)
}

func TestParseRejectsMultipleStatements(t *testing.T) {
	_, err := Parse("SELECT 1; DROP TABLE customers")
	require.Error(t, err)
}

func TestParseWindowFunction(t *testing.T) {
	stmt, err := Parse(`SELECT id, ROW_NUMBER() OVER (PARTITION BY tenant_id ORDER BY id) FROM orders`)
	require.NoError(t, err)
	sel := stmt.Body.(*Select)
	assert.True(t, ContainsWindowFunc(sel))
}

func TestParseExistsSubquery(t *testing.T) {
	stmt, err := Parse(`SELECT * FROM orders o WHERE EXISTS (SELECT 1 FROM line_items WHERE order_id = o.id)`)
	require.NoError(t, err)
	sel := stmt.Body.(*Select)
	assert.True(t, ContainsSubquery(sel.Where))
}

func TestPrintRoundTrip(t *testing.T) {
	stmt, err := Parse("select id from orders where status = 'open' order by id asc")
	require.NoError(t, err)
	out := Print(stmt)
	assert.Contains(t, out, "SELECT id FROM orders")
	assert.Contains(t, out, "WHERE status = 'open'")
}
