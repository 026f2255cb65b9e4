package tenantrewrite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRewriteJoin(t *testing.T) {
	sql := "SELECT o.id, c.name FROM orders o JOIN customers c ON o.customer_id = c.id WHERE o.status='open'"
	settings := DefaultSettings("tenant_id")
	settings.TableTenantColumns = map[string]string{"orders": "tenant_id", "customers": "tenant_id"}

	result, rerr := Rewrite(sql, 1, settings)
	require.Nil(t, rerr)
	assert.Contains(t, result.SQL, "o.tenant_id = ?")
	assert.Contains(t, result.SQL, "c.tenant_id = ?")
	assert.Equal(t, []any{1, 1}, result.Params)
}

func TestRewriteRejectsCorrelatedSubquery(t *testing.T) {
	sql := "SELECT * FROM orders o WHERE EXISTS (SELECT 1 FROM line_items WHERE order_id = o.id)"
	settings := DefaultSettings("tenant_id")

	_, rerr := Rewrite(sql, 1, settings)
	require.NotNil(t, rerr)
	assert.Equal(t, "TENANT_ENFORCEMENT_UNSUPPORTED", rerr.ErrorCode())
	assert.Contains(t, rerr.Error(), "tenant isolation is not supported")
	assert.NotContains(t, rerr.Error(), "orders")
	assert.NotContains(t, rerr.Error(), "line_items")
}

func TestRewriteRejectsRecursiveCTE(t *testing.T) {
	sql := "WITH RECURSIVE r AS (SELECT id FROM orders) SELECT * FROM r"
	_, rerr := Rewrite(sql, 1, DefaultSettings("tenant_id"))
	require.NotNil(t, rerr)
}

func TestRewriteRejectsWindowFunction(t *testing.T) {
	sql := "SELECT id, ROW_NUMBER() OVER (ORDER BY id) FROM orders"
	_, rerr := Rewrite(sql, 1, DefaultSettings("tenant_id"))
	require.NotNil(t, rerr)
}

func TestRewriteSkipsCTEName(t *testing.T) {
	sql := "WITH recent AS (SELECT id FROM orders) SELECT * FROM recent"
	settings := DefaultSettings("tenant_id")
	settings.TableTenantColumns = map[string]string{"orders": "tenant_id"}

	result, rerr := Rewrite(sql, 1, settings)
	require.Nil(t, rerr)
	assert.Contains(t, result.SQL, "orders.tenant_id = ?")
	assert.NotContains(t, result.SQL, "recent.tenant_id")
	assert.Equal(t, 1, result.PredicateCount)
}

func TestRewriteDeterministic(t *testing.T) {
	sql := "SELECT id FROM orders WHERE status = 'open'"
	settings := DefaultSettings("tenant_id")

	r1, e1 := Rewrite(sql, 7, settings)
	r2, e2 := Rewrite(sql, 7, settings)
	require.Nil(t, e1)
	require.Nil(t, e2)
	assert.Equal(t, r1.SQL, r2.SQL)
	assert.Equal(t, r1.Params, r2.Params)
}

func TestRewriteIdempotentOnOwnOutput(t *testing.T) {
	sql := "SELECT id FROM orders WHERE status = 'open'"
	settings := DefaultSettings("tenant_id")

	first, err := Rewrite(sql, 7, settings)
	require.Nil(t, err)

	second, err := Rewrite(first.SQL, 7, settings)
	require.Nil(t, err)
	assert.Equal(t, first.SQL, second.SQL)
}

func TestRewriteAssertInvariants(t *testing.T) {
	sql := "SELECT id FROM orders WHERE status = 'open'"
	settings := DefaultSettings("tenant_id")
	settings.AssertInvariants = true

	_, err := Rewrite(sql, 7, settings)
	require.Nil(t, err)
}

func TestRewriteMissingTenantColumn(t *testing.T) {
	sql := "SELECT id FROM orders"
	settings := DefaultSettings("tenant_id")
	settings.TableTenantColumns = map[string]string{} // orders not declared

	_, rerr := Rewrite(sql, 1, settings)
	require.NotNil(t, rerr)
	assert.Equal(t, KindMissingTenantColumn, rerr.Kind)
}
