package dataview

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveRowID_PrefersNativeRowID(t *testing.T) {
	row := map[string]any{rowIDColumn: int64(42), "id": 1, "name": "a"}
	id, err := DeriveRowID("t", row, []string{"id"})
	require.NoError(t, err)
	require.True(t, id.Valid())

	clause, params, err := id.WhereClause("t")
	require.NoError(t, err)
	assert.Equal(t, "rowid = ?", clause)
	assert.Equal(t, []any{int64(42)}, params)
}

func TestDeriveRowID_CompositeFallback(t *testing.T) {
	// no synthetic rowid column, falls back to the composite key in ordinal order
	row := map[string]any{"tenant": "acme", "user_id": int64(7), "name": "a"}
	id, err := DeriveRowID("memberships", row, []string{"tenant", "user_id"})
	require.NoError(t, err)
	require.True(t, id.Valid())

	clause, params, err := id.WhereClause("memberships")
	require.NoError(t, err)
	assert.Equal(t, `"tenant" = ? AND "user_id" = ?`, clause)
	assert.Equal(t, []any{"acme", int64(7)}, params)
}

func TestDeriveRowID_NonNumericRowIDFallsBack(t *testing.T) {
	row := map[string]any{rowIDColumn: "not-a-number", "id": int64(3)}
	id, err := DeriveRowID("t", row, []string{"id"})
	require.NoError(t, err)

	clause, params, err := id.WhereClause("t")
	require.NoError(t, err)
	assert.Equal(t, `"id" = ?`, clause)
	assert.Equal(t, []any{int64(3)}, params)
}

func TestDeriveRowID_Invalid(t *testing.T) {
	// no rowid and no primary key values: invalid, mutation must not proceed
	_, err := DeriveRowID("t", map[string]any{"name": "a"}, nil)
	require.Error(t, err)
	var ierr *InvalidIdentifierError
	assert.ErrorAs(t, err, &ierr)

	// missing one of the key columns is just as invalid
	_, err = DeriveRowID("t", map[string]any{"tenant": "acme"}, []string{"tenant", "user_id"})
	require.Error(t, err)
	assert.ErrorAs(t, err, &ierr)
}

func TestRowID_EmptyWhereClauseRefused(t *testing.T) {
	var id RowID
	require.False(t, id.Valid())
	clause, params, err := id.WhereClause("t")
	require.Error(t, err)
	assert.Empty(t, clause)
	assert.Empty(t, params)
	var ierr *InvalidIdentifierError
	assert.ErrorAs(t, err, &ierr)
}

func TestNativeRowID(t *testing.T) {
	id := NativeRowID(7)
	require.True(t, id.Valid())
	clause, params, err := id.WhereClause("t")
	require.NoError(t, err)
	assert.Equal(t, "rowid = ?", clause)
	assert.Equal(t, []any{int64(7)}, params)
}
