package dataview

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema() TableSchema {
	return TableSchema{
		Name:     "users",
		HasRowID: true,
		Columns: []ColumnInfo{
			{Ordinal: 0, Name: "id", DeclaredType: "INTEGER", PrimaryKeyOrdinal: 1},
			{Ordinal: 1, Name: "name", DeclaredType: "TEXT"},
			{Ordinal: 2, Name: "age", DeclaredType: "INTEGER"},
		},
	}
}

func TestComposeBrowse_Plain(t *testing.T) {
	q, err := composeBrowse(testSchema(), BrowseRequest{Table: "users", Page: 1, PageSize: 10}, DefaultLimits)
	require.NoError(t, err)

	assert.Equal(t, `SELECT rowid AS "_dbglance_rowid_", "id", "name", "age" FROM "users" LIMIT ? OFFSET ?`, q.SelectSQL)
	assert.Equal(t, []any{10, 0}, q.SelectParams)
	assert.Equal(t, `SELECT COUNT(*) FROM "users"`, q.CountSQL)
	assert.Empty(t, q.CountParams)
	assert.Equal(t, 10, q.Limit)
	assert.Equal(t, 0, q.Offset)
}

func TestComposeBrowse_PageOffset(t *testing.T) {
	q, err := composeBrowse(testSchema(), BrowseRequest{Table: "users", Page: 3, PageSize: 25}, DefaultLimits)
	require.NoError(t, err)
	assert.Equal(t, []any{25, 50}, q.SelectParams)

	// pages below 1 read the first page
	q, err = composeBrowse(testSchema(), BrowseRequest{Table: "users", Page: 0, PageSize: 25}, DefaultLimits)
	require.NoError(t, err)
	assert.Equal(t, []any{25, 0}, q.SelectParams)
}

func TestComposeBrowse_SearchAndFilters(t *testing.T) {
	req := BrowseRequest{
		Table: "users", Page: 1, PageSize: 10,
		Search:  "bob",
		Filters: []Filter{Compare{Column: "age", Op: Gte, Value: 21}},
	}
	q, err := composeBrowse(testSchema(), req, DefaultLimits)
	require.NoError(t, err)

	wantWhere := ` WHERE ("id" LIKE ? OR "name" LIKE ? OR "age" LIKE ?) AND "age" >= ?`
	assert.Contains(t, q.SelectSQL, wantWhere)
	assert.Equal(t, []any{"%bob%", "%bob%", "%bob%", 21, 10, 0}, q.SelectParams)

	// count query carries the same where clause without projection or limit
	assert.Equal(t, `SELECT COUNT(*) FROM "users"`+wantWhere, q.CountSQL)
	assert.Equal(t, []any{"%bob%", "%bob%", "%bob%", 21}, q.CountParams)
}

func TestComposeBrowse_Sort(t *testing.T) {
	req := BrowseRequest{Table: "users", Page: 1, PageSize: 10, SortColumn: "name", SortDir: Desc}
	q, err := composeBrowse(testSchema(), req, DefaultLimits)
	require.NoError(t, err)
	assert.Contains(t, q.SelectSQL, ` ORDER BY "name" DESC LIMIT ?`)

	// sort column without direction means engine-default order
	req = BrowseRequest{Table: "users", Page: 1, PageSize: 10, SortColumn: "name"}
	q, err = composeBrowse(testSchema(), req, DefaultLimits)
	require.NoError(t, err)
	assert.NotContains(t, q.SelectSQL, "ORDER BY")
}

func TestComposeBrowse_UnknownSortColumn(t *testing.T) {
	req := BrowseRequest{Table: "users", Page: 1, PageSize: 10, SortColumn: "nope", SortDir: Asc}
	_, err := composeBrowse(testSchema(), req, DefaultLimits)
	require.Error(t, err)
	var serr *SchemaError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "nope", serr.Column)
}

func TestComposeBrowse_BadSortDirection(t *testing.T) {
	req := BrowseRequest{Table: "users", Page: 1, PageSize: 10, SortColumn: "name", SortDir: SortDir("sideways")}
	_, err := composeBrowse(testSchema(), req, DefaultLimits)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestComposeBrowse_WithoutRowID(t *testing.T) {
	schema := testSchema()
	schema.HasRowID = false
	q, err := composeBrowse(schema, BrowseRequest{Table: "users", Page: 1, PageSize: 10}, DefaultLimits)
	require.NoError(t, err)
	assert.Contains(t, q.SelectSQL, `SELECT NULL AS "_dbglance_rowid_", "id"`)
}

func TestComposeBrowse_CountSkipOnLargePage(t *testing.T) {
	limits := Limits{MaxRows: 5000, MemoryOptimizations: true}
	q, err := composeBrowse(testSchema(), BrowseRequest{Table: "users", Page: 1, PageSize: 2000}, limits)
	require.NoError(t, err)
	assert.Empty(t, q.CountSQL, "exact count skipped for large page sizes")
	assert.Equal(t, 2000, q.Limit)

	// with optimizations off the count is always exact
	limits.MemoryOptimizations = false
	q, err = composeBrowse(testSchema(), BrowseRequest{Table: "users", Page: 1, PageSize: 2000}, limits)
	require.NoError(t, err)
	assert.NotEmpty(t, q.CountSQL)
}

func TestLimits_PageSize(t *testing.T) {
	tbl := []struct {
		name      string
		limits    Limits
		requested int
		want      int
	}{
		{"clamped to ceiling", Limits{MaxRows: 100, MemoryOptimizations: true}, 500, 100},
		{"under ceiling untouched", Limits{MaxRows: 100, MemoryOptimizations: true}, 50, 50},
		{"optimizations off, no clamp", Limits{MaxRows: 100}, 500, 500},
		{"zero falls back to ceiling", Limits{MaxRows: 100, MemoryOptimizations: true}, 0, 100},
		{"ceiling floored at 100", Limits{MaxRows: 10, MemoryOptimizations: true}, 500, 100},
	}
	for _, tc := range tbl {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.limits.PageSize(tc.requested))
		})
	}
}

func TestLimits_SkipExactCount(t *testing.T) {
	l := Limits{MaxRows: 5000, MemoryOptimizations: true}
	assert.False(t, l.SkipExactCount(1000))
	assert.True(t, l.SkipExactCount(1001))

	l.MemoryOptimizations = false
	assert.False(t, l.SkipExactCount(5000))
}
