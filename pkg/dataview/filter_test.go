package dataview

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func TestFilter_Fragments(t *testing.T) {
	tbl := []struct {
		name   string
		filter Filter
		frag   string
		params []any
	}{
		{"equals", Equals{Column: "name", Value: "bob"}, `"name" = ?`, []any{"bob"}},
		{"equals null routes to is-null", Equals{Column: "name", Value: nil}, `"name" IS NULL`, nil},
		{"in", In{Column: "id", Values: []any{1, 2, 3}}, `"id" IN (?, ?, ?)`, []any{1, 2, 3}},
		{"in with null", In{Column: "id", Values: []any{5, nil}}, `("id" IN (?) OR "id" IS NULL)`, []any{5}},
		{"in with only null", In{Column: "id", Values: []any{nil}}, `"id" IS NULL`, nil},
		{"gt", Compare{Column: "age", Op: Gt, Value: 30}, `"age" > ?`, []any{30}},
		{"gte", Compare{Column: "age", Op: Gte, Value: 30}, `"age" >= ?`, []any{30}},
		{"lt", Compare{Column: "age", Op: Lt, Value: 30.5}, `"age" < ?`, []any{30.5}},
		{"lte", Compare{Column: "age", Op: Lte, Value: int64(30)}, `"age" <= ?`, []any{int64(30)}},
		{"between", Between{Column: "price", Start: ptr(10), End: ptr(20)}, `"price" BETWEEN ? AND ?`, []any{10.0, 20.0}},
		{"is null", IsNull{Column: "deleted_at"}, `"deleted_at" IS NULL`, nil},
		{"not null", NotNull{Column: "deleted_at"}, `"deleted_at" IS NOT NULL`, nil},
	}

	for _, tc := range tbl {
		t.Run(tc.name, func(t *testing.T) {
			frag, params, err := tc.filter.fragment()
			require.NoError(t, err)
			assert.Equal(t, tc.frag, frag)
			assert.Equal(t, tc.params, params)
		})
	}
}

func TestFilter_Validation(t *testing.T) {
	tbl := []struct {
		name   string
		filter Filter
	}{
		{"empty in set", In{Column: "id"}},
		{"between without start", Between{Column: "price", End: ptr(20)}},
		{"between without end", Between{Column: "price", Start: ptr(10)}},
		{"non-numeric comparison", Compare{Column: "age", Op: Gt, Value: "thirty"}},
		{"nil comparison", Compare{Column: "age", Op: Gt, Value: nil}},
		{"unknown comparison op", Compare{Column: "age", Op: CompareOp("<>"), Value: 1}},
	}

	for _, tc := range tbl {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := tc.filter.fragment()
			require.Error(t, err)
			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestSquashFilters(t *testing.T) {
	filters := []Filter{
		Equals{Column: "a", Value: 1},
		Compare{Column: "b", Op: Gt, Value: 2},
		Equals{Column: "a", Value: 3}, // replaces the first filter on "a" in place
	}
	got := squashFilters(filters)
	require.Len(t, got, 2)
	assert.Equal(t, Equals{Column: "a", Value: 3}, got[0])
	assert.Equal(t, Compare{Column: "b", Op: Gt, Value: 2}, got[1])
}
