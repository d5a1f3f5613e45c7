package dataview

import (
	"fmt"
	"strings"
)

// Filter is a single-column predicate for table browsing. The set of variants is
// sealed: each produces its own SQL fragment and bound parameters, so adding an
// operator means adding a type, not another branch in a switch.
type Filter interface {
	FilterColumn() string
	fragment() (string, []any, error)
}

// CompareOp is an ordering operator for Compare filters.
type CompareOp string

// supported comparison operators
const (
	Gt  CompareOp = ">"
	Gte CompareOp = ">="
	Lt  CompareOp = "<"
	Lte CompareOp = "<="
)

// Equals matches rows where the column equals the value. A nil value routes to
// IS NULL, never to "= NULL" which matches nothing.
type Equals struct {
	Column string
	Value  any
}

// FilterColumn returns the filtered column name.
func (f Equals) FilterColumn() string { return f.Column }

func (f Equals) fragment() (string, []any, error) {
	if f.Value == nil {
		return Quote(f.Column) + " IS NULL", nil, nil
	}
	return Quote(f.Column) + " = ?", []any{f.Value}, nil
}

// In matches rows where the column is one of the values. A nil among the values
// means "or is null". At least one value is required.
type In struct {
	Column string
	Values []any
}

// FilterColumn returns the filtered column name.
func (f In) FilterColumn() string { return f.Column }

func (f In) fragment() (string, []any, error) {
	if len(f.Values) == 0 {
		return "", nil, &ValidationError{Msg: fmt.Sprintf("in-filter on %q needs at least one value", f.Column)}
	}
	var params []any
	hasNull := false
	for _, v := range f.Values {
		if v == nil {
			hasNull = true
			continue
		}
		params = append(params, v)
	}

	if len(params) == 0 { // only null present, degenerates to a plain null check
		return Quote(f.Column) + " IS NULL", nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(params)), ", ")
	frag := fmt.Sprintf("%s IN (%s)", Quote(f.Column), placeholders)
	if hasNull {
		frag = fmt.Sprintf("(%s OR %s IS NULL)", frag, Quote(f.Column))
	}
	return frag, params, nil
}

// Compare matches rows ordered against a single numeric value.
type Compare struct {
	Column string
	Op     CompareOp
	Value  any
}

// FilterColumn returns the filtered column name.
func (f Compare) FilterColumn() string { return f.Column }

func (f Compare) fragment() (string, []any, error) {
	switch f.Op {
	case Gt, Gte, Lt, Lte:
	default:
		return "", nil, &ValidationError{Msg: fmt.Sprintf("unknown comparison operator %q on %q", f.Op, f.Column)}
	}
	if !isNumeric(f.Value) {
		return "", nil, &ValidationError{Msg: fmt.Sprintf("comparison on %q needs a numeric value, got %T", f.Column, f.Value)}
	}
	return fmt.Sprintf("%s %s ?", Quote(f.Column), f.Op), []any{f.Value}, nil
}

// Between matches rows with the column inside [Start, End], both inclusive.
// Both bounds are required; start greater than end is passed to the engine as is.
type Between struct {
	Column string
	Start  *float64
	End    *float64
}

// FilterColumn returns the filtered column name.
func (f Between) FilterColumn() string { return f.Column }

func (f Between) fragment() (string, []any, error) {
	if f.Start == nil || f.End == nil {
		return "", nil, &ValidationError{Msg: fmt.Sprintf("between-filter on %q needs both bounds", f.Column)}
	}
	return Quote(f.Column) + " BETWEEN ? AND ?", []any{*f.Start, *f.End}, nil
}

// IsNull matches rows where the column is null.
type IsNull struct {
	Column string
}

// FilterColumn returns the filtered column name.
func (f IsNull) FilterColumn() string { return f.Column }

func (f IsNull) fragment() (string, []any, error) {
	return Quote(f.Column) + " IS NULL", nil, nil
}

// NotNull matches rows where the column is not null.
type NotNull struct {
	Column string
}

// FilterColumn returns the filtered column name.
func (f NotNull) FilterColumn() string { return f.Column }

func (f NotNull) fragment() (string, []any, error) {
	return Quote(f.Column) + " IS NOT NULL", nil, nil
}

// squashFilters enforces one filter per column: a later filter on the same column
// replaces the earlier one in place.
func squashFilters(filters []Filter) []Filter {
	res := make([]Filter, 0, len(filters))
	pos := map[string]int{}
	for _, f := range filters {
		if i, ok := pos[f.FilterColumn()]; ok {
			res[i] = f
			continue
		}
		pos[f.FilterColumn()] = len(res)
		res = append(res, f)
	}
	return res
}

func isNumeric(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}
