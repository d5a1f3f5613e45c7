package dataview

import "strings"

// rowIDColumn is the synthetic projection alias carrying the native rowid in every
// browse result. Unlikely enough to never collide with a real column.
const rowIDColumn = "_dbglance_rowid_"

// RowID is a stable identifier of a single row: either the native rowid the engine
// assigned, or the ordered values of the table's primary key columns when no rowid
// is available. A RowID with neither is invalid and unusable for mutations.
type RowID struct {
	rowid *int64
	pk    []PKValue
}

// PKValue is one primary key column with its current value, ordered by key ordinal.
type PKValue struct {
	Column string
	Value  any
}

// NativeRowID makes an identifier from the engine-assigned rowid.
func NativeRowID(id int64) RowID {
	return RowID{rowid: &id}
}

// CompositeRowID makes an identifier from primary key values in key ordinal order.
func CompositeRowID(pk ...PKValue) RowID {
	return RowID{pk: pk}
}

// Valid reports whether the identifier can address a row.
func (id RowID) Valid() bool { return id.rowid != nil || len(id.pk) > 0 }

// DeriveRowID resolves a row to a stable identifier. The native rowid from the
// synthetic column wins when present and numeric; otherwise the primary key values
// are collected in the given ordinal order. Neither available is a fatal
// precondition, the caller gets InvalidIdentifierError and must not mutate.
func DeriveRowID(table string, row map[string]any, pkColumns []string) (RowID, error) {
	if v, ok := row[rowIDColumn]; ok {
		if n, ok := asInt64(v); ok {
			return NativeRowID(n), nil
		}
	}

	pk := make([]PKValue, 0, len(pkColumns))
	for _, col := range pkColumns {
		v, ok := row[col]
		if !ok {
			return RowID{}, &InvalidIdentifierError{Table: table}
		}
		pk = append(pk, PKValue{Column: col, Value: v})
	}
	if len(pk) == 0 {
		return RowID{}, &InvalidIdentifierError{Table: table}
	}
	return CompositeRowID(pk...), nil
}

// WhereClause renders the identifier as a WHERE body with bound parameters.
// An invalid identifier returns an error, never an empty clause: an empty clause
// on a mutation would hit every row in the table.
func (id RowID) WhereClause(table string) (clause string, params []any, err error) {
	if id.rowid != nil {
		return "rowid = ?", []any{*id.rowid}, nil
	}
	if len(id.pk) == 0 {
		return "", nil, &InvalidIdentifierError{Table: table}
	}
	parts := make([]string, 0, len(id.pk))
	for _, p := range id.pk {
		parts = append(parts, Quote(p.Column)+" = ?")
		params = append(params, p.Value)
	}
	return strings.Join(parts, " AND "), params, nil
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}
