package dataview

import (
	"fmt"
	"log"
	"strings"

	"github.com/dbglance/dbglance/pkg/engine"
)

// ColumnInfo describes a single column of a table.
type ColumnInfo struct {
	Ordinal           int    // declared position, 0-based
	Name              string
	DeclaredType      string
	NotNull           bool
	DefaultValue      any    // nil when no default declared
	PrimaryKeyOrdinal int    // 0 if not part of the primary key, 1-based position otherwise
}

// TableSchema is the cached column metadata of one table.
type TableSchema struct {
	Name     string
	Columns  []ColumnInfo
	HasRowID bool // false for WITHOUT ROWID tables
}

// PKColumns returns primary key column names ordered by key ordinal.
func (t TableSchema) PKColumns() []string {
	byOrdinal := map[int]string{}
	max := 0
	for _, c := range t.Columns {
		if c.PrimaryKeyOrdinal > 0 {
			byOrdinal[c.PrimaryKeyOrdinal] = c.Name
			if c.PrimaryKeyOrdinal > max {
				max = c.PrimaryKeyOrdinal
			}
		}
	}
	res := make([]string, 0, len(byOrdinal))
	for i := 1; i <= max; i++ {
		if name, ok := byOrdinal[i]; ok {
			res = append(res, name)
		}
	}
	return res
}

// ColumnNames returns all column names in declared order.
func (t TableSchema) ColumnNames() []string {
	res := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		res[i] = c.Name
	}
	return res
}

// SchemaCache fetches table metadata lazily and keeps it for the session.
// Invalidate drops everything, used when ad-hoc DDL is detected.
type SchemaCache struct {
	eng    *engine.Engine
	tables map[string]TableSchema
}

// NewSchemaCache creates an empty cache over the given engine.
func NewSchemaCache(eng *engine.Engine) *SchemaCache {
	return &SchemaCache{eng: eng, tables: map[string]TableSchema{}}
}

// Table returns cached metadata for a table, fetching it on first use.
// Unknown table fails with SchemaError.
func (c *SchemaCache) Table(name string) (TableSchema, error) {
	if t, ok := c.tables[name]; ok {
		return t, nil
	}
	t, err := c.fetch(name)
	if err != nil {
		return TableSchema{}, err
	}
	c.tables[name] = t
	return t, nil
}

// Invalidate drops all cached metadata.
func (c *SchemaCache) Invalidate() {
	log.Printf("[DEBUG] schema cache invalidated, %d tables dropped", len(c.tables))
	c.tables = map[string]TableSchema{}
}

func (c *SchemaCache) fetch(name string) (TableSchema, error) {
	// the create statement tells if the table exists and if it keeps a rowid
	rows, err := c.eng.Query(`SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?`, name)
	if err != nil {
		return TableSchema{}, fmt.Errorf("can't check table %q: %w", name, err)
	}
	if !rows.Next() {
		_ = rows.Close()
		return TableSchema{}, &SchemaError{Table: name}
	}
	vals, err := rows.Scan()
	if cerr := rows.Close(); cerr != nil {
		return TableSchema{}, cerr
	}
	if err != nil {
		return TableSchema{}, err
	}
	createSQL, _ := vals[0].(string)
	hasRowID := !strings.Contains(strings.ToUpper(createSQL), "WITHOUT ROWID")

	rows, err = c.eng.Query(fmt.Sprintf("PRAGMA table_info(%s)", Quote(name)))
	if err != nil {
		return TableSchema{}, fmt.Errorf("can't read columns of %q: %w", name, err)
	}
	defer rows.Close()

	t := TableSchema{Name: name, HasRowID: hasRowID}
	for rows.Next() {
		vals, err := rows.Scan()
		if err != nil {
			return TableSchema{}, err
		}
		// table_info columns: cid, name, type, notnull, dflt_value, pk
		col := ColumnInfo{
			Ordinal:           int(toInt64(vals[0])),
			Name:              asString(vals[1]),
			DeclaredType:      asString(vals[2]),
			NotNull:           toInt64(vals[3]) != 0,
			DefaultValue:      vals[4],
			PrimaryKeyOrdinal: int(toInt64(vals[5])),
		}
		t.Columns = append(t.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return TableSchema{}, fmt.Errorf("can't iterate columns of %q: %w", name, err)
	}
	if len(t.Columns) == 0 {
		return TableSchema{}, &SchemaError{Table: name}
	}
	log.Printf("[DEBUG] loaded schema of %q: %d columns, rowid=%v", name, len(t.Columns), t.HasRowID)
	return t, nil
}

func toInt64(v any) int64 {
	if n, ok := asInt64(v); ok {
		return n
	}
	return 0
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	}
	return fmt.Sprintf("%v", v)
}
