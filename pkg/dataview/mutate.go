package dataview

import (
	"fmt"
	"log"
	"strings"

	"github.com/dbglance/dbglance/pkg/engine"
)

// mutator applies single-row mutations. Every statement runs inside an explicit
// transaction: begin, execute, commit, then export the database image and hand it
// to persist. Any execution failure rolls back, rollback's own failure is swallowed
// and the original error is re-raised. Commit and persistence are not atomic with
// each other: a persist failure after commit surfaces as PersistenceError while the
// in-memory database keeps the mutation.
type mutator struct {
	eng     *engine.Engine
	dbID    string
	export  func() ([]byte, error)   // image snapshot after commit, nil skips persistence
	persist func(image []byte) error // nil for ephemeral handles
}

// insert adds one row. No columns at all issues a default-values insert.
func (m *mutator) insert(t TableSchema, values map[string]any) error {
	cols, params, err := usableValues(t, values)
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		return m.apply("INSERT INTO " + Quote(t.Name) + " DEFAULT VALUES")
	}

	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = Quote(c)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", Quote(t.Name), strings.Join(quoted, ", "), placeholders)
	return m.apply(stmt, params...)
}

// update modifies one row addressed by id. A value map with zero usable entries is
// a no-op reported as success, nothing reaches the engine.
func (m *mutator) update(t TableSchema, id RowID, values map[string]any) error {
	where, whereParams, err := id.WhereClause(t.Name)
	if err != nil {
		return err
	}

	cols, params, err := usableValues(t, values)
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		log.Printf("[DEBUG] update of %q with no usable values, skipped", t.Name)
		return nil
	}

	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = Quote(c) + " = ?"
	}
	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s", Quote(t.Name), strings.Join(sets, ", "), where)
	return m.apply(stmt, append(params, whereParams...)...)
}

// delete removes one row addressed by id.
func (m *mutator) delete(t TableSchema, id RowID) error {
	where, whereParams, err := id.WhereClause(t.Name)
	if err != nil {
		return err
	}
	return m.apply(fmt.Sprintf("DELETE FROM %s WHERE %s", Quote(t.Name), where), whereParams...)
}

// apply is the transaction state machine shared by all three mutations.
func (m *mutator) apply(stmt string, params ...any) error {
	bound := make([]any, len(params))
	for i, p := range params {
		bound[i] = bindValue(p)
	}

	tx, err := m.eng.Begin()
	if err != nil {
		return &EngineError{Stmt: stmt, Err: err}
	}
	if _, err = tx.Run(stmt, bound...); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Printf("[WARN] rollback failed: %v", rbErr) // original error still wins
		}
		return &EngineError{Stmt: stmt, Err: err}
	}
	if err = tx.Commit(); err != nil {
		return &EngineError{Stmt: stmt, Err: err}
	}

	if m.persist == nil || m.export == nil {
		return nil
	}
	// past this point the mutation is committed; anything that fails is a
	// stale durable copy, not a lost mutation
	image, err := m.export()
	if err != nil {
		return &PersistenceError{DatabaseID: m.dbID, Err: err}
	}
	return m.persist(image)
}

// usableValues picks the supplied values in declared column order. The synthetic
// rowid alias is dropped silently, any other unknown column is a SchemaError
// raised before the engine sees the statement.
func usableValues(t TableSchema, values map[string]any) (cols []string, params []any, err error) {
	known := map[string]bool{}
	for _, c := range t.Columns {
		known[c.Name] = true
	}
	for name := range values {
		if name != rowIDColumn && !known[name] {
			return nil, nil, &SchemaError{Table: t.Name, Column: name}
		}
	}
	for _, c := range t.Columns {
		v, ok := values[c.Name]
		if !ok {
			continue
		}
		cols = append(cols, c.Name)
		params = append(params, v)
	}
	return cols, params, nil
}

// bindValue coerces a value before binding, uniformly for every parameter:
// nil stays NULL, booleans become 1/0, numbers, strings and byte blobs pass
// through, anything else is bound as its string representation. The engine
// applies its own type affinity after that.
func bindValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case bool:
		if t {
			return int64(1)
		}
		return int64(0)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, string, []byte:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}
