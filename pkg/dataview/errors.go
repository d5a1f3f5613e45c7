package dataview

import "fmt"

// SchemaError reports an unknown table or column.
type SchemaError struct {
	Table  string
	Column string
}

func (e *SchemaError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("unknown column %q in table %q", e.Column, e.Table)
	}
	return fmt.Sprintf("unknown table %q", e.Table)
}

// InvalidIdentifierError reports a mutation attempted without a usable row
// identifier. A mutation never runs with an empty WHERE clause.
type InvalidIdentifierError struct {
	Table string
}

func (e *InvalidIdentifierError) Error() string {
	return fmt.Sprintf("no usable row identifier for table %q", e.Table)
}

// ValidationError reports a malformed filter or request before it reaches the engine.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// EngineError wraps a statement the embedded engine rejected.
type EngineError struct {
	Stmt string
	Err  error
}

func (e *EngineError) Error() string { return fmt.Sprintf("engine rejected statement: %v", e.Err) }
func (e *EngineError) Unwrap() error { return e.Err }

// PersistenceError reports a failed durable write after a successful commit.
// The in-memory database holds the mutation, the stored copy may be stale.
type PersistenceError struct {
	DatabaseID string
	Err        error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("mutation committed but persisting database %s failed: %v", e.DatabaseID, e.Err)
}
func (e *PersistenceError) Unwrap() error { return e.Err }

// CapacityError reports a database file too large under current configuration.
type CapacityError struct {
	Name      string
	SizeBytes int64
	Limit     int64
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("database %q is %d bytes, over the %d bytes limit", e.Name, e.SizeBytes, e.Limit)
}
