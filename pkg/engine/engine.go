// Package engine wraps a single embedded sqlite database opened from a byte image.
// It owns the backing file, serializes all access to the connection and knows how
// to export the current state back to bytes. The rest of the system never touches
// database/sql directly.
package engine

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // sqlite driver loaded here
)

// Engine is a single open sqlite database. Not safe for concurrent use on its own;
// every public method takes the internal lock, and Begin/Query hold it until the
// returned Tx/Rows is finished, so statements never interleave on the same handle.
type Engine struct {
	mu   sync.Mutex
	db   *sql.DB
	path string // backing file, owned by the engine and removed on Close
}

// Open creates an engine from a database image. Empty image creates a fresh database.
// The image is written to a working file under workDir; the file is private to the
// engine and deleted when the engine is closed.
func Open(image []byte, workDir string) (*Engine, error) {
	f, err := os.CreateTemp(workDir, "dbglance-*.sqlite")
	if err != nil {
		return nil, fmt.Errorf("can't create working file: %w", err)
	}
	path := f.Name()
	if len(image) > 0 {
		if _, err = f.Write(image); err != nil {
			_ = f.Close()
			_ = os.Remove(path)
			return nil, fmt.Errorf("can't write database image: %w", err)
		}
	}
	if err = f.Close(); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("can't close working file: %w", err)
	}

	db, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("can't open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single connection, the engine is not reentrant

	if err = db.Ping(); err != nil {
		_ = db.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("can't ping database: %w", err)
	}
	return &Engine{db: db, path: path}, nil
}

// Exec runs a statement without parameters, i.e. DDL or pragmas.
func (e *Engine) Exec(query string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.db.Exec(query); err != nil {
		return fmt.Errorf("exec failed: %w", err)
	}
	return nil
}

// Run executes a parameterized statement and reports affected rows.
func (e *Engine) Run(query string, params ...any) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	res, err := e.db.Exec(query, params...)
	if err != nil {
		return 0, fmt.Errorf("run failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("can't get affected rows: %w", err)
	}
	return affected, nil
}

// Query executes a select-like statement. The returned Rows holds the engine lock
// until Close, callers must always close it.
func (e *Engine) Query(query string, params ...any) (*Rows, error) {
	e.mu.Lock()
	rows, err := e.db.Query(query, params...)
	if err != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("query failed: %w", err)
	}
	cols, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		e.mu.Unlock()
		return nil, fmt.Errorf("can't get columns: %w", err)
	}
	return &Rows{rows: rows, cols: cols, unlock: e.mu.Unlock}, nil
}

// Begin starts a transaction and holds the engine lock until Commit or Rollback,
// so no other statement can slip inside the transaction.
func (e *Engine) Begin() (*Tx, error) {
	e.mu.Lock()
	tx, err := e.db.Begin()
	if err != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("can't begin transaction: %w", err)
	}
	return &Tx{tx: tx, unlock: e.mu.Unlock}, nil
}

// ExportImage returns the current database content as bytes. Implemented with
// VACUUM INTO a scratch file, which also compacts the image.
func (e *Engine) ExportImage() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	dir := filepath.Dir(e.path)
	f, err := os.CreateTemp(dir, "dbglance-export-*.sqlite")
	if err != nil {
		return nil, fmt.Errorf("can't create export file: %w", err)
	}
	tmp := f.Name()
	_ = f.Close()
	_ = os.Remove(tmp) // VACUUM INTO requires the target to not exist
	defer os.Remove(tmp)

	// identifiers can't be bound, the path is escaped as a string literal
	stmt := fmt.Sprintf("VACUUM INTO '%s'", strings.ReplaceAll(tmp, "'", "''"))
	if _, err = e.db.Exec(stmt); err != nil {
		return nil, fmt.Errorf("vacuum into failed: %w", err)
	}

	data, err := os.ReadFile(tmp) // nolint
	if err != nil {
		return nil, fmt.Errorf("can't read export file: %w", err)
	}
	return data, nil
}

// Close closes the connection and removes the backing file.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.db == nil {
		return nil
	}
	err := e.db.Close()
	e.db = nil
	if rmErr := os.Remove(e.path); rmErr != nil && !os.IsNotExist(rmErr) {
		log.Printf("[WARN] can't remove working file %s: %v", e.path, rmErr)
	}
	if err != nil {
		return fmt.Errorf("can't close database: %w", err)
	}
	return nil
}

// Rows is a stepwise cursor over a query result.
type Rows struct {
	rows   *sql.Rows
	cols   []string
	unlock func()
	done   bool
}

// Columns returns result column names in projection order.
func (r *Rows) Columns() []string { return r.cols }

// Next advances to the next row, false on exhaustion or error.
func (r *Rows) Next() bool { return r.rows.Next() }

// Scan reads the current row. Values come back as driver natives:
// int64, float64, string, []byte or nil.
func (r *Rows) Scan() ([]any, error) {
	vals := make([]any, len(r.cols))
	ptrs := make([]any, len(r.cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("can't scan row: %w", err)
	}
	return vals, nil
}

// Err reports any error hit during iteration.
func (r *Rows) Err() error { return r.rows.Err() }

// Close releases the cursor and the engine lock. Safe to call multiple times.
func (r *Rows) Close() error {
	if r.done {
		return nil
	}
	r.done = true
	err := r.rows.Close()
	r.unlock()
	return err
}

// Tx is an open transaction. The engine stays locked until Commit or Rollback.
type Tx struct {
	tx     *sql.Tx
	unlock func()
	done   bool
}

// Run executes a parameterized statement inside the transaction.
func (t *Tx) Run(query string, params ...any) (int64, error) {
	res, err := t.tx.Exec(query, params...)
	if err != nil {
		return 0, fmt.Errorf("run in transaction failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("can't get affected rows: %w", err)
	}
	return affected, nil
}

// Commit finishes the transaction and releases the engine.
func (t *Tx) Commit() error {
	if t.done {
		return fmt.Errorf("transaction already finished")
	}
	t.done = true
	err := t.tx.Commit()
	t.unlock()
	if err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	return nil
}

// Rollback aborts the transaction and releases the engine. Safe after Commit.
func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	err := t.tx.Rollback()
	t.unlock()
	if err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	return nil
}
