// Package dataview is the data-access layer: it turns UI-level intents (pagination,
// sorting, column filters, free-text search, single-row edits) into safe SQL with
// bound parameters, resolves rows to stable identifiers, wraps mutations in
// transactions and keeps the persisted database image in sync.
package dataview

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/dbglance/dbglance/pkg/engine"
	"github.com/dbglance/dbglance/pkg/store"
)

// Service owns all loaded databases and the active selection. One instance is
// constructed by the hosting application and passed around explicitly; there is
// no package-level singleton. Expected to be driven from a single logical thread,
// per-statement serialization happens inside each engine handle.
type Service struct {
	store   store.Store // nil disables persistence entirely
	workDir string
	limits  Limits
	handles map[string]*handle
	active  string
}

type handle struct {
	id        string
	name      string
	eng       *engine.Engine
	schema    *SchemaCache
	size      int64
	persisted bool // false for large files loaded in ephemeral mode
	loadedAt  time.Time
}

// DatabaseInfo describes one loaded database for listing.
type DatabaseInfo struct {
	ID        string
	Name      string
	SizeBytes int64
	Active    bool
	Persisted bool
	LoadedAt  time.Time
}

// NewService creates the service. Pass a nil store to keep everything in memory.
func NewService(st store.Store, workDir string, limits Limits) *Service {
	return &Service{store: st, workDir: workDir, limits: limits.normalized(), handles: map[string]*handle{}}
}

// Limits returns the current ceilings.
func (s *Service) Limits() Limits { return s.limits }

// SetLimits replaces the ceilings, normalizing MaxRows to its floor.
func (s *Service) SetLimits(l Limits) {
	s.limits = l.normalized()
	log.Printf("[INFO] limits set: maxRows=%d, memoryOptimizations=%v", s.limits.MaxRows, s.limits.MemoryOptimizations)
}

// Restore loads every database image found in the store. Called once on startup;
// the first restored database becomes active if none is selected yet.
func (s *Service) Restore() error {
	if s.store == nil {
		return nil
	}
	recs, err := s.store.GetAll()
	if err != nil {
		return fmt.Errorf("can't list stored databases: %w", err)
	}
	for _, rec := range recs {
		eng, err := engine.Open(rec.Bytes, s.workDir)
		if err != nil {
			log.Printf("[WARN] can't restore database %s (%s): %v", rec.ID, rec.Name, err)
			continue
		}
		s.handles[rec.ID] = &handle{
			id: rec.ID, name: rec.Name, eng: eng, schema: NewSchemaCache(eng),
			size: rec.SizeBytes, persisted: true, loadedAt: time.Now(),
		}
		if s.active == "" {
			s.active = rec.ID
		}
		log.Printf("[INFO] restored database %s (%s), %d bytes", rec.ID, rec.Name, rec.SizeBytes)
	}
	return nil
}

// LoadDatabase opens a database image, registers it under a fresh id and makes it
// active. Images over the capacity limit are rejected; images over the ephemeral
// threshold load without persistence, which is reported on the handle, not hidden.
func (s *Service) LoadDatabase(image []byte, name string) (string, error) {
	size := int64(len(image))
	if s.limits.MaxFileBytes > 0 && size > s.limits.MaxFileBytes {
		return "", &CapacityError{Name: name, SizeBytes: size, Limit: s.limits.MaxFileBytes}
	}

	persisted := s.store != nil
	if s.limits.MemoryOptimizations && s.limits.EphemeralFileBytes > 0 && size > s.limits.EphemeralFileBytes {
		persisted = false
		log.Printf("[WARN] database %q is %d bytes, loaded ephemeral: it will not survive a restart", name, size)
	}

	eng, err := engine.Open(image, s.workDir)
	if err != nil {
		return "", fmt.Errorf("can't open database %q: %w", name, err)
	}

	id := uuid.New().String()
	h := &handle{id: id, name: name, eng: eng, schema: NewSchemaCache(eng), size: size, persisted: persisted, loadedAt: time.Now()}
	s.handles[id] = h
	s.active = id

	if persisted {
		rec := store.Record{ID: id, Name: name, SizeBytes: size, Timestamp: time.Now(), Bytes: image}
		if err := s.store.Put(rec); err != nil {
			return id, &PersistenceError{DatabaseID: id, Err: err}
		}
	}
	log.Printf("[INFO] loaded database %s (%s), %d bytes, persisted=%v", id, name, size, persisted)
	return id, nil
}

// SelectDatabase makes the given database active.
func (s *Service) SelectDatabase(id string) error {
	if _, ok := s.handles[id]; !ok {
		return fmt.Errorf("unknown database %s", id)
	}
	s.active = id
	log.Printf("[DEBUG] active database is now %s", id)
	return nil
}

// RemoveDatabase closes a database and drops its stored image.
func (s *Service) RemoveDatabase(id string) error {
	h, ok := s.handles[id]
	if !ok {
		return fmt.Errorf("unknown database %s", id)
	}
	errs := new(multierror.Error)
	if err := h.eng.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("can't close database %s: %w", id, err))
	}
	if s.store != nil && h.persisted {
		if err := s.store.Delete(id); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("can't drop stored image %s: %w", id, err))
		}
	}
	delete(s.handles, id)
	if s.active == id {
		s.active = ""
		for hid := range s.handles { // any remaining database becomes active
			s.active = hid
			break
		}
	}
	log.Printf("[INFO] removed database %s", id)
	return errs.ErrorOrNil()
}

// ListDatabases returns all loaded databases, active one flagged.
func (s *Service) ListDatabases() []DatabaseInfo {
	res := make([]DatabaseInfo, 0, len(s.handles))
	for _, h := range s.handles {
		res = append(res, DatabaseInfo{
			ID: h.id, Name: h.name, SizeBytes: h.size,
			Active: h.id == s.active, Persisted: h.persisted, LoadedAt: h.loadedAt,
		})
	}
	return res
}

// Close closes every loaded database, collecting all failures.
func (s *Service) Close() error {
	errs := new(multierror.Error)
	for id, h := range s.handles {
		if err := h.eng.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("can't close database %s: %w", id, err))
		}
	}
	s.handles = map[string]*handle{}
	s.active = ""
	return errs.ErrorOrNil()
}

// ListTables returns user table names of a database, sorted. Empty id means active.
func (s *Service) ListTables(databaseID string) ([]string, error) {
	h, err := s.handle(databaseID)
	if err != nil {
		return nil, err
	}
	rows, err := h.eng.Query(`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, &EngineError{Err: err}
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		vals, err := rows.Scan()
		if err != nil {
			return nil, err
		}
		tables = append(tables, asString(vals[0]))
	}
	return tables, rows.Err()
}

// Columns returns cached column metadata of a table. Empty id means active.
func (s *Service) Columns(table, databaseID string) ([]ColumnInfo, error) {
	h, err := s.handle(databaseID)
	if err != nil {
		return nil, err
	}
	t, err := h.schema.Table(table)
	if err != nil {
		return nil, err
	}
	return t.Columns, nil
}

// Browse runs one paginated table read with search, filters and sorting, plus the
// parallel exact count unless the limiter skips it.
func (s *Service) Browse(req BrowseRequest, databaseID string) (QueryResult, error) {
	h, err := s.handle(databaseID)
	if err != nil {
		return QueryResult{}, err
	}
	t, err := h.schema.Table(req.Table)
	if err != nil {
		return QueryResult{}, err
	}
	q, err := composeBrowse(t, req, s.limits)
	if err != nil {
		return QueryResult{}, err
	}

	total := int64(UnknownTotal)
	if q.CountSQL != "" {
		if total, err = s.runCount(h, q.CountSQL, q.CountParams); err != nil {
			return QueryResult{}, err
		}
	}

	res, err := s.readRows(h, q.SelectSQL, q.SelectParams, 0)
	if err != nil {
		return QueryResult{}, err
	}
	res.TotalCount = total
	res.Limit = q.Limit
	res.Offset = q.Offset
	return res, nil
}

// RunQuery executes ad-hoc SQL. Reads are truncated at the MaxRows ceiling when
// memory optimizations are on, with the unknown sentinel instead of a false total.
// DDL statements invalidate the schema cache, non-read statements trigger
// persistence of the new image.
func (s *Service) RunQuery(query, databaseID string) (QueryResult, error) {
	h, err := s.handle(databaseID)
	if err != nil {
		return QueryResult{}, err
	}

	maxRows := 0
	if s.limits.MemoryOptimizations {
		maxRows = s.limits.MaxRows
	}
	res, err := s.readRows(h, query, nil, maxRows)
	if err != nil {
		return QueryResult{}, err
	}

	switch keyword := firstKeyword(query); keyword {
	case "CREATE", "ALTER", "DROP":
		h.schema.Invalidate()
		fallthrough
	case "INSERT", "UPDATE", "DELETE", "REPLACE", "VACUUM", "REINDEX":
		if perr := s.persistImage(h); perr != nil {
			return res, perr
		}
	}
	return res, nil
}

// InsertRow adds one row; an empty value map inserts all defaults.
func (s *Service) InsertRow(table string, values map[string]any, databaseID string) error {
	h, t, m, err := s.mutator(table, databaseID)
	if err != nil {
		return err
	}
	if err := m.insert(t, values); err != nil {
		return err
	}
	log.Printf("[DEBUG] inserted row into %q (db %s)", table, h.id)
	return nil
}

// UpdateRow modifies one row addressed by id.
func (s *Service) UpdateRow(table string, id RowID, values map[string]any, databaseID string) error {
	h, t, m, err := s.mutator(table, databaseID)
	if err != nil {
		return err
	}
	if err := m.update(t, id, values); err != nil {
		return err
	}
	log.Printf("[DEBUG] updated row in %q (db %s)", table, h.id)
	return nil
}

// DeleteRow removes one row addressed by id.
func (s *Service) DeleteRow(table string, id RowID, databaseID string) error {
	h, t, m, err := s.mutator(table, databaseID)
	if err != nil {
		return err
	}
	if err := m.delete(t, id); err != nil {
		return err
	}
	log.Printf("[DEBUG] deleted row from %q (db %s)", table, h.id)
	return nil
}

// ExportDatabase returns the current image of a database as bytes.
func (s *Service) ExportDatabase(databaseID string) ([]byte, error) {
	h, err := s.handle(databaseID)
	if err != nil {
		return nil, err
	}
	return h.eng.ExportImage()
}

// RowIdentifier resolves a browse-result row to a stable identifier for later
// mutations, preferring the native rowid and falling back to the primary key.
func (s *Service) RowIdentifier(table string, row map[string]any, databaseID string) (RowID, error) {
	h, err := s.handle(databaseID)
	if err != nil {
		return RowID{}, err
	}
	t, err := h.schema.Table(table)
	if err != nil {
		return RowID{}, err
	}
	return DeriveRowID(table, row, t.PKColumns())
}

// EstimateUsage reports space taken in the persistent store.
func (s *Service) EstimateUsage() (store.Usage, error) {
	if s.store == nil {
		return store.Usage{}, nil
	}
	return s.store.EstimateUsage()
}

func (s *Service) handle(id string) (*handle, error) {
	if id == "" {
		id = s.active
	}
	if id == "" {
		return nil, fmt.Errorf("no active database")
	}
	h, ok := s.handles[id]
	if !ok {
		return nil, fmt.Errorf("unknown database %s", id)
	}
	return h, nil
}

func (s *Service) mutator(table, databaseID string) (*handle, TableSchema, *mutator, error) {
	h, err := s.handle(databaseID)
	if err != nil {
		return nil, TableSchema{}, nil, err
	}
	t, err := h.schema.Table(table)
	if err != nil {
		return nil, TableSchema{}, nil, err
	}
	m := &mutator{eng: h.eng, dbID: h.id, export: h.eng.ExportImage}
	if s.store != nil && h.persisted {
		m.persist = func(image []byte) error {
			rec := store.Record{ID: h.id, Name: h.name, SizeBytes: int64(len(image)), Timestamp: time.Now(), Bytes: image}
			if err := s.store.Put(rec); err != nil {
				return &PersistenceError{DatabaseID: h.id, Err: err}
			}
			h.size = rec.SizeBytes
			return nil
		}
	}
	return h, t, m, nil
}

// persistImage exports and stores the current image of a handle, used after
// ad-hoc statements that changed the database.
func (s *Service) persistImage(h *handle) error {
	if s.store == nil || !h.persisted {
		return nil
	}
	image, err := h.eng.ExportImage()
	if err != nil {
		return &PersistenceError{DatabaseID: h.id, Err: err}
	}
	rec := store.Record{ID: h.id, Name: h.name, SizeBytes: int64(len(image)), Timestamp: time.Now(), Bytes: image}
	if err := s.store.Put(rec); err != nil {
		return &PersistenceError{DatabaseID: h.id, Err: err}
	}
	h.size = rec.SizeBytes
	return nil
}

// readRows executes a select-like statement and collects rows. maxRows of zero
// reads everything; a positive value stops the cursor early and flags the result
// with the unknown sentinel instead of a wrong total.
func (s *Service) readRows(h *handle, query string, params []any, maxRows int) (QueryResult, error) {
	rows, err := h.eng.Query(query, params...)
	if err != nil {
		return QueryResult{}, &EngineError{Stmt: query, Err: err}
	}
	defer rows.Close()

	res := QueryResult{Columns: rows.Columns()}
	truncated := false
	for rows.Next() {
		if maxRows > 0 && len(res.Rows) >= maxRows {
			truncated = true
			break
		}
		vals, err := rows.Scan()
		if err != nil {
			return QueryResult{}, err
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return QueryResult{}, &EngineError{Stmt: query, Err: err}
	}
	res.RowCount = len(res.Rows)
	res.TotalCount = int64(res.RowCount)
	if truncated {
		res.TotalCount = UnknownTotal
		log.Printf("[DEBUG] result truncated at %d rows", maxRows)
	}
	return res, nil
}

func (s *Service) runCount(h *handle, query string, params []any) (int64, error) {
	rows, err := h.eng.Query(query, params...)
	if err != nil {
		return 0, &EngineError{Stmt: query, Err: err}
	}
	defer rows.Close()
	if !rows.Next() {
		return 0, rows.Err()
	}
	vals, err := rows.Scan()
	if err != nil {
		return 0, err
	}
	n, _ := asInt64(vals[0])
	return n, nil
}

// firstKeyword returns the effective leading keyword of a statement: leading
// comments are skipped, and for a WITH statement the verb after the CTE list is
// resolved, so "WITH ids AS (...) DELETE ..." reports DELETE, not WITH.
func firstKeyword(query string) string {
	rest := stripLeadingSQL(query)
	word, rest := nextSQLWord(rest)
	kw := strings.ToUpper(word)
	if kw != "WITH" {
		return kw
	}

	depth := 0
	for rest != "" {
		rest = stripLeadingSQL(rest)
		if rest == "" {
			break
		}
		switch c := rest[0]; {
		case c == '(':
			depth++
			rest = rest[1:]
		case c == ')':
			depth--
			rest = rest[1:]
		case c == '\'' || c == '"' || c == '`':
			rest = skipSQLQuoted(rest)
		case isSQLWordByte(c):
			word, rest = nextSQLWord(rest)
			if depth == 0 {
				switch w := strings.ToUpper(word); w {
				case "SELECT", "INSERT", "UPDATE", "DELETE", "REPLACE":
					return w
				}
			}
		default:
			rest = rest[1:]
		}
	}
	return kw
}

// stripLeadingSQL drops whitespace and comments from the front of a statement.
func stripLeadingSQL(s string) string {
	for {
		s = strings.TrimLeft(s, " \t\r\n")
		switch {
		case strings.HasPrefix(s, "--"):
			i := strings.IndexByte(s, '\n')
			if i < 0 {
				return ""
			}
			s = s[i+1:]
		case strings.HasPrefix(s, "/*"):
			i := strings.Index(s[2:], "*/")
			if i < 0 {
				return ""
			}
			s = s[i+4:]
		default:
			return s
		}
	}
}

func nextSQLWord(s string) (word, rest string) {
	i := 0
	for i < len(s) && isSQLWordByte(s[i]) {
		i++
	}
	return s[:i], s[i:]
}

func isSQLWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '_'
}

// skipSQLQuoted advances past a quoted literal or identifier, doubled quotes
// stay inside the literal.
func skipSQLQuoted(s string) string {
	q := s[0]
	for i := 1; i < len(s); i++ {
		if s[i] != q {
			continue
		}
		if i+1 < len(s) && s[i+1] == q {
			i++
			continue
		}
		return s[i+1:]
	}
	return ""
}
