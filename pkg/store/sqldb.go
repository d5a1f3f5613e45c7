package store

import (
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // mysql driver loaded here
	_ "github.com/lib/pq"              // postgres driver loaded here
	_ "modernc.org/sqlite"             // sqlite driver loaded here
)

// SQLStore keeps database images in a SQL table.
// Supported database types: sqlite, postgres, mysql.
type SQLStore struct {
	db     *sql.DB
	crypt  *Crypt
	dbType string
}

// NewSQLStore creates the store, guessing the database type from the connection string.
func NewSQLStore(conn string, crypt *Crypt) (*SQLStore, error) {
	dbType := func(c string) (string, error) {
		if strings.HasPrefix(c, "postgres://") {
			return "postgres", nil
		}
		if strings.Contains(c, "@tcp(") {
			return "mysql", nil
		}
		if strings.HasPrefix(c, "file:") || strings.HasSuffix(c, ".sqlite") || strings.HasSuffix(c, ".db") {
			return "sqlite", nil
		}
		return "", fmt.Errorf("unsupported database type in connection string")
	}

	dbt, err := dbType(conn)
	if err != nil {
		return nil, fmt.Errorf("can't determine database type: %w", err)
	}

	db, err := sql.Open(dbt, conn)
	if err != nil {
		return nil, fmt.Errorf("error opening image store database: %w", err)
	}

	blobType := map[string]string{"sqlite": "BLOB", "postgres": "BYTEA", "mysql": "LONGBLOB"}[dbt]
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS dbglance_images `+
		`(id VARCHAR(64) PRIMARY KEY, name TEXT, size_bytes BIGINT, ts BIGINT, body %s)`, blobType)
	if _, err = db.Exec(ddl); err != nil {
		return nil, err
	}
	log.Printf("[INFO] image store: using %s database, type: %s", conn, dbt)
	return &SQLStore{db: db, crypt: crypt, dbType: dbt}, nil
}

// Put stores a record, replacing any previous one with the same id.
func (s *SQLStore) Put(rec Record) error {
	body, err := s.crypt.Encrypt(rec.Bytes)
	if err != nil {
		return fmt.Errorf("can't encrypt image %s: %w", rec.ID, err)
	}

	// use database-specific upsert statements
	var insertStmt string
	switch s.dbType {
	case "sqlite":
		insertStmt = "INSERT OR REPLACE INTO dbglance_images (id, name, size_bytes, ts, body) VALUES (?, ?, ?, ?, ?)"
	case "postgres":
		insertStmt = "INSERT INTO dbglance_images (id, name, size_bytes, ts, body) VALUES ($1, $2, $3, $4, $5) " +
			"ON CONFLICT (id) DO UPDATE SET name = $2, size_bytes = $3, ts = $4, body = $5"
	case "mysql":
		insertStmt = "REPLACE INTO dbglance_images (id, name, size_bytes, ts, body) VALUES (?, ?, ?, ?, ?)"
	default:
		return fmt.Errorf("unsupported database type: %s", s.dbType)
	}

	stmt, err := s.db.Prepare(insertStmt)
	if err != nil {
		return fmt.Errorf("error preparing insert statement: %w", err)
	}
	defer stmt.Close()

	if _, err = stmt.Exec(rec.ID, rec.Name, rec.SizeBytes, rec.Timestamp.Unix(), body); err != nil {
		return fmt.Errorf("error storing image: %w", err)
	}
	return nil
}

// Get retrieves a record by id.
func (s *SQLStore) Get(id string) (Record, error) {
	loadStmt := "SELECT name, size_bytes, ts, body FROM dbglance_images WHERE id = ?"
	if s.dbType == "postgres" {
		loadStmt = "SELECT name, size_bytes, ts, body FROM dbglance_images WHERE id = $1"
	}
	stmt, err := s.db.Prepare(loadStmt)
	if err != nil {
		return Record{}, err
	}
	defer stmt.Close()

	rec := Record{ID: id}
	var ts int64
	var body []byte
	if err = stmt.QueryRow(id).Scan(&rec.Name, &rec.SizeBytes, &ts, &body); err != nil {
		if err == sql.ErrNoRows {
			return Record{}, fmt.Errorf("record %s not found", id)
		}
		return Record{}, err
	}
	rec.Timestamp = time.Unix(ts, 0)
	if rec.Bytes, err = s.crypt.Decrypt(body); err != nil {
		return Record{}, fmt.Errorf("can't decrypt image %s: %w", id, err)
	}
	return rec, nil
}

// GetAll retrieves every stored record, oldest first.
func (s *SQLStore) GetAll() ([]Record, error) {
	rows, err := s.db.Query("SELECT id, name, size_bytes, ts, body FROM dbglance_images ORDER BY ts")
	if err != nil {
		return nil, fmt.Errorf("error listing images: %w", err)
	}
	defer rows.Close()

	var res []Record
	for rows.Next() {
		var rec Record
		var ts int64
		var body []byte
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.SizeBytes, &ts, &body); err != nil {
			return nil, fmt.Errorf("error scanning image record: %w", err)
		}
		rec.Timestamp = time.Unix(ts, 0)
		if rec.Bytes, err = s.crypt.Decrypt(body); err != nil {
			return nil, fmt.Errorf("can't decrypt image %s: %w", rec.ID, err)
		}
		res = append(res, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error retrieving image records: %w", err)
	}
	return res, nil
}

// Delete removes a record, failing if it does not exist.
func (s *SQLStore) Delete(id string) error {
	deleteStmt := "DELETE FROM dbglance_images WHERE id = ?"
	if s.dbType == "postgres" {
		deleteStmt = "DELETE FROM dbglance_images WHERE id = $1"
	}
	res, err := s.db.Exec(deleteStmt, id)
	if err != nil {
		return fmt.Errorf("error deleting image %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error checking affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("record not found in the store: %s", id)
	}
	return nil
}

// Clear removes all records.
func (s *SQLStore) Clear() error {
	if _, err := s.db.Exec("DELETE FROM dbglance_images"); err != nil {
		return fmt.Errorf("error clearing image store: %w", err)
	}
	return nil
}

// EstimateUsage sums stored image sizes. Quota is unknown for a SQL backend.
func (s *SQLStore) EstimateUsage() (Usage, error) {
	var used sql.NullInt64
	if err := s.db.QueryRow("SELECT SUM(size_bytes) FROM dbglance_images").Scan(&used); err != nil {
		return Usage{}, fmt.Errorf("error estimating usage: %w", err)
	}
	return Usage{Used: used.Int64}, nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
