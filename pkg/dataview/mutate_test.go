package dataview

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbglance/dbglance/pkg/engine"
)

func TestMutator_ExportFailureAfterCommit(t *testing.T) {
	// the image snapshot failing after a successful commit is a stale durable
	// copy, not a lost mutation: the caller gets PersistenceError and the row
	// stays committed
	eng, err := engine.Open(nil, t.TempDir())
	require.NoError(t, err)
	defer eng.Close()
	require.NoError(t, eng.Exec(`CREATE TABLE t (id INTEGER PRIMARY KEY)`))

	tbl, err := NewSchemaCache(eng).Table("t")
	require.NoError(t, err)

	m := &mutator{
		eng:     eng,
		dbID:    "db-1",
		export:  func() ([]byte, error) { return nil, errors.New("snapshot failed") },
		persist: func([]byte) error { return nil },
	}
	err = m.insert(tbl, map[string]any{"id": 1})
	require.Error(t, err)
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "db-1", perr.DatabaseID)

	rows, err := eng.Query(`SELECT COUNT(*) FROM t`)
	require.NoError(t, err)
	defer rows.Close()
	require.True(t, rows.Next())
	vals, err := rows.Scan()
	require.NoError(t, err)
	assert.Equal(t, int64(1), vals[0], "commit survived the export failure")
}

func TestMutator_NoPersistSkipsExport(t *testing.T) {
	// ephemeral handles never snapshot the image
	eng, err := engine.Open(nil, t.TempDir())
	require.NoError(t, err)
	defer eng.Close()
	require.NoError(t, eng.Exec(`CREATE TABLE t (id INTEGER PRIMARY KEY)`))

	tbl, err := NewSchemaCache(eng).Table("t")
	require.NoError(t, err)

	m := &mutator{
		eng:    eng,
		export: func() ([]byte, error) { t.Fatal("export called without persist"); return nil, nil },
	}
	require.NoError(t, m.insert(tbl, map[string]any{"id": 1}))
}
