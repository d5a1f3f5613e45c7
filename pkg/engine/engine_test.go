package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_OpenEmptyAndExec(t *testing.T) {
	e, err := Open(nil, t.TempDir())
	require.NoError(t, err)
	defer e.Close()

	err = e.Exec(`CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT)`)
	require.NoError(t, err)

	affected, err := e.Run(`INSERT INTO t (id, name) VALUES (?, ?)`, 1, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)
}

func TestEngine_QueryRows(t *testing.T) {
	e, err := Open(nil, t.TempDir())
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Exec(`CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT)`))
	_, err = e.Run(`INSERT INTO t (id, name) VALUES (?, ?), (?, ?)`, 1, "a", 2, "b")
	require.NoError(t, err)

	rows, err := e.Query(`SELECT id, name FROM t ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()

	assert.Equal(t, []string{"id", "name"}, rows.Columns())

	var got [][]any
	for rows.Next() {
		vals, err := rows.Scan()
		require.NoError(t, err)
		got = append(got, vals)
	}
	require.NoError(t, rows.Err())
	require.NoError(t, rows.Close())

	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0][0])
	assert.Equal(t, "a", got[0][1])
	assert.Equal(t, int64(2), got[1][0])
	assert.Equal(t, "b", got[1][1])
}

func TestEngine_TransactionCommitAndRollback(t *testing.T) {
	e, err := Open(nil, t.TempDir())
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Exec(`CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT)`))

	tx, err := e.Begin()
	require.NoError(t, err)
	_, err = tx.Run(`INSERT INTO t (id, name) VALUES (?, ?)`, 1, "a")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx, err = e.Begin()
	require.NoError(t, err)
	_, err = tx.Run(`INSERT INTO t (id, name) VALUES (?, ?)`, 2, "b")
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	rows, err := e.Query(`SELECT COUNT(*) FROM t`)
	require.NoError(t, err)
	defer rows.Close()
	require.True(t, rows.Next())
	vals, err := rows.Scan()
	require.NoError(t, err)
	assert.Equal(t, int64(1), vals[0])
}

func TestEngine_ExportImageRoundTrip(t *testing.T) {
	e, err := Open(nil, t.TempDir())
	require.NoError(t, err)

	require.NoError(t, e.Exec(`CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT)`))
	_, err = e.Run(`INSERT INTO t (id, name) VALUES (?, ?)`, 1, "a")
	require.NoError(t, err)

	image, err := e.ExportImage()
	require.NoError(t, err)
	require.NotEmpty(t, image)
	require.NoError(t, e.Close())

	// reopen from the exported image, data should survive
	e2, err := Open(image, t.TempDir())
	require.NoError(t, err)
	defer e2.Close()

	rows, err := e2.Query(`SELECT name FROM t WHERE id = ?`, 1)
	require.NoError(t, err)
	defer rows.Close()
	require.True(t, rows.Next())
	vals, err := rows.Scan()
	require.NoError(t, err)
	assert.Equal(t, "a", vals[0])
}

func TestEngine_CloseRemovesWorkingFile(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(nil, dir)
	require.NoError(t, err)
	path := e.path
	require.NoError(t, e.Close())
	assert.NoFileExists(t, path)
	require.NoError(t, e.Close()) // second close is a no-op
}
