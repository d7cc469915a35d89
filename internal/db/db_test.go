package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T, path string) *DB {
	t.Helper()
	d, err := New(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestNew_SchemaAndPragmas(t *testing.T) {
	d := openTestDB(t, filepath.Join(t.TempDir(), "nested", "runs.db"))

	for _, table := range []string{"runs", "run_clips", "config", "_migrations"} {
		var name string
		err := d.Conn().QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		assert.NoError(t, err, "table %s", table)
	}

	var journal string
	require.NoError(t, d.Conn().QueryRow(`PRAGMA journal_mode`).Scan(&journal))
	assert.Equal(t, "wal", journal)

	var fk int
	require.NoError(t, d.Conn().QueryRow(`PRAGMA foreign_keys`).Scan(&fk))
	assert.Equal(t, 1, fk)
}

func TestMigrate_RecordsEachFileOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")

	first, err := New(path, nil)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	d := openTestDB(t, path)
	rows, err := d.Conn().Query(`SELECT name, applied_at FROM _migrations ORDER BY name`)
	require.NoError(t, err)
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name, at string
		require.NoError(t, rows.Scan(&name, &at))
		assert.Len(t, at, len("2006-01-02T15:04:05.000000000Z"), "applied_at for %s", name)
		names = append(names, name)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"001_init.sql", "002_run_indexes.sql"}, names)
}

func TestNew_FailsInterruptedRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")

	first, err := New(path, nil)
	require.NoError(t, err)
	_, err = first.Conn().Exec(`
		INSERT INTO runs (id, status, sheet_title, document_id, edl_path, video_path, created_at, updated_at)
		VALUES ('busy', 'running', 'Reel 1', 'doc', '/cut.edl', '/cut.mov', 'x', 'x'),
		       ('queued', 'pending', 'Reel 2', 'doc', '/cut.edl', '/cut.mov', 'x', 'x')`)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	d := openTestDB(t, path)

	var status, msg string
	require.NoError(t, d.Conn().QueryRow(`SELECT status, error FROM runs WHERE id = 'busy'`).Scan(&status, &msg))
	assert.Equal(t, "failed", status)
	assert.Equal(t, interruptedError, msg)

	require.NoError(t, d.Conn().QueryRow(`SELECT status FROM runs WHERE id = 'queued'`).Scan(&status))
	assert.Equal(t, "pending", status, "queued runs are left for the runner")
}

func TestRunClips_DeletedWithRun(t *testing.T) {
	d := openTestDB(t, filepath.Join(t.TempDir(), "runs.db"))
	conn := d.Conn()

	_, err := conn.Exec(`INSERT INTO runs (id, status, sheet_title, document_id, edl_path, video_path, created_at, updated_at)
		VALUES ('r1', 'completed', 't', 'd', 'e', 'v', 'x', 'x')`)
	require.NoError(t, err)
	_, err = conn.Exec(`INSERT INTO run_clips (run_id, idx, name, in_point, outcome, created_at)
		VALUES ('r1', 0, 'Intro', 1.0, 'published', 'x')`)
	require.NoError(t, err)
	_, err = conn.Exec(`DELETE FROM runs WHERE id = 'r1'`)
	require.NoError(t, err)

	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM run_clips`).Scan(&n))
	assert.Zero(t, n)
}
