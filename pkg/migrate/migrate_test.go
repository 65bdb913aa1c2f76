package migrate

import (
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"m/001_create_kv.up.sql":   {Data: []byte("CREATE TABLE kv (key TEXT PRIMARY KEY, value BLOB)")},
		"m/001_create_kv.down.sql": {Data: []byte("DROP TABLE kv")},
		"m/002_add_notes.up.sql":   {Data: []byte("CREATE TABLE notes (id INTEGER PRIMARY KEY)")},
		"m/002_add_notes.down.sql": {Data: []byte("DROP TABLE notes")},
		"m/README.md":              {Data: []byte("ignored")},
	}
}

func openDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&n))
	return n == 1
}

func TestFSSourcePairsFiles(t *testing.T) {
	migrations, err := NewFSSource(testFS(), "m").Migrations()
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	for _, mg := range migrations {
		assert.NotEmpty(t, mg.Up)
		assert.NotEmpty(t, mg.Down)
	}
}

func TestFSSourceRejectsDuplicateVersion(t *testing.T) {
	fsys := testFS()
	fsys["m/001_other.up.sql"] = &fstest.MapFile{Data: []byte("SELECT 1")}
	_, err := NewFSSource(fsys, "m").Migrations()
	assert.ErrorIs(t, err, ErrDuplicateVersion)
}

func TestMigrateUpIsIdempotent(t *testing.T) {
	db := openDB(t)
	m := NewMigrator(db, NewFSSource(testFS(), "m"), "", nil)

	require.NoError(t, m.MigrateUp())
	require.NoError(t, m.MigrateUp())

	v, err := m.CurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.True(t, tableExists(t, db, "kv"))
	assert.True(t, tableExists(t, db, "notes"))

	pending, err := m.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestMigrateToStepsBothWays(t *testing.T) {
	db := openDB(t)
	m := NewMigrator(db, NewFSSource(testFS(), "m"), "versions", nil)

	require.NoError(t, m.MigrateTo(1))
	pending, err := m.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].Version)

	require.NoError(t, m.MigrateUp())
	require.NoError(t, m.MigrateTo(1))
	assert.False(t, tableExists(t, db, "notes"))
	assert.True(t, tableExists(t, db, "kv"))

	v, err := m.CurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestFailedMigrationRollsBack(t *testing.T) {
	db := openDB(t)
	fsys := fstest.MapFS{
		"001_bad.up.sql": {Data: []byte("CREATE TABLE ok (id INTEGER); THIS IS NOT SQL")},
	}
	m := NewMigrator(db, NewFSSource(fsys, ""), "", nil)

	assert.Error(t, m.MigrateUp())
	v, err := m.CurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, 0, v)
}
