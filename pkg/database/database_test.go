package database

import (
	"context"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openMemory(t *testing.T) *DB {
	t.Helper()
	db, err := New(Config{Path: ":memory:", MaxOpenConns: 4, MaxIdleConns: 1}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrate_CreatesLedgerTables(t *testing.T) {
	db := openMemory(t)
	m := NewMigrator(db, zap.NewNop())

	require.NoError(t, m.Migrate(context.Background()))
	require.NoError(t, m.Migrate(context.Background()), "second run is a no-op")

	for _, table := range []string{"processed_documents", "review_exceptions"} {
		var n int
		err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, table)
	}

	var versions int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&versions))
	assert.Equal(t, 1, versions)
}

func TestRunMigrations_OrderAndFailure(t *testing.T) {
	db := openMemory(t)
	m := NewMigrator(db, zap.NewNop())
	ctx := context.Background()

	fsys := fstest.MapFS{
		"002_add_note.sql": {Data: []byte("ALTER TABLE t ADD COLUMN note TEXT;")},
		"001_create.sql":   {Data: []byte("CREATE TABLE t (id INTEGER);")},
		"README.md":        {Data: []byte("ignored")},
	}
	require.NoError(t, m.RunMigrations(ctx, fsys))

	_, err := db.Exec("INSERT INTO t (id, note) VALUES (1, 'x')")
	assert.NoError(t, err)

	bad := fstest.MapFS{"003_broken.sql": {Data: []byte("NOT SQL")}}
	err = m.RunMigrations(ctx, bad)
	assert.ErrorContains(t, err, "failed to apply migration 3")

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = 3").Scan(&n))
	assert.Zero(t, n, "failed migration is rolled back")
}

func TestNew_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "ledger.db")

	db, err := New(Config{Path: path, MaxOpenConns: 1, MaxIdleConns: 1}, zap.NewNop())
	require.NoError(t, err)
	assert.NoError(t, db.Close())
	assert.FileExists(t, path)
}
