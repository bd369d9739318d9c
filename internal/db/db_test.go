package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSqliteDB_Memory(t *testing.T) {
	database, err := NewSqliteDB()
	require.NoError(t, err)
	defer database.Close()

	_, err = database.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT);")
	require.NoError(t, err)
	_, err = database.Exec("INSERT INTO t (v) VALUES ('a');")
	require.NoError(t, err)

	var n int
	require.NoError(t, database.Get(&n, "SELECT COUNT(*) FROM t"))
	assert.Equal(t, 1, n)
}

func TestNewSqliteDB_FileCreatesParent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "state.db")

	database, err := NewSqliteDB(WithPath(dbPath))
	require.NoError(t, err)
	defer database.Close()

	assert.DirExists(t, filepath.Dir(dbPath))
	assert.FileExists(t, dbPath)
}

func TestNewSqliteDB_PragmasOnEveryConnection(t *testing.T) {
	ctx := context.Background()
	database, err := NewSqliteDB(WithPath(filepath.Join(t.TempDir(), "pool.db")), WithPragmas("PRAGMA temp_store=MEMORY;"))
	require.NoError(t, err)
	defer database.Close()

	// hold two connections at once so the second one is freshly opened
	first, err := database.Connx(ctx)
	require.NoError(t, err)
	defer first.Close()
	second, err := database.Connx(ctx)
	require.NoError(t, err)
	defer second.Close()

	for _, conn := range []*sqlx.Conn{first, second} {
		var timeout, foreignKeys int
		require.NoError(t, conn.GetContext(ctx, &timeout, "PRAGMA busy_timeout"))
		require.NoError(t, conn.GetContext(ctx, &foreignKeys, "PRAGMA foreign_keys"))
		assert.Equal(t, busyTimeoutMillis, timeout)
		assert.Equal(t, 1, foreignKeys)
	}
}

func TestNewSqliteDB_CustomPragmas(t *testing.T) {
	database, err := NewSqliteDB(WithPragmas("PRAGMA foreign_keys=ON;"))
	require.NoError(t, err)
	defer database.Close()

	_, err = database.Exec("CREATE TABLE t2 (id INTEGER PRIMARY KEY);")
	assert.NoError(t, err)
}

func TestApplySchema(t *testing.T) {
	database, err := NewSqliteDB()
	require.NoError(t, err)
	defer database.Close()

	err = ApplySchema(context.Background(), database,
		"CREATE TABLE IF NOT EXISTS a (id INTEGER PRIMARY KEY)",
		"CREATE TABLE IF NOT EXISTS b (id INTEGER PRIMARY KEY)",
	)
	require.NoError(t, err)

	// idempotent
	require.NoError(t, ApplySchema(context.Background(), database,
		"CREATE TABLE IF NOT EXISTS a (id INTEGER PRIMARY KEY)",
	))

	err = ApplySchema(context.Background(), database, "CREATE TABLE broken (")
	assert.Error(t, err)
}
