package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func openRaw(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open(DriverName, dsn(filepath.Join(t.TempDir(), "index.db")))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateCreatesNineTriggers(t *testing.T) {
	db := openRaw(t)
	ctx := context.Background()
	require.NoError(t, migrate(ctx, db, Migrations, zaptest.NewLogger(t)))

	var n int
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'trigger'`).Scan(&n))
	assert.Equal(t, 9, n)

	exists, err := columnExists(ctx, db, "symbols", "embedding_index")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestMigrateRerunsGuardedSteps(t *testing.T) {
	db := openRaw(t)
	ctx := context.Background()
	require.NoError(t, migrate(ctx, db, Migrations, zaptest.NewLogger(t)))

	// Forget the recorded versions; every step must tolerate existing objects.
	_, err := db.ExecContext(ctx, `DELETE FROM schema_version`)
	require.NoError(t, err)
	require.NoError(t, migrate(ctx, db, Migrations, zaptest.NewLogger(t)))

	v, err := schemaVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestMigrateFailureIsSchemaError(t *testing.T) {
	db := openRaw(t)
	ctx := context.Background()
	boom := errors.New("boom")

	broken := append(append([]Migration{}, Migrations...), Migration{
		Version: 99,
		Name:    "broken",
		Up: func(ctx context.Context, tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, `CREATE TABLE half_done (id INTEGER)`); err != nil {
				return err
			}
			return boom
		},
	})
	err := migrate(ctx, db, broken, zaptest.NewLogger(t))

	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, 99, schemaErr.Version)
	require.ErrorIs(t, err, boom)

	// The failed step rolled back and was not recorded.
	v, err := schemaVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	exists, err := columnExists(ctx, db, "half_done", "id")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestParentMustShareFile(t *testing.T) {
	db := openRaw(t)
	ctx := context.Background()
	require.NoError(t, migrate(ctx, db, Migrations, zaptest.NewLogger(t)))

	insertFile := func(path string) int64 {
		res, err := db.ExecContext(ctx,
			`INSERT INTO files(path, language, content_hash, indexed_at) VALUES(?, 'rust', 'h', 0)`, path)
		require.NoError(t, err)
		id, err := res.LastInsertId()
		require.NoError(t, err)
		return id
	}
	a, b := insertFile("a.rs"), insertFile("b.rs")

	res, err := db.ExecContext(ctx, `INSERT INTO symbols(file_id, name, kind, start_line, end_line,
		start_col, end_col, start_byte, end_byte) VALUES(?, 'Outer', 'struct', 1, 1, 0, 0, 0, 0)`, a)
	require.NoError(t, err)
	parent, err := res.LastInsertId()
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `INSERT INTO symbols(file_id, parent_id, name, kind, start_line, end_line,
		start_col, end_col, start_byte, end_byte) VALUES(?, ?, 'Inner', 'field', 1, 1, 0, 0, 0, 0)`, b, parent)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parent symbol belongs to another file")
}
