package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Migration is one ordered schema step. Up runs inside its own transaction
// and must be safe to re-run against a schema it already produced.
type Migration struct {
	Version int
	Name    string
	Up      func(ctx context.Context, tx *sql.Tx) error
}

// SchemaError reports a migration that could not be applied. The store is
// unusable after one.
type SchemaError struct {
	Version int
	Name    string
	Err     error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema migration %d (%s): %v", e.Version, e.Name, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// Migrations lists every schema step in application order.
var Migrations = []Migration{
	{Version: 1, Name: "initial schema", Up: execAll(schemaV1...)},
	{Version: 2, Name: "symbol embedding index", Up: addEmbeddingIndex},
}

var schemaV1 = []string{
	`CREATE TABLE IF NOT EXISTS files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL UNIQUE,
		language TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		description TEXT NOT NULL DEFAULT '',
		indexed_at INTEGER NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS symbols (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_id INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
		parent_id INTEGER REFERENCES symbols(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		start_line INTEGER NOT NULL,
		end_line INTEGER NOT NULL,
		start_col INTEGER NOT NULL,
		end_col INTEGER NOT NULL,
		start_byte INTEGER NOT NULL,
		end_byte INTEGER NOT NULL,
		signature TEXT NOT NULL DEFAULT '',
		doc_comment TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		visibility TEXT NOT NULL DEFAULT 'unknown',
		is_entry_point INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_symbols_file ON symbols(file_id)`,
	`CREATE INDEX IF NOT EXISTS idx_symbols_parent ON symbols(parent_id)`,
	`CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name)`,
	`CREATE INDEX IF NOT EXISTS idx_symbols_kind ON symbols(kind)`,

	`CREATE TABLE IF NOT EXISTS symbol_refs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		from_symbol_id INTEGER NOT NULL REFERENCES symbols(id) ON DELETE CASCADE,
		to_symbol_id INTEGER NOT NULL REFERENCES symbols(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		start_line INTEGER NOT NULL,
		end_line INTEGER NOT NULL,
		start_col INTEGER NOT NULL,
		end_col INTEGER NOT NULL,
		start_byte INTEGER NOT NULL,
		end_byte INTEGER NOT NULL,
		UNIQUE(from_symbol_id, to_symbol_id, kind, start_line, start_col)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_symbol_refs_to ON symbol_refs(to_symbol_id)`,

	`CREATE TABLE IF NOT EXISTS status (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS reachability_cache (
		symbol_id INTEGER PRIMARY KEY REFERENCES symbols(id) ON DELETE CASCADE,
		is_reachable INTEGER NOT NULL,
		last_analyzed INTEGER NOT NULL
	)`,

	// External-content FTS tables, kept in sync by the triggers below.
	`CREATE VIRTUAL TABLE IF NOT EXISTS symbols_fts USING fts5(
		name, description, doc_comment,
		content='symbols',
		content_rowid='id'
	)`,
	`CREATE VIRTUAL TABLE IF NOT EXISTS files_fts USING fts5(
		path, description,
		content='files',
		content_rowid='id'
	)`,

	`CREATE TRIGGER IF NOT EXISTS symbols_ai AFTER INSERT ON symbols BEGIN
		INSERT INTO symbols_fts(rowid, name, description, doc_comment)
		VALUES (new.id, new.name, new.description, new.doc_comment);
	END`,
	`CREATE TRIGGER IF NOT EXISTS symbols_ad AFTER DELETE ON symbols BEGIN
		INSERT INTO symbols_fts(symbols_fts, rowid, name, description, doc_comment)
		VALUES ('delete', old.id, old.name, old.description, old.doc_comment);
	END`,
	`CREATE TRIGGER IF NOT EXISTS symbols_au AFTER UPDATE OF name, description, doc_comment ON symbols BEGIN
		INSERT INTO symbols_fts(symbols_fts, rowid, name, description, doc_comment)
		VALUES ('delete', old.id, old.name, old.description, old.doc_comment);
		INSERT INTO symbols_fts(rowid, name, description, doc_comment)
		VALUES (new.id, new.name, new.description, new.doc_comment);
	END`,

	`CREATE TRIGGER IF NOT EXISTS files_ai AFTER INSERT ON files BEGIN
		INSERT INTO files_fts(rowid, path, description)
		VALUES (new.id, new.path, new.description);
	END`,
	`CREATE TRIGGER IF NOT EXISTS files_ad AFTER DELETE ON files BEGIN
		INSERT INTO files_fts(files_fts, rowid, path, description)
		VALUES ('delete', old.id, old.path, old.description);
	END`,
	`CREATE TRIGGER IF NOT EXISTS files_au AFTER UPDATE OF path, description ON files BEGIN
		INSERT INTO files_fts(files_fts, rowid, path, description)
		VALUES ('delete', old.id, old.path, old.description);
		INSERT INTO files_fts(rowid, path, description)
		VALUES (new.id, new.path, new.description);
	END`,

	// A symbol's parent must live in the same file.
	`CREATE TRIGGER IF NOT EXISTS symbols_parent_same_file_bi BEFORE INSERT ON symbols
	WHEN new.parent_id IS NOT NULL
		AND (SELECT file_id FROM symbols WHERE id = new.parent_id) IS NOT new.file_id
	BEGIN
		SELECT RAISE(ABORT, 'parent symbol belongs to another file');
	END`,
	`CREATE TRIGGER IF NOT EXISTS symbols_parent_same_file_bu BEFORE UPDATE OF parent_id, file_id ON symbols
	WHEN new.parent_id IS NOT NULL
		AND (SELECT file_id FROM symbols WHERE id = new.parent_id) IS NOT new.file_id
	BEGIN
		SELECT RAISE(ABORT, 'parent symbol belongs to another file');
	END`,

	// A new inbound edge can make a symbol reachable.
	`CREATE TRIGGER IF NOT EXISTS symbol_refs_ai_invalidate AFTER INSERT ON symbol_refs BEGIN
		DELETE FROM reachability_cache WHERE symbol_id = new.to_symbol_id;
	END`,
}

func execAll(stmts ...string) func(ctx context.Context, tx *sql.Tx) error {
	return func(ctx context.Context, tx *sql.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	}
}

func addEmbeddingIndex(ctx context.Context, tx *sql.Tx) error {
	exists, err := columnExists(ctx, tx, "symbols", "embedding_index")
	if err != nil {
		return err
	}
	if !exists {
		if _, err := tx.ExecContext(ctx, `ALTER TABLE symbols ADD COLUMN embedding_index INTEGER`); err != nil {
			return err
		}
	}
	_, err = tx.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_symbols_embedding ON symbols(embedding_index)`)
	return err
}

func columnExists(ctx context.Context, q querier, table, column string) (bool, error) {
	rows, err := q.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return false, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// migrate brings db up to the latest version. Each pending migration runs
// in its own transaction together with its schema_version row.
func migrate(ctx context.Context, db *sql.DB, migrations []Migration, logger *zap.Logger) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return &SchemaError{Version: 0, Name: "schema_version", Err: err}
	}

	current, err := schemaVersion(ctx, db)
	if err != nil {
		return &SchemaError{Version: 0, Name: "schema_version", Err: err}
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return &SchemaError{Version: m.Version, Name: m.Name, Err: err}
		}
		logger.Info("applied schema migration", zap.Int("version", m.Version), zap.String("name", m.Name))
		current = m.Version
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := m.Up(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO schema_version(version, name, applied_at) VALUES (?, ?, ?)`,
		m.Version, m.Name, time.Now().UnixNano(),
	); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func schemaVersion(ctx context.Context, q querier) (int, error) {
	var v sql.NullInt64
	if err := q.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&v); err != nil {
		return 0, err
	}
	return int(v.Int64), nil
}
