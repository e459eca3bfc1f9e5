package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/0x5457/code-index/internal/models"
	"github.com/0x5457/code-index/internal/storage"
	"go.uber.org/zap"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type SymbolStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// New opens the database at path and applies pending migrations. A
// migration failure is returned as *SchemaError.
func New(path string, logger *zap.Logger) (*SymbolStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("sqlite")

	db, err := sql.Open(DriverName, dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps the per-connection pragmas and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := migrate(context.Background(), db, Migrations, logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Debug("opened symbol store", zap.String("path", path), zap.String("build", BuildMode))
	return &SymbolStore{db: db, logger: logger}, nil
}

func (s *SymbolStore) Close() error { return s.db.Close() }

func (s *SymbolStore) SchemaVersion(ctx context.Context) (int, error) {
	return schemaVersion(ctx, s.db)
}

// ReplaceFile swaps the stored version of file.Path for the given symbols
// and references in one transaction. Deleting the previous file row cascades
// to its symbols, their references and reachability rows.
func (s *SymbolStore) ReplaceFile(
	ctx context.Context,
	file storage.FileRecord,
	symbols []storage.SymbolInput,
	refs []storage.RefInput,
) (*storage.ReplaceResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	removed, err := symbolIDsForPath(ctx, tx, file.Path)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, file.Path); err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO files(path, language, content_hash, size, description, indexed_at)
		VALUES(?,?,?,?,?,?)`,
		file.Path, file.Language, file.ContentHash, file.Size, file.Description, time.Now().UnixNano(),
	)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	fileID, err := res.LastInsertId()
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	ids, err := insertSymbols(ctx, tx, fileID, symbols)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := insertRefs(ctx, tx, ids, refs); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &storage.ReplaceResult{FileID: fileID, SymbolIDs: ids, RemovedSymbolIDs: removed}, nil
}

func insertSymbols(ctx context.Context, tx *sql.Tx, fileID int64, symbols []storage.SymbolInput) ([]int64, error) {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO symbols(
		file_id, parent_id, name, kind,
		start_line, end_line, start_col, end_col, start_byte, end_byte,
		signature, doc_comment, visibility, is_entry_point)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = stmt.Close() }()

	ids := make([]int64, len(symbols))
	for i, in := range symbols {
		var parent any
		if in.Parent >= 0 {
			if in.Parent >= i {
				return nil, fmt.Errorf("symbol %d (%s): parent %d is not earlier in pre-order", i, in.Symbol.Name, in.Parent)
			}
			parent = ids[in.Parent]
		}
		sym := in.Symbol
		loc := sym.Location
		res, err := stmt.ExecContext(ctx,
			fileID, parent, sym.Name, string(sym.Kind),
			loc.StartLine, loc.EndLine, loc.StartColumn, loc.EndColumn, loc.StartByte, loc.EndByte,
			sym.Signature, sym.DocComment, string(sym.Visibility), sym.IsEntryPoint,
		)
		if err != nil {
			return nil, fmt.Errorf("insert symbol %s: %w", sym.Name, err)
		}
		if ids[i], err = res.LastInsertId(); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func insertRefs(ctx context.Context, tx *sql.Tx, ids []int64, refs []storage.RefInput) error {
	if len(refs) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO symbol_refs(
		from_symbol_id, to_symbol_id, kind,
		start_line, end_line, start_col, end_col, start_byte, end_byte)
		VALUES(?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range refs {
		if r.From < 0 || r.From >= len(ids) {
			return fmt.Errorf("reference source %d out of range", r.From)
		}
		to := r.To
		if r.ToLocal != nil {
			if *r.ToLocal < 0 || *r.ToLocal >= len(ids) {
				return fmt.Errorf("reference target %d out of range", *r.ToLocal)
			}
			to = ids[*r.ToLocal]
		}
		loc := r.Location
		if _, err := stmt.ExecContext(ctx,
			ids[r.From], to, string(r.Kind),
			loc.StartLine, loc.EndLine, loc.StartColumn, loc.EndColumn, loc.StartByte, loc.EndByte,
		); err != nil {
			return fmt.Errorf("insert reference: %w", err)
		}
	}
	return nil
}

func symbolIDsForPath(ctx context.Context, q querier, path string) ([]int64, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT s.id FROM symbols s JOIN files f ON f.id = s.file_id WHERE f.path = ? ORDER BY s.id`,
		path,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteFile removes a file and everything hanging off it, returning the
// ids of the symbols that were removed.
func (s *SymbolStore) DeleteFile(ctx context.Context, path string) ([]int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	ids, err := symbolIDsForPath(ctx, tx, path)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, path); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	return ids, tx.Commit()
}

const fileColumns = `id, path, language, content_hash, size, description, indexed_at`

func scanFile(row interface{ Scan(...any) error }) (models.File, error) {
	var f models.File
	var indexedAt int64
	if err := row.Scan(&f.ID, &f.Path, &f.Language, &f.ContentHash, &f.Size, &f.Description, &indexedAt); err != nil {
		return f, err
	}
	f.IndexedAt = time.Unix(0, indexedAt).UTC()
	return f, nil
}

// GetFile returns nil when path is not stored.
func (s *SymbolStore) GetFile(ctx context.Context, path string) (*models.File, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE path = ?`, path)
	f, err := scanFile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &f, nil
}

func (s *SymbolStore) ListFiles(ctx context.Context) ([]models.File, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+fileColumns+` FROM files ORDER BY path`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []models.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// FilePaths maps each of fileIDs that is stored to its path.
func (s *SymbolStore) FilePaths(ctx context.Context, fileIDs []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(fileIDs))
	if len(fileIDs) == 0 {
		return out, nil
	}
	args := make([]any, len(fileIDs))
	for i, id := range fileIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, path FROM files WHERE id IN (`+placeholders(len(fileIDs))+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var (
			id   int64
			path string
		)
		if err := rows.Scan(&id, &path); err != nil {
			return nil, err
		}
		out[id] = path
	}
	return out, rows.Err()
}

const symbolColumns = `s.id, s.file_id, s.parent_id, s.name, s.kind,
	s.start_line, s.end_line, s.start_col, s.end_col, s.start_byte, s.end_byte,
	s.signature, s.doc_comment, s.description, s.visibility, s.is_entry_point, s.embedding_index`

func scanSymbol(row interface{ Scan(...any) error }, extra ...any) (models.Symbol, error) {
	var (
		sym        models.Symbol
		parent     sql.NullInt64
		embedding  sql.NullInt64
		kind       string
		visibility string
	)
	dest := []any{
		&sym.ID, &sym.FileID, &parent, &sym.Name, &kind,
		&sym.Location.StartLine, &sym.Location.EndLine,
		&sym.Location.StartColumn, &sym.Location.EndColumn,
		&sym.Location.StartByte, &sym.Location.EndByte,
		&sym.Signature, &sym.DocComment, &sym.Description, &visibility, &sym.IsEntryPoint, &embedding,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return sym, err
	}
	sym.Kind = models.StringToSymbolKind(kind)
	sym.Visibility = models.StringToVisibility(visibility)
	if parent.Valid {
		sym.ParentID = &parent.Int64
	}
	if embedding.Valid {
		sym.EmbeddingIndex = &embedding.Int64
	}
	return sym, nil
}

func (s *SymbolStore) querySymbols(ctx context.Context, query string, args ...any) ([]models.Symbol, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []models.Symbol
	for rows.Next() {
		sym, err := scanSymbol(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

// GetSymbol returns nil when id is not stored.
func (s *SymbolStore) GetSymbol(ctx context.Context, id int64) (*models.Symbol, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+symbolColumns+` FROM symbols s WHERE s.id = ?`, id)
	sym, err := scanSymbol(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &sym, nil
}

// SymbolsByFile returns a file's symbols in insertion (pre-order) order.
func (s *SymbolStore) SymbolsByFile(ctx context.Context, fileID int64) ([]models.Symbol, error) {
	return s.querySymbols(ctx,
		`SELECT `+symbolColumns+` FROM symbols s WHERE s.file_id = ? ORDER BY s.id`, fileID)
}

// SymbolTree rebuilds a file's symbol forest from parent ids.
func (s *SymbolStore) SymbolTree(ctx context.Context, fileID int64) ([]*models.SymbolNode, error) {
	syms, err := s.SymbolsByFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	nodes := make(map[int64]*models.SymbolNode, len(syms))
	var roots []*models.SymbolNode
	for _, sym := range syms {
		n := &models.SymbolNode{Symbol: sym}
		nodes[sym.ID] = n
		if sym.ParentID == nil {
			roots = append(roots, n)
			continue
		}
		if parent, ok := nodes[*sym.ParentID]; ok {
			parent.Children = append(parent.Children, n)
		} else {
			roots = append(roots, n)
		}
	}
	return roots, nil
}

func (s *SymbolStore) FindSymbolsByName(ctx context.Context, name string) ([]models.Symbol, error) {
	return s.querySymbols(ctx,
		`SELECT `+symbolColumns+` FROM symbols s WHERE s.name = ? ORDER BY s.id`, name)
}

// SymbolsByIDs returns the stored symbols among ids, in the order of ids.
func (s *SymbolStore) SymbolsByIDs(ctx context.Context, ids []int64) ([]models.Symbol, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	syms, err := s.querySymbols(ctx,
		`SELECT `+symbolColumns+` FROM symbols s WHERE s.id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]models.Symbol, len(syms))
	for _, sym := range syms {
		byID[sym.ID] = sym
	}
	out := make([]models.Symbol, 0, len(syms))
	for _, id := range ids {
		if sym, ok := byID[id]; ok {
			out = append(out, sym)
		}
	}
	return out, nil
}

// SetEmbeddingIndexes records, per symbol id, the embedding record holding
// its vector.
func (s *SymbolStore) SetEmbeddingIndexes(ctx context.Context, indexes map[int64]int64) error {
	if len(indexes) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `UPDATE symbols SET embedding_index = ? WHERE id = ?`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer func() { _ = stmt.Close() }()
	for id, idx := range indexes {
		if _, err := stmt.ExecContext(ctx, idx, id); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

const refColumns = `id, from_symbol_id, to_symbol_id, kind,
	start_line, end_line, start_col, end_col, start_byte, end_byte`

func (s *SymbolStore) queryRefs(ctx context.Context, query string, args ...any) ([]models.SymbolRef, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []models.SymbolRef
	for rows.Next() {
		var r models.SymbolRef
		var kind string
		if err := rows.Scan(&r.ID, &r.FromSymbolID, &r.ToSymbolID, &kind,
			&r.Location.StartLine, &r.Location.EndLine,
			&r.Location.StartColumn, &r.Location.EndColumn,
			&r.Location.StartByte, &r.Location.EndByte,
		); err != nil {
			return nil, err
		}
		r.Kind = models.StringToRefKind(kind)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SymbolStore) RefsFrom(ctx context.Context, symbolID int64) ([]models.SymbolRef, error) {
	return s.queryRefs(ctx,
		`SELECT `+refColumns+` FROM symbol_refs WHERE from_symbol_id = ? ORDER BY id`, symbolID)
}

func (s *SymbolStore) RefsTo(ctx context.Context, symbolID int64) ([]models.SymbolRef, error) {
	return s.queryRefs(ctx,
		`SELECT `+refColumns+` FROM symbol_refs WHERE to_symbol_id = ? ORDER BY id`, symbolID)
}

// SearchSymbols runs a full-text query over symbol names, descriptions and
// doc comments, best match first.
func (s *SymbolStore) SearchSymbols(ctx context.Context, query string, limit int) ([]models.SymbolHit, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+symbolColumns+`, f.path, bm25(symbols_fts) AS rank
		FROM symbols_fts
		JOIN symbols s ON s.id = symbols_fts.rowid
		JOIN files f ON f.id = s.file_id
		WHERE symbols_fts MATCH ?
		ORDER BY rank
		LIMIT ?`,
		match, normLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []models.SymbolHit
	for rows.Next() {
		var hit models.SymbolHit
		sym, err := scanSymbol(rows, &hit.File, &hit.Rank)
		if err != nil {
			return nil, err
		}
		hit.Symbol = sym
		out = append(out, hit)
	}
	return out, rows.Err()
}

// SearchFiles runs a full-text query over file paths and descriptions.
func (s *SymbolStore) SearchFiles(ctx context.Context, query string, limit int) ([]models.FileHit, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT f.id, f.path, f.language, f.content_hash, f.size, f.description, f.indexed_at,
			bm25(files_fts) AS rank
		FROM files_fts
		JOIN files f ON f.id = files_fts.rowid
		WHERE files_fts MATCH ?
		ORDER BY rank
		LIMIT ?`,
		match, normLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []models.FileHit
	for rows.Next() {
		var hit models.FileHit
		var indexedAt int64
		if err := rows.Scan(&hit.File.ID, &hit.File.Path, &hit.File.Language, &hit.File.ContentHash,
			&hit.File.Size, &hit.File.Description, &indexedAt, &hit.Rank); err != nil {
			return nil, err
		}
		hit.File.IndexedAt = time.Unix(0, indexedAt).UTC()
		out = append(out, hit)
	}
	return out, rows.Err()
}

func (s *SymbolStore) SetStatus(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO status(key, value, updated_at) VALUES(?,?,?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixNano(),
	)
	return err
}

// GetStatus returns storage.ErrNotFound for an unknown key.
func (s *SymbolStore) GetStatus(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM status WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("status %q: %w", key, storage.ErrNotFound)
	}
	return value, err
}

func (s *SymbolStore) SetReachability(ctx context.Context, entries []models.ReachabilityEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO reachability_cache(symbol_id, is_reachable, last_analyzed) VALUES(?,?,?)
		ON CONFLICT(symbol_id) DO UPDATE SET
		is_reachable = excluded.is_reachable,
		last_analyzed = excluded.last_analyzed`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer func() { _ = stmt.Close() }()
	for _, e := range entries {
		analyzed := e.LastAnalyzed
		if analyzed.IsZero() {
			analyzed = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, e.SymbolID, e.IsReachable, analyzed.UnixNano()); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// GetReachability returns nil when no cached result exists.
func (s *SymbolStore) GetReachability(ctx context.Context, symbolID int64) (*models.ReachabilityEntry, error) {
	var (
		e        models.ReachabilityEntry
		analyzed int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT symbol_id, is_reachable, last_analyzed FROM reachability_cache WHERE symbol_id = ?`,
		symbolID,
	).Scan(&e.SymbolID, &e.IsReachable, &analyzed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	e.LastAnalyzed = time.Unix(0, analyzed).UTC()
	return &e, nil
}

func (s *SymbolStore) Stats(ctx context.Context) (storage.Stats, error) {
	var st storage.Stats
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM files),
		(SELECT COUNT(*) FROM symbols),
		(SELECT COUNT(*) FROM symbol_refs)`,
	).Scan(&st.Files, &st.Symbols, &st.Refs)
	return st, err
}

// ftsQuery turns free text into an FTS5 query where every whitespace
// separated term is a quoted phrase, so punctuation like "a.rs" or "foo-bar"
// is matched literally instead of parsed as query syntax.
func ftsQuery(text string) string {
	terms := strings.Fields(text)
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		quoted = append(quoted, `"`+strings.ReplaceAll(t, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func normLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	return limit
}

var _ storage.SymbolStore = (*SymbolStore)(nil)
