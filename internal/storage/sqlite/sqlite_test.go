package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/0x5457/code-index/internal/models"
	"github.com/0x5457/code-index/internal/storage"
	"github.com/0x5457/code-index/internal/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newStore(t *testing.T) *sqlite.SymbolStore {
	t.Helper()
	s, err := sqlite.New(filepath.Join(t.TempDir(), "index.db"), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func fileRecord(path string) storage.FileRecord {
	return storage.FileRecord{Path: path, Language: "rust", ContentHash: "h-" + path, Size: 10}
}

func sym(name string, kind models.SymbolKind, line int) models.ParsedSymbol {
	return models.ParsedSymbol{
		Name:       name,
		Kind:       kind,
		Visibility: models.VisibilityPublic,
		Location: models.Location{
			StartLine: line, EndLine: line + 2, StartColumn: 0, EndColumn: 1,
			StartByte: line * 10, EndByte: line*10 + 20,
		},
		Signature: "fn " + name + "()",
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	ctx := context.Background()

	s, err := sqlite.New(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	v, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, sqlite.Migrations[len(sqlite.Migrations)-1].Version, v)
	require.NoError(t, s.Close())

	s, err = sqlite.New(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	v2, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, v, v2)
}

func TestReplaceFileBuildsTree(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	res, err := s.ReplaceFile(ctx, fileRecord("src/lib.rs"), []storage.SymbolInput{
		{Symbol: sym("Shape", models.SymbolTrait, 1), Parent: -1},
		{Symbol: sym("area", models.SymbolMethod, 2), Parent: 0},
		{Symbol: sym("free", models.SymbolFunction, 10), Parent: -1},
	}, nil)
	require.NoError(t, err)
	require.Len(t, res.SymbolIDs, 3)
	assert.Empty(t, res.RemovedSymbolIDs)

	tree, err := s.SymbolTree(ctx, res.FileID)
	require.NoError(t, err)
	require.Len(t, tree, 2)
	assert.Equal(t, "Shape", tree[0].Symbol.Name)
	require.Len(t, tree[0].Children, 1)
	assert.Equal(t, "area", tree[0].Children[0].Symbol.Name)
	require.NotNil(t, tree[0].Children[0].Symbol.ParentID)
	assert.Equal(t, res.SymbolIDs[0], *tree[0].Children[0].Symbol.ParentID)
	assert.Equal(t, "free", tree[1].Symbol.Name)

	got, err := s.GetSymbol(ctx, res.SymbolIDs[1])
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.SymbolMethod, got.Kind)
	assert.Equal(t, models.VisibilityPublic, got.Visibility)
	assert.Equal(t, 2, got.Location.StartLine)
}

func TestCascadeDeleteSyncsFTS(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	a, err := s.ReplaceFile(ctx, fileRecord("a.rs"), []storage.SymbolInput{
		{Symbol: sym("foo", models.SymbolFunction, 1), Parent: -1},
	}, nil)
	require.NoError(t, err)

	b, err := s.ReplaceFile(ctx, fileRecord("b.rs"), []storage.SymbolInput{
		{Symbol: sym("bar", models.SymbolFunction, 1), Parent: -1},
	}, []storage.RefInput{
		{From: 0, To: a.SymbolIDs[0], Kind: models.RefCall, Location: models.Location{StartLine: 2, EndLine: 2}},
	})
	require.NoError(t, err)

	refs, err := s.RefsTo(ctx, a.SymbolIDs[0])
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, b.SymbolIDs[0], refs[0].FromSymbolID)
	assert.Equal(t, models.RefCall, refs[0].Kind)

	hits, err := s.SearchSymbols(ctx, "foo", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a.rs", hits[0].File)

	files, err := s.SearchFiles(ctx, "a.rs", 10)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "a.rs", files[0].File.Path)

	removed, err := s.DeleteFile(ctx, "a.rs")
	require.NoError(t, err)
	assert.Equal(t, a.SymbolIDs, removed)

	got, err := s.GetSymbol(ctx, a.SymbolIDs[0])
	require.NoError(t, err)
	assert.Nil(t, got)

	refs, err = s.RefsFrom(ctx, b.SymbolIDs[0])
	require.NoError(t, err)
	assert.Empty(t, refs)

	hits, err = s.SearchSymbols(ctx, "foo", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	files, err = s.SearchFiles(ctx, "a.rs", 10)
	require.NoError(t, err)
	assert.Empty(t, files)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.Stats{Files: 1, Symbols: 1, Refs: 0}, st)
}

func TestReplaceFileReturnsRemovedIDs(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	first, err := s.ReplaceFile(ctx, fileRecord("a.rs"), []storage.SymbolInput{
		{Symbol: sym("foo", models.SymbolFunction, 1), Parent: -1},
		{Symbol: sym("baz", models.SymbolFunction, 5), Parent: -1},
	}, nil)
	require.NoError(t, err)

	second, err := s.ReplaceFile(ctx, fileRecord("a.rs"), []storage.SymbolInput{
		{Symbol: sym("qux", models.SymbolFunction, 1), Parent: -1},
	}, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, first.SymbolIDs, second.RemovedSymbolIDs)

	hits, err := s.SearchSymbols(ctx, "foo", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	byName, err := s.FindSymbolsByName(ctx, "qux")
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, second.FileID, byName[0].FileID)
}

func TestDuplicateRefsAreIgnored(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	target := 1
	loc := models.Location{StartLine: 3, EndLine: 3, StartColumn: 4, EndColumn: 7}
	res, err := s.ReplaceFile(ctx, fileRecord("a.rs"), []storage.SymbolInput{
		{Symbol: sym("main", models.SymbolFunction, 1), Parent: -1},
		{Symbol: sym("helper", models.SymbolFunction, 10), Parent: -1},
	}, []storage.RefInput{
		{From: 0, ToLocal: &target, Kind: models.RefCall, Location: loc},
		{From: 0, ToLocal: &target, Kind: models.RefCall, Location: loc},
	})
	require.NoError(t, err)

	refs, err := s.RefsFrom(ctx, res.SymbolIDs[0])
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, res.SymbolIDs[1], refs[0].ToSymbolID)
}

func TestNewInboundRefInvalidatesReachability(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	a, err := s.ReplaceFile(ctx, fileRecord("a.rs"), []storage.SymbolInput{
		{Symbol: sym("unused", models.SymbolFunction, 1), Parent: -1},
	}, nil)
	require.NoError(t, err)
	target := a.SymbolIDs[0]

	require.NoError(t, s.SetReachability(ctx, []models.ReachabilityEntry{
		{SymbolID: target, IsReachable: false, LastAnalyzed: time.Now()},
	}))
	entry, err := s.GetReachability(ctx, target)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.False(t, entry.IsReachable)

	_, err = s.ReplaceFile(ctx, fileRecord("b.rs"), []storage.SymbolInput{
		{Symbol: sym("caller", models.SymbolFunction, 1), Parent: -1},
	}, []storage.RefInput{{From: 0, To: target, Kind: models.RefCall}})
	require.NoError(t, err)

	entry, err = s.GetReachability(ctx, target)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestEmbeddingIndexes(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	res, err := s.ReplaceFile(ctx, fileRecord("a.rs"), []storage.SymbolInput{
		{Symbol: sym("foo", models.SymbolFunction, 1), Parent: -1},
		{Symbol: sym("bar", models.SymbolFunction, 5), Parent: -1},
	}, nil)
	require.NoError(t, err)

	require.NoError(t, s.SetEmbeddingIndexes(ctx, map[int64]int64{
		res.SymbolIDs[0]: 7,
		res.SymbolIDs[1]: 8,
	}))

	syms, err := s.SymbolsByIDs(ctx, []int64{res.SymbolIDs[1], res.SymbolIDs[0], 9999})
	require.NoError(t, err)
	require.Len(t, syms, 2)
	assert.Equal(t, "bar", syms[0].Name)
	require.NotNil(t, syms[0].EmbeddingIndex)
	assert.Equal(t, int64(8), *syms[0].EmbeddingIndex)
	require.NotNil(t, syms[1].EmbeddingIndex)
	assert.Equal(t, int64(7), *syms[1].EmbeddingIndex)

	// Updating a non-indexed column leaves full-text search intact.
	hits, err := s.SearchSymbols(ctx, "bar", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

func TestStatus(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.GetStatus(ctx, "embedding_model")
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.SetStatus(ctx, "embedding_model", "local:a"))
	require.NoError(t, s.SetStatus(ctx, "embedding_model", "local:b"))
	v, err := s.GetStatus(ctx, "embedding_model")
	require.NoError(t, err)
	assert.Equal(t, "local:b", v)
}

func TestFileLookups(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	f, err := s.GetFile(ctx, "missing.rs")
	require.NoError(t, err)
	assert.Nil(t, f)

	_, err = s.ReplaceFile(ctx, fileRecord("b.rs"), nil, nil)
	require.NoError(t, err)
	_, err = s.ReplaceFile(ctx, fileRecord("a.rs"), nil, nil)
	require.NoError(t, err)

	f, err = s.GetFile(ctx, "a.rs")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "h-a.rs", f.ContentHash)
	assert.False(t, f.IndexedAt.IsZero())

	files, err := s.ListFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a.rs", files[0].Path)
	assert.Equal(t, "b.rs", files[1].Path)

	paths, err := s.FilePaths(ctx, []int64{files[1].ID, 9999})
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{files[1].ID: "b.rs"}, paths)

	paths, err = s.FilePaths(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestSearchTreatsPunctuationLiterally(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.ReplaceFile(ctx, fileRecord("pkg/foo-bar.go"), []storage.SymbolInput{
		{Symbol: sym("NewFooBar", models.SymbolFunction, 1), Parent: -1},
	}, nil)
	require.NoError(t, err)

	files, err := s.SearchFiles(ctx, `foo-bar.go`, 5)
	require.NoError(t, err)
	require.Len(t, files, 1)

	hits, err := s.SearchSymbols(ctx, `NewFooBar(`, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "pkg/foo-bar.go", hits[0].File)

	hits, err = s.SearchSymbols(ctx, "  ", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
