package indexerfx

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/0x5457/code-index/internal/analyzer/analyzerfx"
	"github.com/0x5457/code-index/internal/config"
	"github.com/0x5457/code-index/internal/embeddings/embeddingsfx"
	"github.com/0x5457/code-index/internal/ignore/ignorefx"
	"github.com/0x5457/code-index/internal/indexer"
	"github.com/0x5457/code-index/internal/parser/parserfx"
	"github.com/0x5457/code-index/internal/storage/storagefx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/zap/zaptest"
)

func TestIndexerModule(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "lib.rs"), []byte("pub fn answer() -> u32 { 42 }\n"), 0o644))
	cfg := config.Default()
	cfg.SetProjectRoot(root)
	cfg.Embedding.Dimensions = 16

	var idx indexer.Indexer
	app := fx.New(
		Module,
		analyzerfx.Module,
		embeddingsfx.Module,
		ignorefx.Module,
		parserfx.Module,
		storagefx.Module,
		fx.Supply(cfg, zaptest.NewLogger(t)),
		fx.Populate(&idx),
	)

	ctx := context.Background()
	require.NoError(t, app.Start(ctx))
	defer func() {
		require.NoError(t, app.Stop(ctx))
	}()

	report, err := idx.IndexProject(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Errors)
	assert.Equal(t, 1, report.FilesProcessed)
	assert.Equal(t, 1, report.Symbols)
}
