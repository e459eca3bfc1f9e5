package storagefx

import (
	"context"
	"fmt"
	"os"

	"github.com/0x5457/code-index/internal/config"
	"github.com/0x5457/code-index/internal/embeddings"
	"github.com/0x5457/code-index/internal/storage"
	"github.com/0x5457/code-index/internal/storage/embstore"
	"github.com/0x5457/code-index/internal/storage/sqlite"
	"github.com/0x5457/code-index/internal/storage/vectorindex"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ModelChangedError reports an embeddings file written by another model.
// Its vectors cannot be compared with new ones; the index must be rebuilt.
type ModelChangedError struct {
	Path string
}

func (e *ModelChangedError) Error() string {
	return fmt.Sprintf("%s was written by a different embedding model; rebuild the index with --reset", e.Path)
}

// Params represents dependencies for storage components
type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.Config
	Logger    *zap.Logger
}

// NewSymbolStore opens the SQLite database inside the metadata directory
func NewSymbolStore(params Params) (storage.SymbolStore, error) {
	if err := os.MkdirAll(params.Config.MetadataPath(), 0o755); err != nil {
		return nil, fmt.Errorf("create metadata dir: %w", err)
	}
	store, err := sqlite.New(params.Config.DatabasePath(), params.Logger)
	if err != nil {
		return nil, err
	}
	params.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error { return store.Close() },
	})
	return store, nil
}

// EmbeddingParams represents dependencies for the embedding file
type EmbeddingParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.Config
	Embedder  embeddings.Embedder
}

// NewEmbeddingStore opens or creates the embedding file for the configured model
func NewEmbeddingStore(params EmbeddingParams) (*embstore.Store, error) {
	if err := os.MkdirAll(params.Config.MetadataPath(), 0o755); err != nil {
		return nil, fmt.Errorf("create metadata dir: %w", err)
	}
	path := params.Config.EmbeddingsPath()
	want := embstore.ModelHash(embeddings.ModelHash(params.Embedder))
	store, err := embstore.OpenOrCreate(path, params.Embedder.Dimensions(), want)
	if err != nil {
		return nil, err
	}
	if store.ModelHash() != want {
		_ = store.Close()
		return nil, &ModelChangedError{Path: path}
	}
	params.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error { return store.Close() },
	})
	return store, nil
}

// NewEmbeddingLog exposes the embedding file to the indexer
func NewEmbeddingLog(store *embstore.Store) storage.EmbeddingLog {
	return store
}

// VectorParams represents dependencies for the vector index
type VectorParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.Config
	Embedder  embeddings.Embedder
	Logger    *zap.Logger
}

// NewVectorIndex loads the HNSW snapshot, or starts an empty index. The
// snapshot is written again on shutdown.
func NewVectorIndex(params VectorParams) (*vectorindex.Index, error) {
	idx, err := vectorindex.OpenWithConfig(params.Config.MetadataPath(), vectorindex.Config{
		Dimensions:     params.Embedder.Dimensions(),
		M:              params.Config.Index.HNSWM,
		EfConstruction: params.Config.Index.HNSWEfConstruction,
		EfSearch:       params.Config.Index.HNSWEfSearch,
	}, params.Logger)
	if err != nil {
		return nil, err
	}
	params.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error { return idx.Save() },
	})
	return idx, nil
}

// NewVectorStore exposes the vector index to the indexer and search
func NewVectorStore(idx *vectorindex.Index) storage.VectorStore {
	return idx
}

// Module provides storage components
var Module = fx.Module("storage",
	fx.Provide(
		NewSymbolStore,
		NewEmbeddingStore,
		NewEmbeddingLog,
		NewVectorIndex,
		NewVectorStore,
	),
)
