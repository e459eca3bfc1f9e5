package searchfx

import (
	"github.com/0x5457/code-index/internal/embeddings"
	"github.com/0x5457/code-index/internal/search"
	"github.com/0x5457/code-index/internal/storage"
	"go.uber.org/fx"
)

// Params represents dependencies for search service
type Params struct {
	fx.In

	Embedder embeddings.Embedder
	VecStore storage.VectorStore
	SymStore storage.SymbolStore
}

// NewSearchService creates a new search service instance
func NewSearchService(params Params) (*search.Service, error) {
	return search.New(params.Embedder, params.VecStore, params.SymStore, search.DefaultQueryCacheSize)
}

// Module provides search components
var Module = fx.Module("search",
	fx.Provide(NewSearchService),
)
