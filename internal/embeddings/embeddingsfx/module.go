package embeddingsfx

import (
	"github.com/0x5457/code-index/internal/config"
	"github.com/0x5457/code-index/internal/embeddings"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params represents dependencies for embeddings components
type Params struct {
	fx.In

	Config *config.Config
	Logger *zap.Logger
}

// NewEmbedder creates the configured embedder
func NewEmbedder(params Params) (embeddings.Embedder, error) {
	e, err := embeddings.New(params.Config.Embedding)
	if err != nil {
		return nil, err
	}
	params.Logger.Debug("embedder ready",
		zap.String("model", e.ModelName()),
		zap.Int("dimensions", e.Dimensions()))
	return e, nil
}

// Module provides embeddings components
var Module = fx.Module("embeddings",
	fx.Provide(NewEmbedder),
)
