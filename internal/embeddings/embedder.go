package embeddings

import (
	"context"
	"fmt"
	"math"

	"github.com/0x5457/code-index/internal/config"
	"github.com/0x5457/code-index/internal/util"
)

type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	ModelName() string
	Dimensions() int
}

// New builds the embedder selected by cfg.Provider.
func New(cfg config.EmbeddingConfig) (Embedder, error) {
	switch cfg.Provider {
	case config.ProviderLocal, "":
		return NewLocal(cfg.Dimensions), nil
	case config.ProviderAPI:
		return NewApi(cfg.APIBase, cfg.Dimensions), nil
	case config.ProviderOpenAI:
		return NewOpenAI(cfg.APIKey, cfg.APIBase, cfg.Model, cfg.Dimensions), nil
	}
	return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
}

// ModelHash identifies the model whose vectors an embedding file holds.
func ModelHash(e Embedder) [32]byte {
	return util.ModelHash(e.ModelName(), e.Dimensions())
}

// checkBatch verifies a provider answered every text with the expected
// vector size.
func checkBatch(vecs [][]float32, texts, dims int) error {
	if len(vecs) != texts {
		return fmt.Errorf("embedding provider returned %d vectors for %d texts", len(vecs), texts)
	}
	for i, v := range vecs {
		if dims > 0 && len(v) != dims {
			return fmt.Errorf("embedding %d has %d dimensions, want %d", i, len(v), dims)
		}
	}
	return nil
}

// l2normalize normalizes a vector to unit length
func l2normalize(v []float32) {
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(float64(sum)))
	for i := range v {
		v[i] *= inv
	}
}
