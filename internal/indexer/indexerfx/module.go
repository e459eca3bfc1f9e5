package indexerfx

import (
	"github.com/0x5457/code-index/internal/analyzer"
	"github.com/0x5457/code-index/internal/config"
	"github.com/0x5457/code-index/internal/embeddings"
	"github.com/0x5457/code-index/internal/ignore"
	"github.com/0x5457/code-index/internal/indexer"
	"github.com/0x5457/code-index/internal/indexer/pipeline"
	"github.com/0x5457/code-index/internal/parser"
	"github.com/0x5457/code-index/internal/storage"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params represents dependencies for indexer components
type Params struct {
	fx.In

	Config   *config.Config
	Logger   *zap.Logger
	Parser   parser.Parser
	Registry *analyzer.Registry
	Embedder embeddings.Embedder
	SymStore storage.SymbolStore
	VecStore storage.VectorStore
	EmbLog   storage.EmbeddingLog
	Matcher  *ignore.Matcher
}

// NewIndexer creates the extraction pipeline for the configured project
func NewIndexer(params Params) (indexer.Indexer, error) {
	exts, err := params.Config.PluginExtensions()
	if err != nil {
		return nil, err
	}
	return pipeline.New(
		params.Parser,
		params.Registry,
		params.Embedder,
		params.SymStore,
		params.VecStore,
		params.EmbLog,
		params.Matcher,
		pipeline.Options{
			Root:            params.Config.ProjectRoot,
			MetadataDir:     params.Config.MetadataRel(),
			MaxFileSize:     params.Config.Parser.MaxFileSize,
			EmbedBatchSize:  params.Config.Embedding.BatchSize,
			Workers:         params.Config.Index.Workers,
			LanguageEnabled: params.Config.LanguageEnabled,
			Extensions:      exts,
		},
		params.Logger,
	)
}

// Module provides indexer components
var Module = fx.Module("indexer",
	fx.Provide(NewIndexer),
)
