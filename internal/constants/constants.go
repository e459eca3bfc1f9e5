package constants

import "time"

const (
	DefaultEmbedURL    = "http://localhost:8000/embed"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultLocalModel  = "local-fixed"

	DefaultDimensions = 384
	DefaultBatchSize  = 32

	DefaultMetadataDir = ".codeindex"
	DatabaseFile       = "index.db"
	EmbeddingsFile     = "embeddings.bin"
	WatcherLockFile    = "watcher.lock"
	IgnoreFile         = ".codeindexignore"

	DefaultMaxFileSize = 1 << 20
	DefaultWorkers     = 4

	DefaultDebounce      = 500 * time.Millisecond
	DefaultPollInterval  = 50 * time.Millisecond
	DefaultPluginTimeout = 30 * time.Second
)

// Status keys maintained by the indexing pipeline.
const (
	StatusLastIndexedAt  = "last_indexed_at"
	StatusEmbeddingModel = "embedding_model"
	StatusFilesIndexed   = "files_indexed"
)
