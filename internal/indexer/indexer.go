package indexer

import (
	"context"

	"github.com/0x5457/code-index/internal/models"
)

// Indexer keeps the stores in step with the files of one project. Paths are
// relative to the project root.
type Indexer interface {
	IndexProject(ctx context.Context) (models.IndexReport, error)
	IndexFile(ctx context.Context, path string) error
	IndexFiles(ctx context.Context, paths []string) models.IndexReport
	// Run consumes batches of changed paths until the channel closes or ctx ends.
	Run(ctx context.Context, batches <-chan []string) error
}
