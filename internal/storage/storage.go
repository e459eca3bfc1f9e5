package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/0x5457/code-index/internal/models"
)

var (
	// ErrCorrupt reports a file whose header or body is not in the expected format.
	ErrCorrupt = errors.New("storage: corrupt file")
	// ErrUnsupportedVersion reports a well-formed file written by an unknown format version.
	ErrUnsupportedVersion = errors.New("storage: unsupported format version")
	// ErrOutOfRange reports a record index past the end of the store.
	ErrOutOfRange = errors.New("storage: index out of range")
	// ErrNotFound reports a missing row.
	ErrNotFound = errors.New("storage: not found")
)

// DimensionMismatchError reports a vector whose length differs from the
// dimensionality a store was created with.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// FileRecord is the row written for one source file.
type FileRecord struct {
	Path        string
	Language    string
	ContentHash string
	Size        int64
	Description string
}

// SymbolInput is one symbol in pre-order. Parent is the position of the
// enclosing symbol in the same slice, or -1 for top-level symbols.
type SymbolInput struct {
	Symbol models.ParsedSymbol
	Parent int
}

// RefInput is a resolved reference between two symbols. From indexes the
// SymbolInput slice of the same call; To is an already stored symbol id, or
// when ToLocal is set, another position in the same SymbolInput slice.
type RefInput struct {
	From     int
	To       int64
	ToLocal  *int
	Kind     models.RefKind
	Location models.Location
}

// ReplaceResult carries the ids produced by a file replacement.
type ReplaceResult struct {
	FileID int64
	// SymbolIDs is parallel to the SymbolInput slice.
	SymbolIDs []int64
	// RemovedSymbolIDs are the ids that belonged to the previous version of the file.
	RemovedSymbolIDs []int64
}

type Stats struct {
	Files   int
	Symbols int
	Refs    int
}

type SymbolStore interface {
	ReplaceFile(ctx context.Context, file FileRecord, symbols []SymbolInput, refs []RefInput) (*ReplaceResult, error)
	DeleteFile(ctx context.Context, path string) ([]int64, error)
	GetFile(ctx context.Context, path string) (*models.File, error)
	ListFiles(ctx context.Context) ([]models.File, error)
	FilePaths(ctx context.Context, fileIDs []int64) (map[int64]string, error)

	GetSymbol(ctx context.Context, id int64) (*models.Symbol, error)
	SymbolsByFile(ctx context.Context, fileID int64) ([]models.Symbol, error)
	SymbolTree(ctx context.Context, fileID int64) ([]*models.SymbolNode, error)
	FindSymbolsByName(ctx context.Context, name string) ([]models.Symbol, error)
	SymbolsByIDs(ctx context.Context, ids []int64) ([]models.Symbol, error)
	SetEmbeddingIndexes(ctx context.Context, indexes map[int64]int64) error

	RefsFrom(ctx context.Context, symbolID int64) ([]models.SymbolRef, error)
	RefsTo(ctx context.Context, symbolID int64) ([]models.SymbolRef, error)

	SearchSymbols(ctx context.Context, query string, limit int) ([]models.SymbolHit, error)
	SearchFiles(ctx context.Context, query string, limit int) ([]models.FileHit, error)

	SetStatus(ctx context.Context, key, value string) error
	GetStatus(ctx context.Context, key string) (string, error)
	SetReachability(ctx context.Context, entries []models.ReachabilityEntry) error
	GetReachability(ctx context.Context, symbolID int64) (*models.ReachabilityEntry, error)

	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// VectorHit is one nearest neighbour returned by a VectorStore.
type VectorHit struct {
	ID         int64
	Similarity float32
}

type VectorStore interface {
	Add(id int64, vector []float32) error
	Remove(id int64) bool
	Contains(id int64) bool
	Search(query []float32, k int) ([]VectorHit, error)
	Count() int
	Save() error
}

// EmbeddingLog is the append-only record store behind the vector index.
type EmbeddingLog interface {
	Append(vectors [][]float32) (uint64, error)
	Get(index uint64) ([]float32, error)
	Count() uint64
	Dimensions() int
}
