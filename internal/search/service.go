package search

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/0x5457/code-index/internal/embeddings"
	"github.com/0x5457/code-index/internal/models"
	"github.com/0x5457/code-index/internal/storage"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultQueryCacheSize bounds the number of query embeddings kept in memory.
const DefaultQueryCacheSize = 256

var ErrEmptyQuery = errors.New("search: empty query")

// Service answers lookups against the stores. It does no ranking of its
// own: semantic hits come back in vector similarity order and text hits in
// full-text rank order.
type Service struct {
	embedder embeddings.Embedder
	vectors  storage.VectorStore
	symbols  storage.SymbolStore
	queries  *lru.Cache[string, []float32]
}

func New(e embeddings.Embedder, v storage.VectorStore, s storage.SymbolStore, cacheSize int) (*Service, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultQueryCacheSize
	}
	cache, err := lru.New[string, []float32](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create query cache: %w", err)
	}
	return &Service{embedder: e, vectors: v, symbols: s, queries: cache}, nil
}

// Reference is one stored edge pointing at a symbol, with both ends resolved.
type Reference struct {
	Ref    models.SymbolRef
	From   models.Symbol
	File   string
	Target models.Symbol
}

// SearchSemantic embeds query and returns up to k symbols nearest to it.
// Vector ids whose symbol is gone are skipped.
func (s *Service) SearchSemantic(ctx context.Context, query string, k int) ([]models.SemanticHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	vec, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := s.vectors.Search(vec, k)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}
	ids := make([]int64, len(hits))
	scores := make(map[int64]float32, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
		scores[h.ID] = h.Similarity
	}
	syms, err := s.symbols.SymbolsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	paths, err := s.filePaths(ctx, syms)
	if err != nil {
		return nil, err
	}
	out := make([]models.SemanticHit, 0, len(syms))
	for _, sym := range syms {
		out = append(out, models.SemanticHit{Symbol: sym, File: paths[sym.FileID], Score: scores[sym.ID]})
	}
	return out, nil
}

func (s *Service) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if vec, ok := s.queries.Get(query); ok {
		return vec, nil
	}
	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	s.queries.Add(query, vec)
	return vec, nil
}

// SearchSymbols is a full-text lookup over symbol names, descriptions and
// doc comments.
func (s *Service) SearchSymbols(ctx context.Context, query string, limit int) ([]models.SymbolHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	return s.symbols.SearchSymbols(ctx, query, limit)
}

// SearchFiles is a full-text lookup over file paths and descriptions.
func (s *Service) SearchFiles(ctx context.Context, query string, limit int) ([]models.FileHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	return s.symbols.SearchFiles(ctx, query, limit)
}

// References returns every stored reference to a symbol called name.
func (s *Service) References(ctx context.Context, name string) ([]Reference, error) {
	targets, err := s.symbols.FindSymbolsByName(ctx, name)
	if err != nil {
		return nil, err
	}
	var out []Reference
	var callers []models.Symbol
	for _, target := range targets {
		refs, err := s.symbols.RefsTo(ctx, target.ID)
		if err != nil {
			return nil, err
		}
		for _, ref := range refs {
			from, err := s.symbols.GetSymbol(ctx, ref.FromSymbolID)
			if err != nil {
				return nil, err
			}
			if from == nil {
				continue
			}
			out = append(out, Reference{Ref: ref, From: *from, Target: target})
			callers = append(callers, *from)
		}
	}
	paths, err := s.filePaths(ctx, callers)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].File = paths[out[i].From.FileID]
	}
	return out, nil
}

// Outline returns the symbol tree of one stored file, or storage.ErrNotFound.
func (s *Service) Outline(ctx context.Context, path string) ([]*models.SymbolNode, error) {
	path = filepath.ToSlash(filepath.Clean(path))
	f, err := s.symbols.GetFile(ctx, path)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("%s: %w", path, storage.ErrNotFound)
	}
	return s.symbols.SymbolTree(ctx, f.ID)
}

// filePaths resolves the files holding syms.
func (s *Service) filePaths(ctx context.Context, syms []models.Symbol) (map[int64]string, error) {
	seen := make(map[int64]struct{}, len(syms))
	ids := make([]int64, 0, len(syms))
	for _, sym := range syms {
		if _, ok := seen[sym.FileID]; ok {
			continue
		}
		seen[sym.FileID] = struct{}{}
		ids = append(ids, sym.FileID)
	}
	return s.symbols.FilePaths(ctx, ids)
}
