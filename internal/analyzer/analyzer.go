// Package analyzer extracts symbols and references from syntax trees.
//
// Every language, whether analyzed natively from a tree-sitter tree or by an
// external plugin, is reached through LanguageAnalyzer and produces the same
// normalized models.ParsedSymbol and models.ParsedReference values.
package analyzer

import (
	"context"
	"sort"
	"sync"

	"github.com/0x5457/code-index/internal/models"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

type LanguageAnalyzer interface {
	Language() string
	// ExtractSymbols returns the symbol forest of one file.
	ExtractSymbols(ctx context.Context, source []byte, tree *tree_sitter.Tree) []models.ParsedSymbol
	// ExtractReferences returns usage sites. ContainingSymbol indexes the
	// pre-order flattening of what ExtractSymbols returns for the same input.
	ExtractReferences(ctx context.Context, source []byte, tree *tree_sitter.Tree) []models.ParsedReference
}

// Registry maps languages to analyzers. Build it once at startup and pass
// it to whoever needs it.
type Registry struct {
	mu        sync.RWMutex
	analyzers map[string]LanguageAnalyzer
}

func NewRegistry(analyzers ...LanguageAnalyzer) *Registry {
	r := &Registry{analyzers: make(map[string]LanguageAnalyzer, len(analyzers))}
	for _, a := range analyzers {
		r.Register(a)
	}
	return r
}

// Register adds a or replaces the analyzer already registered for its language.
func (r *Registry) Register(a LanguageAnalyzer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.analyzers[a.Language()] = a
}

func (r *Registry) Get(language string) (LanguageAnalyzer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.analyzers[language]
	return a, ok
}

func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.analyzers))
	for l := range r.analyzers {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// NativeAnalyzers returns the built-in tree-sitter analyzers.
func NativeAnalyzers() []LanguageAnalyzer {
	return []LanguageAnalyzer{
		NewNative(RustSpec()),
		NewNative(GoSpec()),
		NewNative(TypeScriptSpec()),
		NewNative(TSXSpec()),
	}
}

// Combined is implemented by analyzers that produce symbols and references
// in a single pass.
type Combined interface {
	Analyze(ctx context.Context, source []byte, tree *tree_sitter.Tree) ([]models.ParsedSymbol, []models.ParsedReference)
}

// Run extracts symbols and references with a, in one pass when a supports it.
func Run(ctx context.Context, a LanguageAnalyzer, source []byte, tree *tree_sitter.Tree) ([]models.ParsedSymbol, []models.ParsedReference) {
	if c, ok := a.(Combined); ok {
		return c.Analyze(ctx, source, tree)
	}
	return a.ExtractSymbols(ctx, source, tree), a.ExtractReferences(ctx, source, tree)
}

type pathKey struct{}

// WithPath records the project-relative path of the file being analyzed.
func WithPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, pathKey{}, path)
}

// PathFrom returns the path stored by WithPath, or "".
func PathFrom(ctx context.Context) string {
	p, _ := ctx.Value(pathKey{}).(string)
	return p
}
