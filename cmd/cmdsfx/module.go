package cmdsfx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/0x5457/code-index/internal/config"
	"github.com/0x5457/code-index/internal/constants"
	"github.com/0x5457/code-index/internal/indexer"
	"github.com/0x5457/code-index/internal/models"
	"github.com/0x5457/code-index/internal/search"
	"github.com/0x5457/code-index/internal/storage"
	"github.com/0x5457/code-index/internal/watcher"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Search modes
const (
	ModeSemantic = "semantic"
	ModeText     = "text"
	ModeFiles    = "files"
)

// CommandRunner provides methods to run different application commands
type CommandRunner struct {
	config        *config.Config
	logger        *zap.Logger
	searchService *search.Service
	indexer       indexer.Indexer
	watcher       *watcher.Watcher
	symbols       storage.SymbolStore
	out           io.Writer
}

// Params represents dependencies for command runner
type Params struct {
	fx.In

	Config        *config.Config
	Logger        *zap.Logger
	SearchService *search.Service     `optional:"true"`
	Indexer       indexer.Indexer     `optional:"true"`
	Watcher       *watcher.Watcher    `optional:"true"`
	SymStore      storage.SymbolStore `optional:"true"`
	Out           io.Writer           `name:"stdout" optional:"true"`
}

// NewCommandRunner creates a new command runner
func NewCommandRunner(params Params) *CommandRunner {
	out := params.Out
	if out == nil {
		out = os.Stdout
	}
	return &CommandRunner{
		config:        params.Config,
		logger:        params.Logger,
		searchService: params.SearchService,
		indexer:       params.Indexer,
		watcher:       params.Watcher,
		symbols:       params.SymStore,
		out:           out,
	}
}

// RunIndex indexes the whole project once
func (r *CommandRunner) RunIndex(ctx context.Context) error {
	if r.indexer == nil {
		return fmt.Errorf("indexer not available")
	}
	report, err := r.indexer.IndexProject(ctx)
	if err != nil {
		return err
	}
	for _, msg := range report.Errors {
		_, _ = fmt.Fprintf(r.out, "error: %s\n", msg)
	}
	_, _ = fmt.Fprintf(r.out, "indexed %d files (%d unchanged, %d removed), %d symbols in %s\n",
		report.FilesProcessed, report.FilesSkipped, report.FilesDeleted, report.Symbols,
		report.Duration.Round(time.Millisecond))
	return nil
}

// RunSearch executes a semantic, symbol text or file text search
func (r *CommandRunner) RunSearch(ctx context.Context, query, mode string, topK int) error {
	if r.searchService == nil {
		return fmt.Errorf("search service not available")
	}

	switch mode {
	case ModeSemantic, "":
		hits, err := r.searchService.SearchSemantic(ctx, query, topK)
		if err != nil {
			return err
		}
		for _, hit := range hits {
			_, _ = fmt.Fprintf(r.out, "[%.3f] %s %s %s:%d-%d\n",
				hit.Score, hit.Symbol.Kind, hit.Symbol.Name, hit.File,
				hit.Symbol.Location.StartLine, hit.Symbol.Location.EndLine)
		}
	case ModeText:
		hits, err := r.searchService.SearchSymbols(ctx, query, topK)
		if err != nil {
			return err
		}
		for _, hit := range hits {
			_, _ = fmt.Fprintf(r.out, "%s %s %s:%d-%d\n",
				hit.Symbol.Kind, hit.Symbol.Name, hit.File,
				hit.Symbol.Location.StartLine, hit.Symbol.Location.EndLine)
		}
	case ModeFiles:
		hits, err := r.searchService.SearchFiles(ctx, query, topK)
		if err != nil {
			return err
		}
		for _, hit := range hits {
			_, _ = fmt.Fprintf(r.out, "%s (%s)\n", hit.File.Path, hit.File.Language)
		}
	default:
		return fmt.Errorf("unsupported search mode: %s (supported: semantic, text, files)", mode)
	}
	return nil
}

// RunRefs lists the stored references to symbols called name
func (r *CommandRunner) RunRefs(ctx context.Context, name string) error {
	if r.searchService == nil {
		return fmt.Errorf("search service not available")
	}
	refs, err := r.searchService.References(ctx, name)
	if err != nil {
		return err
	}
	for _, ref := range refs {
		_, _ = fmt.Fprintf(r.out, "%s:%d %s in %s\n",
			ref.File, ref.Ref.Location.StartLine, ref.Ref.Kind, ref.From.Name)
	}
	return nil
}

// RunOutline prints the symbol tree of one indexed file
func (r *CommandRunner) RunOutline(ctx context.Context, path string) error {
	if r.searchService == nil {
		return fmt.Errorf("search service not available")
	}
	tree, err := r.searchService.Outline(ctx, path)
	if err != nil {
		return err
	}
	var walk func(nodes []*models.SymbolNode, depth int)
	walk = func(nodes []*models.SymbolNode, depth int) {
		for _, n := range nodes {
			_, _ = fmt.Fprintf(r.out, "%s%s %s (%s) %d-%d\n",
				strings.Repeat("  ", depth), n.Symbol.Kind, n.Symbol.Name, n.Symbol.Visibility,
				n.Symbol.Location.StartLine, n.Symbol.Location.EndLine)
			walk(n.Children, depth+1)
		}
	}
	walk(tree, 0)
	return nil
}

// RunStatus prints store counts and the status written by the last run
func (r *CommandRunner) RunStatus(ctx context.Context) error {
	if r.symbols == nil {
		return fmt.Errorf("symbol store not available")
	}
	stats, err := r.symbols.Stats(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(r.out, "project: %s\nfiles: %d\nsymbols: %d\nreferences: %d\n",
		r.config.ProjectRoot, stats.Files, stats.Symbols, stats.Refs)
	for _, key := range []string{constants.StatusLastIndexedAt, constants.StatusEmbeddingModel} {
		v, err := r.symbols.GetStatus(ctx, key)
		if err != nil {
			return err
		}
		if v != "" {
			_, _ = fmt.Fprintf(r.out, "%s: %s\n", key, v)
		}
	}
	return nil
}

// RunWatch indexes the project, then keeps it current until ctx ends. When
// another process already watches the project it returns at once.
func (r *CommandRunner) RunWatch(ctx context.Context) error {
	if r.indexer == nil || r.watcher == nil {
		return fmt.Errorf("watcher not available")
	}
	batches, err := r.watcher.Start(ctx)
	if err != nil {
		return err
	}
	if r.watcher.State() == watcher.StateSkippedAlreadyWatched {
		_, _ = fmt.Fprintf(r.out, "%s is already being watched\n", r.config.ProjectRoot)
		return nil
	}
	defer r.watcher.Stop()

	if err := r.RunIndex(ctx); err != nil {
		return err
	}
	r.logger.Info("waiting for changes", zap.String("root", r.config.ProjectRoot))
	if err := r.indexer.Run(ctx, batches); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Module provides command runner
var Module = fx.Module("commands",
	fx.Provide(NewCommandRunner),
)
