package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/0x5457/code-index/internal/analyzer"
	"github.com/0x5457/code-index/internal/constants"
	"github.com/0x5457/code-index/internal/embeddings"
	"github.com/0x5457/code-index/internal/ignore"
	"github.com/0x5457/code-index/internal/indexer"
	"github.com/0x5457/code-index/internal/models"
	"github.com/0x5457/code-index/internal/parser"
	"github.com/0x5457/code-index/internal/storage"
	"github.com/0x5457/code-index/internal/util"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ExtractionError reports why one file could not be indexed. It never
// stops the other files of a run.
type ExtractionError struct {
	Path  string
	Stage models.IndexStage
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Path, e.Stage, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

type Options struct {
	Root string
	// MetadataDir is relative to Root and never indexed.
	MetadataDir    string
	MaxFileSize    int64
	EmbedBatchSize int
	Workers        int
	// LanguageEnabled filters detected languages; nil allows all.
	LanguageEnabled func(language string) bool
	// Extensions maps file extensions to languages served by plugins. They
	// take precedence over the built-in detection.
	Extensions map[string]string
}

type Indexer struct {
	p       parser.Parser
	reg     *analyzer.Registry
	e       embeddings.Embedder
	sym     storage.SymbolStore
	vec     storage.VectorStore
	emb     storage.EmbeddingLog
	matcher *ignore.Matcher
	opt     Options
	logger  *zap.Logger

	grammars map[string]bool
	// writeMu serializes every store mutation across workers.
	writeMu sync.Mutex
}

func New(
	p parser.Parser,
	reg *analyzer.Registry,
	e embeddings.Embedder,
	s storage.SymbolStore,
	v storage.VectorStore,
	emb storage.EmbeddingLog,
	matcher *ignore.Matcher,
	opt Options,
	logger *zap.Logger,
) (*Indexer, error) {
	if opt.Workers <= 0 {
		opt.Workers = runtime.NumCPU()
	}
	if opt.EmbedBatchSize <= 0 {
		opt.EmbedBatchSize = constants.DefaultBatchSize
	}
	if opt.MaxFileSize <= 0 {
		opt.MaxFileSize = constants.DefaultMaxFileSize
	}
	if opt.MetadataDir == "" {
		opt.MetadataDir = constants.DefaultMetadataDir
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if e.Dimensions() != emb.Dimensions() {
		return nil, &storage.DimensionMismatchError{Expected: emb.Dimensions(), Actual: e.Dimensions()}
	}
	grammars := make(map[string]bool)
	for _, l := range p.Languages() {
		grammars[l] = true
	}
	return &Indexer{
		p: p, reg: reg, e: e, sym: s, vec: v, emb: emb, matcher: matcher,
		opt: opt, logger: logger.Named("pipeline"), grammars: grammars,
	}, nil
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeProcessed
	outcomeDeleted
)

// IndexFile brings the stored state of one root-relative path up to date:
// new or changed files are re-extracted, files that vanished or are no
// longer indexable are removed.
func (i *Indexer) IndexFile(ctx context.Context, rel string) error {
	out, _, err := i.indexFile(ctx, rel)
	if err != nil {
		return err
	}
	if out != outcomeSkipped {
		if err := i.writeStatus(ctx); err != nil {
			return err
		}
	}
	return i.vec.Save()
}

// IndexFiles indexes paths on a bounded pool of workers. Per-file failures
// are collected in the report.
func (i *Indexer) IndexFiles(ctx context.Context, paths []string) models.IndexReport {
	start := time.Now()
	var (
		mu     sync.Mutex
		report models.IndexReport
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.opt.Workers)
	for _, rel := range dedupe(paths) {
		g.Go(func() error {
			out, n, err := i.indexFile(gctx, rel)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Errors = append(report.Errors, err.Error())
				i.logger.Warn("index file", zap.String("path", rel), zap.Error(err))
			case out == outcomeProcessed:
				report.FilesProcessed++
				report.Symbols += n
			case out == outcomeDeleted:
				report.FilesDeleted++
			default:
				report.FilesSkipped++
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := i.vec.Save(); err != nil {
		report.Errors = append(report.Errors, err.Error())
	}
	if report.FilesProcessed > 0 || report.FilesDeleted > 0 {
		if err := i.writeStatus(ctx); err != nil {
			report.Errors = append(report.Errors, err.Error())
		}
	}
	report.Duration = time.Since(start)
	return report
}

// IndexProject walks the project root and indexes every candidate file;
// stored files that are gone or now excluded are removed.
func (i *Indexer) IndexProject(ctx context.Context) (models.IndexReport, error) {
	found, scanErrs, err := i.scan(ctx)
	if err != nil {
		return models.IndexReport{}, &ExtractionError{Path: i.opt.Root, Stage: models.IndexStageScan, Err: err}
	}
	stored, err := i.sym.ListFiles(ctx)
	if err != nil {
		return models.IndexReport{}, &ExtractionError{Path: i.opt.Root, Stage: models.IndexStageScan, Err: err}
	}
	paths := found
	for _, f := range stored {
		paths = append(paths, f.Path)
	}
	report := i.IndexFiles(ctx, paths)
	for _, e := range scanErrs {
		report.Errors = append(report.Errors, e.Error())
	}
	i.logger.Info("project indexed",
		zap.Int("processed", report.FilesProcessed),
		zap.Int("skipped", report.FilesSkipped),
		zap.Int("deleted", report.FilesDeleted),
		zap.Int("symbols", report.Symbols),
		zap.Int("errors", len(report.Errors)),
		zap.Duration("took", report.Duration))
	return report, nil
}

// Run indexes each batch received until batches closes or ctx ends.
func (i *Indexer) Run(ctx context.Context, batches <-chan []string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-batches:
			if !ok {
				return nil
			}
			report := i.IndexFiles(ctx, batch)
			i.logger.Info("batch indexed",
				zap.Int("paths", len(batch)),
				zap.Int("processed", report.FilesProcessed),
				zap.Int("deleted", report.FilesDeleted),
				zap.Int("errors", len(report.Errors)))
		}
	}
}

// scan lists the candidate files under the root. Unreadable entries below
// the root are skipped and returned as scan errors; only a failure at the
// root itself or cancellation stops the walk.
func (i *Indexer) scan(ctx context.Context) ([]string, []*ExtractionError, error) {
	var (
		files []string
		errs  []*ExtractionError
	)
	meta := filepath.ToSlash(filepath.Clean(i.opt.MetadataDir))
	err := filepath.WalkDir(i.opt.Root, func(p string, d fs.DirEntry, err error) error {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		rel, rerr := filepath.Rel(i.opt.Root, p)
		if rerr != nil {
			return rerr
		}
		rel = filepath.ToSlash(rel)
		if err != nil {
			if rel == "." {
				return err
			}
			i.logger.Warn("scan", zap.String("path", rel), zap.Error(err))
			errs = append(errs, &ExtractionError{Path: rel, Stage: models.IndexStageScan, Err: err})
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" || rel == meta || i.ignored(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || i.ignored(rel, false) {
			return nil
		}
		if _, ok := i.language(rel); ok {
			files = append(files, rel)
		}
		return nil
	})
	return files, errs, err
}

func (i *Indexer) ignored(rel string, isDir bool) bool {
	return i.matcher != nil && i.matcher.Match(rel, isDir)
}

// language resolves the analyzer language for rel, honoring plugin
// extensions and the enabled-language filter.
func (i *Indexer) language(rel string) (string, bool) {
	lang, ok := i.opt.Extensions[strings.ToLower(filepath.Ext(rel))]
	if !ok {
		lang, ok = parser.DetectLanguage(rel)
	}
	if !ok {
		return "", false
	}
	if i.opt.LanguageEnabled != nil && !i.opt.LanguageEnabled(lang) {
		return "", false
	}
	if _, ok := i.reg.Get(lang); !ok {
		return "", false
	}
	return lang, true
}

func (i *Indexer) indexFile(ctx context.Context, rel string) (outcome, int, error) {
	rel = filepath.ToSlash(filepath.Clean(rel))
	abs := filepath.Join(i.opt.Root, filepath.FromSlash(rel))

	info, err := os.Stat(abs)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return i.remove(ctx, rel)
	case err != nil:
		return outcomeSkipped, 0, &ExtractionError{Path: rel, Stage: models.IndexStageRead, Err: err}
	case info.IsDir():
		return outcomeSkipped, 0, nil
	}
	lang, ok := i.language(rel)
	if !ok || i.ignored(rel, false) {
		return i.remove(ctx, rel)
	}
	if info.Size() > i.opt.MaxFileSize {
		i.logger.Debug("file too large", zap.String("path", rel), zap.Int64("size", info.Size()))
		return i.remove(ctx, rel)
	}

	src, err := os.ReadFile(abs)
	if err != nil {
		return outcomeSkipped, 0, &ExtractionError{Path: rel, Stage: models.IndexStageRead, Err: err}
	}
	hash := util.ContentHash(src)
	existing, err := i.sym.GetFile(ctx, rel)
	if err != nil {
		return outcomeSkipped, 0, &ExtractionError{Path: rel, Stage: models.IndexStageRead, Err: err}
	}
	if existing != nil && existing.ContentHash == hash && existing.Language == lang {
		complete, err := i.complete(ctx, existing.ID)
		if err != nil {
			return outcomeSkipped, 0, &ExtractionError{Path: rel, Stage: models.IndexStageRead, Err: err}
		}
		if complete {
			return outcomeSkipped, 0, nil
		}
		i.logger.Info("repairing partially indexed file", zap.String("path", rel))
	}

	a, _ := i.reg.Get(lang)
	var syms []models.ParsedSymbol
	var refs []models.ParsedReference
	if i.grammars[lang] {
		tree, err := i.p.Parse(ctx, lang, src)
		if err != nil {
			return outcomeSkipped, 0, &ExtractionError{Path: rel, Stage: models.IndexStageParse, Err: err}
		}
		syms, refs = analyzer.Run(analyzer.WithPath(ctx, rel), a, src, tree)
		tree.Close()
	} else {
		syms, refs = analyzer.Run(analyzer.WithPath(ctx, rel), a, src, nil)
	}

	flat := models.FlattenSymbols(syms)
	vecs, err := i.embed(ctx, rel, flat)
	if err != nil {
		return outcomeSkipped, 0, &ExtractionError{Path: rel, Stage: models.IndexStageEmbed, Err: err}
	}

	inputs := make([]storage.SymbolInput, len(flat))
	for k, f := range flat {
		inputs[k] = storage.SymbolInput{Symbol: f.Symbol, Parent: f.Parent}
	}
	record := storage.FileRecord{Path: rel, Language: lang, ContentHash: hash, Size: info.Size()}

	if err := i.store(ctx, record, inputs, refs, vecs); err != nil {
		return outcomeSkipped, 0, err
	}
	i.logger.Debug("file indexed", zap.String("path", rel), zap.Int("symbols", len(flat)), zap.Int("refs", len(refs)))
	return outcomeProcessed, len(flat), nil
}

// store writes one file's extraction to all three stores. Store writes are
// not one transaction; a crash in between is repaired by reindexing the
// file, which replaces everything it owns.
func (i *Indexer) store(
	ctx context.Context,
	record storage.FileRecord,
	inputs []storage.SymbolInput,
	refs []models.ParsedReference,
	vecs [][]float32,
) error {
	i.writeMu.Lock()
	defer i.writeMu.Unlock()

	resolved, err := i.resolveRefs(ctx, record.Path, inputs, refs)
	if err != nil {
		return &ExtractionError{Path: record.Path, Stage: models.IndexStageSymbols, Err: err}
	}
	res, err := i.sym.ReplaceFile(ctx, record, inputs, resolved)
	if err != nil {
		return &ExtractionError{Path: record.Path, Stage: models.IndexStageStore, Err: err}
	}
	for _, id := range res.RemovedSymbolIDs {
		i.vec.Remove(id)
	}
	if len(vecs) == 0 {
		return nil
	}
	first, err := i.emb.Append(vecs)
	if err != nil {
		return &ExtractionError{Path: record.Path, Stage: models.IndexStageVectors, Err: err}
	}
	indexes := make(map[int64]int64, len(vecs))
	for k, id := range res.SymbolIDs {
		indexes[id] = int64(first) + int64(k)
	}
	if err := i.sym.SetEmbeddingIndexes(ctx, indexes); err != nil {
		return &ExtractionError{Path: record.Path, Stage: models.IndexStageStore, Err: err}
	}
	for k, id := range res.SymbolIDs {
		if err := i.vec.Add(id, vecs[k]); err != nil {
			return &ExtractionError{Path: record.Path, Stage: models.IndexStageVectors, Err: err}
		}
	}
	return nil
}

// complete reports whether every stored symbol of a file has its embedding
// recorded and its vector in the index. The file row is committed before
// the vectors are written, so an interrupted run leaves it incomplete.
func (i *Indexer) complete(ctx context.Context, fileID int64) (bool, error) {
	syms, err := i.sym.SymbolsByFile(ctx, fileID)
	if err != nil {
		return false, err
	}
	count := i.emb.Count()
	for _, s := range syms {
		if s.EmbeddingIndex == nil || *s.EmbeddingIndex < 0 || uint64(*s.EmbeddingIndex) >= count {
			return false, nil
		}
		if !i.vec.Contains(s.ID) {
			return false, nil
		}
	}
	return true, nil
}

// resolveRefs binds references by name: first to a symbol of the same file,
// then to a symbol stored for another file. Unresolved names and
// references outside any symbol are dropped.
func (i *Indexer) resolveRefs(ctx context.Context, path string, inputs []storage.SymbolInput, refs []models.ParsedReference) ([]storage.RefInput, error) {
	local := make(map[string]int, len(inputs))
	for k, in := range inputs {
		if _, ok := local[in.Symbol.Name]; !ok {
			local[in.Symbol.Name] = k
		}
	}
	global := make(map[string]int64)
	out := make([]storage.RefInput, 0, len(refs))
	for _, r := range refs {
		if r.ContainingSymbol == nil || *r.ContainingSymbol < 0 || *r.ContainingSymbol >= len(inputs) {
			continue
		}
		ref := storage.RefInput{From: *r.ContainingSymbol, Kind: r.Kind, Location: r.Location}
		if k, ok := local[r.Name]; ok {
			ref.ToLocal = &k
			out = append(out, ref)
			continue
		}
		id, seen := global[r.Name]
		if !seen {
			var err error
			id, err = i.lookupElsewhere(ctx, path, r.Name)
			if err != nil {
				return nil, err
			}
			global[r.Name] = id
		}
		if id == 0 {
			continue
		}
		ref.To = id
		out = append(out, ref)
	}
	return out, nil
}

// lookupElsewhere returns the lowest id of a symbol called name that lives
// in a file other than path, or 0.
func (i *Indexer) lookupElsewhere(ctx context.Context, path, name string) (int64, error) {
	candidates, err := i.sym.FindSymbolsByName(ctx, name)
	if err != nil || len(candidates) == 0 {
		return 0, err
	}
	self, err := i.sym.GetFile(ctx, path)
	if err != nil {
		return 0, err
	}
	var best int64
	for _, c := range candidates {
		if self != nil && c.FileID == self.ID {
			continue
		}
		if best == 0 || c.ID < best {
			best = c.ID
		}
	}
	return best, nil
}

func (i *Indexer) remove(ctx context.Context, rel string) (outcome, int, error) {
	i.writeMu.Lock()
	defer i.writeMu.Unlock()
	existing, err := i.sym.GetFile(ctx, rel)
	if err != nil {
		return outcomeSkipped, 0, &ExtractionError{Path: rel, Stage: models.IndexStageStore, Err: err}
	}
	if existing == nil {
		return outcomeSkipped, 0, nil
	}
	ids, err := i.sym.DeleteFile(ctx, rel)
	if err != nil {
		return outcomeSkipped, 0, &ExtractionError{Path: rel, Stage: models.IndexStageStore, Err: err}
	}
	for _, id := range ids {
		i.vec.Remove(id)
	}
	i.logger.Debug("file removed", zap.String("path", rel), zap.Int("symbols", len(ids)))
	return outcomeDeleted, 0, nil
}

func (i *Indexer) embed(ctx context.Context, rel string, flat []models.FlatSymbol) ([][]float32, error) {
	if len(flat) == 0 {
		return nil, nil
	}
	texts := make([]string, len(flat))
	for k, f := range flat {
		texts[k] = buildEmbedText(rel, f.Symbol)
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += i.opt.EmbedBatchSize {
		end := min(start+i.opt.EmbedBatchSize, len(texts))
		vecs, err := i.e.EmbedTexts(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), end-start)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (i *Indexer) writeStatus(ctx context.Context) error {
	stats, err := i.sym.Stats(ctx)
	if err != nil {
		return err
	}
	status := map[string]string{
		constants.StatusLastIndexedAt:  time.Now().UTC().Format(time.RFC3339),
		constants.StatusEmbeddingModel: i.e.ModelName(),
		constants.StatusFilesIndexed:   strconv.Itoa(stats.Files),
	}
	keys := make([]string, 0, len(status))
	for k := range status {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := i.sym.SetStatus(ctx, k, status[k]); err != nil {
			return err
		}
	}
	return nil
}

func buildEmbedText(path string, sym models.ParsedSymbol) string {
	var b strings.Builder
	b.WriteString(string(sym.Kind))
	b.WriteString(" ")
	b.WriteString(sym.Name)
	b.WriteString("\n")
	if sym.Signature != "" {
		b.WriteString(sym.Signature)
		b.WriteString("\n")
	}
	if sym.DocComment != "" {
		b.WriteString(sym.DocComment)
		b.WriteString("\n")
	}
	b.WriteString(path)
	return b.String()
}

func dedupe(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, filepath.ToSlash(filepath.Clean(p)))
	}
	sort.Strings(out)
	return slices.Compact(out)
}

var _ indexer.Indexer = (*Indexer)(nil)
