// Package plugin adapts an out-of-process analyzer to analyzer.LanguageAnalyzer.
//
// Requests and responses are JSON. Symbol kinds use LSP numbering and
// positions are LSP ranges; both are converted to the index's own model.
// A plugin that fails in any way contributes nothing for that file.
package plugin

import (
	"context"
	"encoding/json"
	"unicode/utf8"

	"github.com/0x5457/code-index/internal/analyzer"
	"github.com/0x5457/code-index/internal/models"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	"go.uber.org/zap"
)

type Adapter struct {
	language  string
	transport Transport
	logger    *zap.Logger
}

func New(language string, transport Transport, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		language:  language,
		transport: transport,
		logger:    logger.Named("plugin").With(zap.String("language", language)),
	}
}

func (a *Adapter) Language() string { return a.language }

func (a *Adapter) ExtractSymbols(ctx context.Context, source []byte, _ *tree_sitter.Tree) []models.ParsedSymbol {
	resp, ok := a.call(ctx, MethodExtractSymbols, source)
	if !ok {
		return nil
	}
	return newConverter(source).symbols(resp.Symbols)
}

// ExtractReferences asks for symbols as well: containing-symbol indices
// address the plugin's symbol list and are rewritten against the symbols
// this adapter keeps.
func (a *Adapter) ExtractReferences(ctx context.Context, source []byte, tree *tree_sitter.Tree) []models.ParsedReference {
	_, refs := a.Analyze(ctx, source, tree)
	return refs
}

func (a *Adapter) Analyze(ctx context.Context, source []byte, _ *tree_sitter.Tree) ([]models.ParsedSymbol, []models.ParsedReference) {
	resp, ok := a.call(ctx, MethodAnalyze, source)
	if !ok {
		return nil, nil
	}
	c := newConverter(source)
	syms := c.symbols(resp.Symbols)
	return syms, c.refs(resp.References)
}

func (a *Adapter) call(ctx context.Context, method string, source []byte) (*Response, bool) {
	path := analyzer.PathFrom(ctx)
	req, err := json.Marshal(Request{Method: method, Language: a.language, Path: path, Source: string(source)})
	if err != nil {
		a.logger.Warn("encode request", zap.String("path", path), zap.Error(err))
		return nil, false
	}
	raw, err := a.transport.Invoke(ctx, req)
	if err != nil {
		a.logger.Warn("invoke plugin", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return nil, false
	}
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		a.logger.Warn("decode response", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return nil, false
	}
	if resp.Error != "" {
		a.logger.Warn("plugin reported error", zap.String("method", method), zap.String("path", path), zap.String("error", resp.Error))
		return nil, false
	}
	return &resp, true
}

// converter maps plugin symbols and references onto the index's model.
// Unnamed symbols are dropped and their named descendants take their place,
// so remap translates plugin pre-order positions to kept ones.
type converter struct {
	lines lineIndex
	next  int
	kept  int
	remap map[int]int
}

func newConverter(source []byte) *converter {
	return &converter{lines: newLineIndex(source), remap: make(map[int]int)}
}

func (c *converter) symbols(in []Symbol) []models.ParsedSymbol {
	var out []models.ParsedSymbol
	for _, s := range in {
		pos := c.next
		c.next++
		if s.Name == "" {
			out = append(out, c.symbols(s.Children)...)
			continue
		}
		c.remap[pos] = c.kept
		c.kept++
		sym := models.ParsedSymbol{
			Name:         s.Name,
			Kind:         s.Kind.ToModel(),
			Location:     c.lines.location(s.Range),
			Signature:    s.Detail,
			DocComment:   s.Documentation,
			Visibility:   s.Visibility.ToModel(),
			IsEntryPoint: s.IsEntryPoint,
		}
		sym.Children = c.symbols(s.Children)
		out = append(out, sym)
	}
	return out
}

// refs must run after symbols. Containers that were dropped or never
// existed become nil.
func (c *converter) refs(in []Reference) []models.ParsedReference {
	out := make([]models.ParsedReference, 0, len(in))
	for _, r := range in {
		if r.Name == "" {
			continue
		}
		ref := models.ParsedReference{
			Name:     r.Name,
			Kind:     r.Kind.ToModel(),
			Location: c.lines.location(r.Range),
		}
		if r.ContainingSymbol != nil {
			if k, ok := c.remap[*r.ContainingSymbol]; ok {
				ref.ContainingSymbol = &k
			}
		}
		out = append(out, ref)
	}
	return out
}

// lineIndex holds the byte offset at which each line starts.
type lineIndex struct {
	src    []byte
	starts []int
}

func newLineIndex(src []byte) lineIndex {
	starts := []int{0}
	for i, b := range src {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return lineIndex{src: src, starts: starts}
}

func (l lineIndex) location(r Range) models.Location {
	startByte, startCol := l.offset(r.Start)
	endByte, endCol := l.offset(r.End)
	if endByte < startByte {
		endByte, endCol = startByte, startCol
	}
	return models.Location{
		StartLine:   r.Start.Line + 1,
		EndLine:     max(r.End.Line, r.Start.Line) + 1,
		StartColumn: startCol,
		EndColumn:   endCol,
		StartByte:   startByte,
		EndByte:     endByte,
	}
}

// offset converts an LSP position to an absolute byte offset and a byte
// column, clamping out-of-range values.
func (l lineIndex) offset(p Position) (int, int) {
	if p.Line < 0 {
		return 0, 0
	}
	if p.Line >= len(l.starts) {
		return len(l.src), 0
	}
	start := l.starts[p.Line]
	end := len(l.src)
	if p.Line+1 < len(l.starts) {
		end = l.starts[p.Line+1] - 1
	}
	i, units := start, 0
	for i < end && units < p.Character {
		r, size := utf8.DecodeRune(l.src[i:end])
		if r >= 0x10000 {
			units += 2
		} else {
			units++
		}
		i += size
	}
	return i, i - start
}

var (
	_ analyzer.LanguageAnalyzer = (*Adapter)(nil)
	_ analyzer.Combined         = (*Adapter)(nil)
)
