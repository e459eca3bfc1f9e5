package treesitter

import (
	"context"
	"fmt"
	"sort"

	"github.com/0x5457/code-index/internal/parser"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tsgo "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tsrust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tstypes "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// Parser holds one grammar per language. tree-sitter parsers are not safe
// for concurrent use, so each Parse call builds its own.
type Parser struct {
	languages map[string]*tree_sitter.Language
}

func New() *Parser {
	return &Parser{languages: map[string]*tree_sitter.Language{
		parser.LanguageRust:       tree_sitter.NewLanguage(tsrust.Language()),
		parser.LanguageGo:         tree_sitter.NewLanguage(tsgo.Language()),
		parser.LanguageTypeScript: tree_sitter.NewLanguage(tstypes.LanguageTypescript()),
		parser.LanguageTSX:        tree_sitter.NewLanguage(tstypes.LanguageTSX()),
	}}
}

func (p *Parser) Languages() []string {
	out := make([]string, 0, len(p.languages))
	for l := range p.languages {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

func (p *Parser) Parse(ctx context.Context, language string, source []byte) (*tree_sitter.Tree, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lang, ok := p.languages[language]
	if !ok {
		return nil, fmt.Errorf("no grammar for language %q", language)
	}
	tsParser := tree_sitter.NewParser()
	defer tsParser.Close()
	if err := tsParser.SetLanguage(lang); err != nil {
		return nil, err
	}
	tree := tsParser.Parse(source, nil)
	if tree == nil {
		return nil, fmt.Errorf("parse %s source failed", language)
	}
	return tree, nil
}

var _ parser.Parser = (*Parser)(nil)
