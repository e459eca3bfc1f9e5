package parserfx

import (
	"github.com/0x5457/code-index/internal/parser"
	"github.com/0x5457/code-index/internal/parser/treesitter"
	"go.uber.org/fx"
)

// NewParser creates the tree-sitter parser for the built-in grammars
func NewParser() parser.Parser {
	return treesitter.New()
}

// Module provides parser components
var Module = fx.Module("parser",
	fx.Provide(NewParser),
)
