package parser

import (
	"context"
	"path/filepath"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

const (
	LanguageRust       = "rust"
	LanguageGo         = "go"
	LanguageTypeScript = "typescript"
	LanguageTSX        = "tsx"
)

// Parser turns source text into a concrete syntax tree. Callers own the
// returned tree and must Close it.
type Parser interface {
	Parse(ctx context.Context, language string, source []byte) (*tree_sitter.Tree, error)
	Languages() []string
}

var extensions = map[string]string{
	".rs":  LanguageRust,
	".go":  LanguageGo,
	".ts":  LanguageTypeScript,
	".mts": LanguageTypeScript,
	".cts": LanguageTypeScript,
	".tsx": LanguageTSX,
}

// DetectLanguage maps a path to a language by extension. Declaration files
// (.d.ts) are skipped; they carry no implementation to index.
func DetectLanguage(path string) (string, bool) {
	if strings.HasSuffix(path, ".d.ts") {
		return "", false
	}
	lang, ok := extensions[strings.ToLower(filepath.Ext(path))]
	return lang, ok
}
