package treesitter_test

import (
	"context"
	"testing"

	"github.com/0x5457/code-index/internal/parser"
	"github.com/0x5457/code-index/internal/parser/treesitter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEachLanguage(t *testing.T) {
	p := treesitter.New()
	cases := map[string]struct {
		src  string
		root string
	}{
		parser.LanguageRust:       {"fn foo() {}", "source_file"},
		parser.LanguageGo:         {"package main\nfunc main() {}\n", "source_file"},
		parser.LanguageTypeScript: {"export function add(a: number) { return a }", "program"},
		parser.LanguageTSX:        {"const el = <div>hi</div>", "program"},
	}
	for lang, tc := range cases {
		t.Run(lang, func(t *testing.T) {
			tree, err := p.Parse(context.Background(), lang, []byte(tc.src))
			require.NoError(t, err)
			defer tree.Close()
			assert.Equal(t, tc.root, tree.RootNode().Kind())
			assert.False(t, tree.RootNode().HasError())
		})
	}
}

func TestParseUnknownLanguage(t *testing.T) {
	_, err := treesitter.New().Parse(context.Background(), "cobol", []byte("x"))
	require.Error(t, err)
}

func TestDetectLanguage(t *testing.T) {
	cases := map[string]string{
		"src/lib.rs":      parser.LanguageRust,
		"cmd/main.go":     parser.LanguageGo,
		"web/app.ts":      parser.LanguageTypeScript,
		"web/App.tsx":     parser.LanguageTSX,
		"web/types.d.ts":  "",
		"README.md":       "",
		"scripts/run.MTS": parser.LanguageTypeScript,
	}
	for path, want := range cases {
		got, ok := parser.DetectLanguage(path)
		assert.Equal(t, want != "", ok, path)
		assert.Equal(t, want, got, path)
	}
}
