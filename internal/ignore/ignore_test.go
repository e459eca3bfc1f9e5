package ignore_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/0x5457/code-index/internal/config"
	"github.com/0x5457/code-index/internal/ignore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func allOn() config.IgnoreConfig {
	return config.IgnoreConfig{UseGitignore: true, UseIgnoreFile: true}
}

func TestAlwaysIgnored(t *testing.T) {
	m, err := ignore.New(t.TempDir(), config.IgnoreConfig{}, ".codeindex")
	require.NoError(t, err)
	assert.True(t, m.Match(".git", true))
	assert.True(t, m.Match(".git/HEAD", false))
	assert.True(t, m.Match(".codeindex/index.db", false))
	assert.True(t, m.Match("vendor/x/.git/config", false))
	assert.False(t, m.Match("src/main.rs", false))
	assert.False(t, m.Match(".", true))
}

func TestRootGitignore(t *testing.T) {
	root := t.TempDir()
	write(t, root, ".gitignore", "target/\n*.log\n!keep.log\n")
	m, err := ignore.New(root, allOn(), ".codeindex")
	require.NoError(t, err)

	assert.True(t, m.Match("target", true))
	assert.True(t, m.Match("target/debug/app.rs", false))
	assert.True(t, m.Match("logs/today.log", false))
	assert.False(t, m.Match("src/lib.rs", false))
}

func TestNestedGitignore(t *testing.T) {
	root := t.TempDir()
	write(t, root, "web/.gitignore", "dist\n")
	m, err := ignore.New(root, allOn(), ".codeindex")
	require.NoError(t, err)

	assert.True(t, m.Match("web/dist/app.ts", false))
	assert.False(t, m.Match("dist/app.ts", false))
}

func TestGitignoreDisabled(t *testing.T) {
	root := t.TempDir()
	write(t, root, ".gitignore", "*.rs\n")
	m, err := ignore.New(root, config.IgnoreConfig{UseIgnoreFile: true}, ".codeindex")
	require.NoError(t, err)
	assert.False(t, m.Match("a.rs", false))
}

func TestPatternsAndIgnoreFile(t *testing.T) {
	root := t.TempDir()
	write(t, root, ".codeindexignore", "fixtures/\n")
	cfg := allOn()
	cfg.Patterns = []string{"*_gen.go"}
	m, err := ignore.New(root, cfg, ".codeindex")
	require.NoError(t, err)

	assert.True(t, m.Match("pkg/api_gen.go", false))
	assert.True(t, m.Match("testdata/fixtures/a.ts", false))
	assert.False(t, m.Match("pkg/api.go", false))
}

func TestInvalidateReloadsRules(t *testing.T) {
	root := t.TempDir()
	m, err := ignore.New(root, allOn(), ".codeindex")
	require.NoError(t, err)
	assert.False(t, m.Match("tmp/a.go", false))

	write(t, root, ".gitignore", "tmp/\n")
	assert.False(t, m.Match("tmp/a.go", false), "rules are cached until invalidated")
	require.NoError(t, m.Invalidate(".gitignore"))
	assert.True(t, m.Match("tmp/a.go", false))

	write(t, root, ".codeindexignore", "*.go\n")
	require.NoError(t, m.Invalidate(".codeindexignore"))
	assert.True(t, m.Match("main.go", false))

	assert.True(t, ignore.IsRuleFile("sub/.gitignore"))
	assert.False(t, ignore.IsRuleFile("main.go"))
}
