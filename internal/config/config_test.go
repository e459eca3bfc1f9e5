package config_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/0x5457/code-index/internal/config"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load(nil)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, config.ProviderLocal, cfg.Embedding.Provider)
	assert.Equal(t, "local-fixed", cfg.Embedding.Model)
	assert.Equal(t, 384, cfg.Embedding.Dimensions)
	assert.Equal(t, 32, cfg.Embedding.BatchSize)
	assert.Equal(t, ".codeindex", cfg.MetadataDir)
	assert.Equal(t, 500*time.Millisecond, cfg.Watch.Debounce)
	assert.Equal(t, 50*time.Millisecond, cfg.Watch.PollInterval)
	assert.True(t, cfg.Ignore.UseGitignore)
	assert.True(t, cfg.Ignore.UseIgnoreFile)
	assert.Equal(t, 16, cfg.Index.HNSWM)
	assert.True(t, filepath.IsAbs(cfg.ProjectRoot))
	assert.True(t, cfg.LanguageEnabled("rust"))
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("CODEINDEX_EMBEDDING_PROVIDER", "api")
	t.Setenv("CODEINDEX_EMBEDDING_DIMENSIONS", "8")
	t.Setenv("CODEINDEX_WATCH_DEBOUNCE", "2s")
	t.Setenv("CODEINDEX_LOG_LEVEL", "debug")

	cfg, err := config.Load(nil)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, config.ProviderAPI, cfg.Embedding.Provider)
	assert.Equal(t, "http://localhost:8000/embed", cfg.Embedding.APIBase)
	assert.Equal(t, 8, cfg.Embedding.Dimensions)
	assert.Equal(t, 2*time.Second, cfg.Watch.Debounce)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("CODEINDEX_EMBEDDING_DIMENSIONS", "8")
	root := t.TempDir()

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("dimensions", 0, "")
	flags.String("project", "", "")
	flags.StringSlice("languages", nil, "")
	flags.Bool("no-gitignore", false, "")
	require.NoError(t, flags.Parse([]string{"--dimensions=16", "--project", root, "--languages=Rust,go", "--no-gitignore"}))

	cfg, err := config.Load(flags)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 16, cfg.Embedding.Dimensions)
	assert.Equal(t, root, cfg.ProjectRoot)
	assert.Equal(t, filepath.Join(root, ".codeindex", "index.db"), cfg.DatabasePath())
	assert.Equal(t, filepath.Join(root, ".codeindex", "embeddings.bin"), cfg.EmbeddingsPath())
	assert.True(t, cfg.LanguageEnabled("rust"))
	assert.False(t, cfg.LanguageEnabled("typescript"))
	assert.False(t, cfg.Ignore.UseGitignore)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *config.Config){
		"provider":    func(c *config.Config) { c.Embedding.Provider = "magic" },
		"openai key":  func(c *config.Config) { c.Embedding.Provider = config.ProviderOpenAI },
		"dimensions":  func(c *config.Config) { c.Embedding.Dimensions = 0 },
		"batch":       func(c *config.Config) { c.Embedding.BatchSize = -1 },
		"file size":   func(c *config.Config) { c.Parser.MaxFileSize = 0 },
		"language":    func(c *config.Config) { c.Parser.EnabledLanguages = []string{"cobol"} },
		"hnsw":        func(c *config.Config) { c.Index.HNSWM = 1 },
		"workers":     func(c *config.Config) { c.Index.Workers = 0 },
		"debounce":    func(c *config.Config) { c.Watch.Debounce = 0 },
		"log level":   func(c *config.Config) { c.Log.Level = "loud" },
		"plugin":      func(c *config.Config) { c.Analyzer.Plugins = []string{"python"} },
		"metadata":    func(c *config.Config) { c.MetadataDir = "" },
		"hnsw search": func(c *config.Config) { c.Index.HNSWEfSearch = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := config.Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestPluginLanguagesAreValid(t *testing.T) {
	cfg := config.Default()
	cfg.Analyzer.Plugins = []string{"python=py,.pyi=/usr/local/bin/py-analyzer"}
	cfg.Parser.EnabledLanguages = []string{"python", "go"}
	require.NoError(t, cfg.Validate())

	plugins, err := cfg.PluginConfigs()
	require.NoError(t, err)
	require.Len(t, plugins, 1)
	assert.Equal(t, "python", plugins[0].Language)
	assert.Equal(t, []string{".py", ".pyi"}, plugins[0].Extensions)
	assert.Equal(t, "/usr/local/bin/py-analyzer", plugins[0].Command)
}

func TestParsePluginRejectsMissingExtensions(t *testing.T) {
	_, err := config.ParsePlugin("python==cmd")
	assert.Error(t, err)
}

func TestMetadataPaths(t *testing.T) {
	root := t.TempDir()
	cfg := config.Default()
	cfg.SetProjectRoot(root)

	assert.Equal(t, filepath.Join(root, ".codeindex"), cfg.MetadataPath())
	assert.Equal(t, ".codeindex", cfg.MetadataRel())
	assert.Equal(t, filepath.Join(root, ".codeindex", "index.db"), cfg.DatabasePath())
	assert.Equal(t, filepath.Join(root, ".codeindex", "embeddings.bin"), cfg.EmbeddingsPath())

	cfg.MetadataDir = filepath.Join(root, "state", "idx")
	assert.Equal(t, "state/idx", cfg.MetadataRel())
}

func TestPluginExtensions(t *testing.T) {
	cfg := config.Default()
	cfg.Analyzer.Plugins = []string{"python=.py,.pyi=py-analyzer", "lua=lua=lua-analyzer"}

	exts, err := cfg.PluginExtensions()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{".py": "python", ".pyi": "python", ".lua": "lua"}, exts)
}

func TestPluginsFromEnvironmentAndFlags(t *testing.T) {
	t.Setenv(config.PluginsEnv, "python=.py,.pyi=py-analyzer; lua=.lua=lua-analyzer --json")
	cfg, err := config.Load(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"python=.py,.pyi=py-analyzer", "lua=.lua=lua-analyzer --json"}, cfg.Analyzer.Plugins)

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.StringArray("plugin", nil, "")
	require.NoError(t, flags.Parse([]string{"--plugin", "ruby=.rb,.rake=rb-analyzer"}))
	cfg, err = config.Load(flags)
	require.NoError(t, err)
	assert.Equal(t, []string{"ruby=.rb,.rake=rb-analyzer"}, cfg.Analyzer.Plugins)
}
