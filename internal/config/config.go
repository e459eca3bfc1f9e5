// Package config resolves code-index settings from defaults, CODEINDEX_*
// environment variables and command-line flags, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/0x5457/code-index/internal/constants"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

const EnvPrefix = "CODEINDEX"

// PluginsEnv holds plugin entries separated by semicolons.
const PluginsEnv = EnvPrefix + "_ANALYZER_PLUGINS"

// Embedding providers.
const (
	ProviderLocal  = "local"
	ProviderAPI    = "api"
	ProviderOpenAI = "openai"
)

// KnownLanguages are the languages with a built-in analyzer.
var KnownLanguages = []string{"go", "rust", "tsx", "typescript"}

type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
	BatchSize  int    `mapstructure:"batch_size"`
	APIKey     string `mapstructure:"api_key"`
	APIBase    string `mapstructure:"api_base"`
}

type ParserConfig struct {
	MaxFileSize      int64    `mapstructure:"max_file_size"`
	EnabledLanguages []string `mapstructure:"enabled_languages"`
}

type AnalyzerConfig struct {
	// Plugins are "language=.ext1,.ext2=command" entries.
	Plugins       []string      `mapstructure:"plugins"`
	PluginTimeout time.Duration `mapstructure:"plugin_timeout"`
}

type IndexConfig struct {
	HNSWM              int `mapstructure:"hnsw_m"`
	HNSWEfConstruction int `mapstructure:"hnsw_ef_construction"`
	HNSWEfSearch       int `mapstructure:"hnsw_ef_search"`
	Workers            int `mapstructure:"workers"`
}

type IgnoreConfig struct {
	Patterns      []string `mapstructure:"patterns"`
	UseGitignore  bool     `mapstructure:"use_gitignore"`
	UseIgnoreFile bool     `mapstructure:"use_ignore_file"`
}

type WatchConfig struct {
	Debounce     time.Duration `mapstructure:"debounce"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type Config struct {
	ProjectRoot string          `mapstructure:"project_root"`
	MetadataDir string          `mapstructure:"metadata_dir"`
	Embedding   EmbeddingConfig `mapstructure:"embedding"`
	Parser      ParserConfig    `mapstructure:"parser"`
	Analyzer    AnalyzerConfig  `mapstructure:"analyzer"`
	Index       IndexConfig     `mapstructure:"index"`
	Ignore      IgnoreConfig    `mapstructure:"ignore"`
	Watch       WatchConfig     `mapstructure:"watch"`
	Log         LogConfig       `mapstructure:"log"`
}

// PluginConfig describes one external analyzer.
type PluginConfig struct {
	Language   string
	Extensions []string
	Command    string
}

// flagKeys maps flag names onto configuration keys.
var flagKeys = map[string]string{
	"project":              "project_root",
	"metadata-dir":         "metadata_dir",
	"embed-provider":       "embedding.provider",
	"embed-model":          "embedding.model",
	"embed-url":            "embedding.api_base",
	"embed-api-key":        "embedding.api_key",
	"dimensions":           "embedding.dimensions",
	"batch-size":           "embedding.batch_size",
	"max-file-size":        "parser.max_file_size",
	"languages":            "parser.enabled_languages",
	"workers":              "index.workers",
	"ignore":               "ignore.patterns",
	"debounce":             "watch.debounce",
	"poll-interval":        "watch.poll_interval",
	"log-level":            "log.level",
	"log-development":      "log.development",
	"hnsw-m":               "index.hnsw_m",
	"hnsw-ef-construction": "index.hnsw_ef_construction",
	"hnsw-ef-search":       "index.hnsw_ef_search",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("project_root", ".")
	v.SetDefault("metadata_dir", constants.DefaultMetadataDir)

	v.SetDefault("embedding.provider", ProviderLocal)
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.dimensions", constants.DefaultDimensions)
	v.SetDefault("embedding.batch_size", constants.DefaultBatchSize)
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.api_base", "")

	v.SetDefault("parser.max_file_size", int64(constants.DefaultMaxFileSize))
	v.SetDefault("parser.enabled_languages", []string{})

	v.SetDefault("analyzer.plugin_timeout", constants.DefaultPluginTimeout)

	v.SetDefault("index.hnsw_m", 16)
	v.SetDefault("index.hnsw_ef_construction", 200)
	v.SetDefault("index.hnsw_ef_search", 64)
	v.SetDefault("index.workers", constants.DefaultWorkers)

	v.SetDefault("ignore.patterns", []string{})
	v.SetDefault("ignore.use_gitignore", true)
	v.SetDefault("ignore.use_ignore_file", true)

	v.SetDefault("watch.debounce", constants.DefaultDebounce)
	v.SetDefault("watch.poll_interval", constants.DefaultPollInterval)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Default returns the configuration with no environment or flags applied.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	cfg.applyDerived()
	return &cfg
}

// Load resolves the configuration. flags may be nil; only flags that exist
// in the set are bound.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
		if f := flags.Lookup("no-gitignore"); f != nil && f.Changed {
			v.Set("ignore.use_gitignore", f.Value.String() != "true")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	// Plugin entries contain commas, so they bypass viper's list splitting.
	cfg.Analyzer.Plugins = splitPlugins(os.Getenv(PluginsEnv))
	if flags != nil {
		if f := flags.Lookup("plugin"); f != nil && f.Changed {
			entries, err := flags.GetStringArray("plugin")
			if err != nil {
				return nil, fmt.Errorf("read flag plugin: %w", err)
			}
			cfg.Analyzer.Plugins = entries
		}
	}
	cfg.applyDerived()
	return &cfg, nil
}

func (c *Config) applyDerived() {
	if c.Embedding.Model == "" {
		switch c.Embedding.Provider {
		case ProviderOpenAI:
			c.Embedding.Model = constants.DefaultOpenAIModel
		case ProviderLocal:
			c.Embedding.Model = constants.DefaultLocalModel
		}
	}
	if c.Embedding.APIBase == "" && c.Embedding.Provider == ProviderAPI {
		c.Embedding.APIBase = constants.DefaultEmbedURL
	}
	for i, l := range c.Parser.EnabledLanguages {
		c.Parser.EnabledLanguages[i] = strings.ToLower(strings.TrimSpace(l))
	}
	if abs, err := filepath.Abs(c.ProjectRoot); err == nil {
		c.ProjectRoot = abs
	}
}

// MetadataPath is the directory holding the database, embeddings and
// vector index.
func (c *Config) MetadataPath() string {
	if filepath.IsAbs(c.MetadataDir) {
		return c.MetadataDir
	}
	return filepath.Join(c.ProjectRoot, c.MetadataDir)
}

// MetadataRel is MetadataPath relative to the project root, slash-separated.
func (c *Config) MetadataRel() string {
	rel, err := filepath.Rel(c.ProjectRoot, c.MetadataPath())
	if err != nil {
		return filepath.ToSlash(c.MetadataDir)
	}
	return filepath.ToSlash(rel)
}

// PluginExtensions maps the file extensions claimed by plugins to their
// languages.
func (c *Config) PluginExtensions() (map[string]string, error) {
	plugins, err := c.PluginConfigs()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	for _, p := range plugins {
		for _, ext := range p.Extensions {
			out[ext] = p.Language
		}
	}
	return out, nil
}

func (c *Config) DatabasePath() string {
	return filepath.Join(c.MetadataPath(), constants.DatabaseFile)
}

func (c *Config) EmbeddingsPath() string {
	return filepath.Join(c.MetadataPath(), constants.EmbeddingsFile)
}

// LanguageEnabled reports whether files of language should be indexed.
// An empty enabled list allows everything.
func (c *Config) LanguageEnabled(language string) bool {
	return len(c.Parser.EnabledLanguages) == 0 || slices.Contains(c.Parser.EnabledLanguages, language)
}

func splitPlugins(s string) []string {
	out := []string{}
	for _, entry := range strings.Split(s, ";") {
		if entry = strings.TrimSpace(entry); entry != "" {
			out = append(out, entry)
		}
	}
	return out
}

// PluginConfigs parses the configured plugin entries.
func (c *Config) PluginConfigs() ([]PluginConfig, error) {
	out := make([]PluginConfig, 0, len(c.Analyzer.Plugins))
	for _, entry := range c.Analyzer.Plugins {
		p, err := ParsePlugin(entry)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// ParsePlugin parses "language=.ext1,.ext2=command".
func ParsePlugin(entry string) (PluginConfig, error) {
	parts := strings.SplitN(strings.TrimSpace(entry), "=", 3)
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return PluginConfig{}, fmt.Errorf("invalid plugin %q: want language=.ext[,.ext]=command", entry)
	}
	p := PluginConfig{Language: strings.ToLower(parts[0]), Command: parts[2]}
	for _, ext := range strings.Split(parts[1], ",") {
		ext = strings.TrimSpace(ext)
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		p.Extensions = append(p.Extensions, strings.ToLower(ext))
	}
	if len(p.Extensions) == 0 {
		return PluginConfig{}, fmt.Errorf("invalid plugin %q: no extensions", entry)
	}
	return p, nil
}

// Validate rejects values the indexer cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Embedding.Provider {
	case ProviderLocal, ProviderAPI:
	case ProviderOpenAI:
		if c.Embedding.APIKey == "" {
			errs = append(errs, errors.New("embedding.api_key is required for the openai provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown embedding.provider %q", c.Embedding.Provider))
	}
	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, errors.New("embedding.dimensions must be positive"))
	}
	if c.Embedding.BatchSize <= 0 {
		errs = append(errs, errors.New("embedding.batch_size must be positive"))
	}
	if c.Parser.MaxFileSize <= 0 {
		errs = append(errs, errors.New("parser.max_file_size must be positive"))
	}
	plugins, err := c.PluginConfigs()
	if err != nil {
		errs = append(errs, err)
	}
	for _, l := range c.Parser.EnabledLanguages {
		known := slices.Contains(KnownLanguages, l) || slices.ContainsFunc(plugins, func(p PluginConfig) bool {
			return p.Language == l
		})
		if !known {
			errs = append(errs, fmt.Errorf("parser.enabled_languages: unknown language %q", l))
		}
	}
	if c.Index.HNSWM < 2 {
		errs = append(errs, errors.New("index.hnsw_m must be at least 2"))
	}
	if c.Index.HNSWEfConstruction <= 0 || c.Index.HNSWEfSearch <= 0 {
		errs = append(errs, errors.New("index.hnsw_ef_construction and index.hnsw_ef_search must be positive"))
	}
	if c.Index.Workers <= 0 {
		errs = append(errs, errors.New("index.workers must be positive"))
	}
	if c.Watch.Debounce <= 0 || c.Watch.PollInterval <= 0 {
		errs = append(errs, errors.New("watch.debounce and watch.poll_interval must be positive"))
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.MetadataDir == "" {
		errs = append(errs, errors.New("metadata_dir cannot be empty"))
	}
	return errors.Join(errs...)
}

// SetProjectRoot points the configuration at root, made absolute.
func (c *Config) SetProjectRoot(root string) {
	if root == "" {
		return
	}
	c.ProjectRoot = root
	if abs, err := filepath.Abs(root); err == nil {
		c.ProjectRoot = abs
	}
}
