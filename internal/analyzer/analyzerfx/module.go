package analyzerfx

import (
	"fmt"
	"strings"

	"github.com/0x5457/code-index/internal/analyzer"
	"github.com/0x5457/code-index/internal/analyzer/plugin"
	"github.com/0x5457/code-index/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params represents dependencies for the analyzer registry
type Params struct {
	fx.In

	Config *config.Config
	Logger *zap.Logger
}

// NewRegistry registers the built-in analyzers and one adapter per
// configured plugin. A plugin may replace a built-in language.
func NewRegistry(params Params) (*analyzer.Registry, error) {
	reg := analyzer.NewRegistry(analyzer.NativeAnalyzers()...)
	plugins, err := params.Config.PluginConfigs()
	if err != nil {
		return nil, err
	}
	for _, p := range plugins {
		argv := strings.Fields(p.Command)
		if len(argv) == 0 {
			return nil, fmt.Errorf("plugin %s: empty command", p.Language)
		}
		transport := &plugin.ExecTransport{
			Command: argv[0],
			Args:    argv[1:],
			Dir:     params.Config.ProjectRoot,
			Timeout: params.Config.Analyzer.PluginTimeout,
		}
		reg.Register(plugin.New(p.Language, transport, params.Logger))
		params.Logger.Debug("plugin registered",
			zap.String("language", p.Language),
			zap.Strings("extensions", p.Extensions),
			zap.String("command", p.Command))
	}
	return reg, nil
}

// Module provides the analyzer registry
var Module = fx.Module("analyzer",
	fx.Provide(NewRegistry),
)
