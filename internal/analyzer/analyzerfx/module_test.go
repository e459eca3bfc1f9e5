package analyzerfx

import (
	"testing"

	"github.com/0x5457/code-index/internal/analyzer"
	"github.com/0x5457/code-index/internal/analyzer/plugin"
	"github.com/0x5457/code-index/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/zap/zaptest"
)

func TestAnalyzerModule(t *testing.T) {
	cfg := config.Default()
	cfg.Analyzer.Plugins = []string{"python=.py=python3 tools/analyze.py"}

	var reg *analyzer.Registry
	app := fx.New(
		Module,
		fx.Supply(cfg, zaptest.NewLogger(t)),
		fx.Populate(&reg),
	)
	require.NoError(t, app.Err())

	assert.Equal(t, []string{"go", "python", "rust", "tsx", "typescript"}, reg.Languages())
	a, ok := reg.Get("python")
	require.True(t, ok)
	assert.IsType(t, &plugin.Adapter{}, a)
}

func TestAnalyzerModuleRejectsBadPlugin(t *testing.T) {
	cfg := config.Default()
	cfg.Analyzer.Plugins = []string{"python"}

	var reg *analyzer.Registry
	app := fx.New(
		Module,
		fx.Supply(cfg, zaptest.NewLogger(t)),
		fx.Populate(&reg),
	)
	assert.Error(t, app.Err())
}
