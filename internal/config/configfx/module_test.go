package configfx

import (
	"context"
	"testing"

	"github.com/0x5457/code-index/internal/config"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
)

func TestConfigModule(t *testing.T) {
	root := t.TempDir()
	var cfg *config.Config
	app := fx.New(
		Module,
		fx.Supply(
			fx.Annotate(root, fx.ResultTags(`name:"projectRoot"`)),
		),
		fx.Populate(&cfg),
	)

	ctx := context.Background()
	require.NoError(t, app.Start(ctx))
	defer func() {
		require.NoError(t, app.Stop(ctx))
	}()

	require.NotNil(t, cfg)
	assert.Equal(t, root, cfg.ProjectRoot)
	assert.Equal(t, config.ProviderLocal, cfg.Embedding.Provider)
}

func TestConfigModuleBindsFlags(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("embed-provider", "", "")
	require.NoError(t, flags.Parse([]string{"--embed-provider=api"}))

	var cfg *config.Config
	app := fx.New(
		Module,
		fx.Supply(flags),
		fx.Populate(&cfg),
	)
	require.NoError(t, app.Err())
	assert.Equal(t, config.ProviderAPI, cfg.Embedding.Provider)
	assert.Equal(t, "http://localhost:8000/embed", cfg.Embedding.APIBase)
}

func TestConfigModuleRejectsInvalid(t *testing.T) {
	t.Setenv("CODEINDEX_EMBEDDING_PROVIDER", "magic")
	var cfg *config.Config
	app := fx.New(
		Module,
		fx.Populate(&cfg),
	)
	assert.Error(t, app.Err())
}
