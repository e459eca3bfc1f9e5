package configfx

import (
	"github.com/0x5457/code-index/internal/config"
	"github.com/spf13/pflag"
	"go.uber.org/fx"
)

// Params represents the parameters needed to create configuration
type Params struct {
	fx.In

	ProjectRoot string         `name:"projectRoot" optional:"true"`
	Flags       *pflag.FlagSet `optional:"true"`
}

// NewConfig resolves and validates the configuration. A supplied project
// root wins over the flag and environment values.
func NewConfig(params Params) (*config.Config, error) {
	cfg, err := config.Load(params.Flags)
	if err != nil {
		return nil, err
	}
	cfg.SetProjectRoot(params.ProjectRoot)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Module provides configuration for the application
var Module = fx.Module("config",
	fx.Provide(NewConfig),
)
