package ignorefx

import (
	"github.com/0x5457/code-index/internal/config"
	"github.com/0x5457/code-index/internal/ignore"
	"go.uber.org/fx"
)

// NewMatcher builds the ignore rules for the configured project
func NewMatcher(cfg *config.Config) (*ignore.Matcher, error) {
	return ignore.New(cfg.ProjectRoot, cfg.Ignore, cfg.MetadataRel())
}

// Module provides the shared ignore matcher
var Module = fx.Module("ignore",
	fx.Provide(NewMatcher),
)
