package watcherfx

import (
	"context"

	"github.com/0x5457/code-index/internal/config"
	"github.com/0x5457/code-index/internal/ignore"
	"github.com/0x5457/code-index/internal/watcher"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params represents dependencies for the project watcher
type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.Config
	Matcher   *ignore.Matcher
	Logger    *zap.Logger
}

// NewWatcher creates an idle watcher for the configured project. It is
// stopped, releasing its lock, when the application stops.
func NewWatcher(params Params) *watcher.Watcher {
	w := watcher.New(watcher.Options{
		Root:         params.Config.ProjectRoot,
		MetadataDir:  params.Config.MetadataRel(),
		Debounce:     params.Config.Watch.Debounce,
		PollInterval: params.Config.Watch.PollInterval,
		Matcher:      params.Matcher,
		Logger:       params.Logger,
	})
	params.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			w.Stop()
			return nil
		},
	})
	return w
}

// Module provides the watcher
var Module = fx.Module("watcher",
	fx.Provide(NewWatcher),
)
