package loggingfx

import (
	"github.com/0x5457/code-index/internal/config"
	"github.com/0x5457/code-index/internal/logging"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Config *config.Config
}

func NewLogger(params Params) (*zap.Logger, error) {
	return logging.New(params.Config.Log)
}

// NewEventLogger routes fx's own events through the application logger at
// debug level.
func NewEventLogger(logger *zap.Logger) fxevent.Logger {
	l := &fxevent.ZapLogger{Logger: logger.Named("fx")}
	l.UseLogLevel(zap.DebugLevel)
	return l
}

// Module provides the logger
var Module = fx.Module("logging",
	fx.Provide(NewLogger),
)

// WithLogger must be given at the top level of an app; inside a module it
// would only cover that module's events.
var WithLogger = fx.WithLogger(NewEventLogger)
