package appfx

import (
	"github.com/0x5457/code-index/cmd/cmdsfx"
	"github.com/0x5457/code-index/internal/analyzer/analyzerfx"
	"github.com/0x5457/code-index/internal/config/configfx"
	"github.com/0x5457/code-index/internal/embeddings/embeddingsfx"
	"github.com/0x5457/code-index/internal/ignore/ignorefx"
	"github.com/0x5457/code-index/internal/indexer/indexerfx"
	"github.com/0x5457/code-index/internal/logging/loggingfx"
	"github.com/0x5457/code-index/internal/parser/parserfx"
	"github.com/0x5457/code-index/internal/search/searchfx"
	"github.com/0x5457/code-index/internal/storage/storagefx"
	"github.com/0x5457/code-index/internal/watcher/watcherfx"
	"github.com/spf13/pflag"
	"go.uber.org/fx"
)

// Module combines all application modules
var Module = fx.Options(
	configfx.Module,
	loggingfx.Module,
	parserfx.Module,
	analyzerfx.Module,
	embeddingsfx.Module,
	storagefx.Module,
	ignorefx.Module,
	searchfx.Module,
	indexerfx.Module,
	watcherfx.Module,
	cmdsfx.Module,
)

// NewApp creates an Fx app for the project at root. flags may be nil; root
// may be empty to use the configured project.
func NewApp(root string, flags *pflag.FlagSet, opts ...fx.Option) *fx.App {
	options := []fx.Option{
		Module,
		loggingfx.WithLogger,
		fx.Supply(fx.Annotate(root, fx.ResultTags(`name:"projectRoot"`))),
	}
	if flags != nil {
		options = append(options, fx.Supply(flags))
	}
	return fx.New(append(options, opts...)...)
}
