package commands

import (
	"context"
	"fmt"

	"github.com/0x5457/code-index/cmd/cmdsfx"
	"github.com/0x5457/code-index/internal/app/appfx"
	"github.com/0x5457/code-index/internal/constants"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/fx"
)

// AddConfigFlags registers the flags shared by every command. Their names
// are the ones config.Load binds.
func AddConfigFlags(fs *pflag.FlagSet) {
	fs.StringP("project", "p", ".", "Path to project root")
	fs.String("metadata-dir", constants.DefaultMetadataDir, "Index directory, relative to the project root")
	fs.String("embed-provider", "local", "Embedding provider: local, api or openai")
	fs.String("embed-model", "", "Embedding model name")
	fs.String("embed-url", "", "Embedding API base URL")
	fs.String("embed-api-key", "", "Embedding API key")
	fs.Int("dimensions", constants.DefaultDimensions, "Embedding dimensions")
	fs.Int("batch-size", constants.DefaultBatchSize, "Texts per embedding request")
	fs.Int64("max-file-size", constants.DefaultMaxFileSize, "Skip files larger than this many bytes")
	fs.StringSlice("languages", nil, "Only index these languages")
	fs.StringArray("plugin", nil, "External analyzer as language=.ext[,.ext]=command")
	fs.Int("workers", constants.DefaultWorkers, "Files indexed concurrently")
	fs.StringSlice("ignore", nil, "Extra gitignore-style patterns to exclude")
	fs.Bool("no-gitignore", false, "Do not apply .gitignore files")
	fs.Duration("debounce", constants.DefaultDebounce, "Quiet period before a batch of changes is indexed")
	fs.Duration("poll-interval", constants.DefaultPollInterval, "Watcher tick interval")
	fs.String("log-level", "info", "Log level")
	fs.Bool("log-development", false, "Human-friendly log output")
	fs.Int("hnsw-m", 16, "HNSW neighbours per node")
	fs.Int("hnsw-ef-construction", 200, "HNSW candidate list size while building")
	fs.Int("hnsw-ef-search", 64, "HNSW candidate list size while searching")
}

// run starts the application, hands the runner to fn and stops the
// application again.
func run(cmd *cobra.Command, fn func(ctx context.Context, runner *cmdsfx.CommandRunner) error) error {
	var runner *cmdsfx.CommandRunner
	app := appfx.NewApp("", cmd.Flags(), fx.Populate(&runner))

	ctx := cmd.Context()
	startCtx, cancel := context.WithTimeout(ctx, fx.DefaultTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	runErr := fn(ctx, runner)

	stopCtx, cancel := context.WithTimeout(context.Background(), fx.DefaultTimeout)
	defer cancel()
	if err := app.Stop(stopCtx); err != nil && runErr == nil {
		return fmt.Errorf("failed to stop application: %w", err)
	}
	return runErr
}
