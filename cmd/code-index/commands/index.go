package commands

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/0x5457/code-index/cmd/cmdsfx"
	"github.com/0x5457/code-index/internal/config"
	"github.com/0x5457/code-index/internal/storage/vectorindex"
	"github.com/spf13/cobra"
)

func NewIndexCommand() *cobra.Command {
	var reset bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index the project, updating only files that changed",
		RunE: func(cmd *cobra.Command, args []string) error {
			if reset {
				if err := resetIndex(cmd); err != nil {
					return err
				}
			}
			return run(cmd, func(ctx context.Context, r *cmdsfx.CommandRunner) error {
				return r.RunIndex(ctx)
			})
		},
	}

	cmd.Flags().BoolVar(&reset, "reset", false, "Discard the existing index first")

	return cmd
}

// resetIndex removes the stored index files. The watcher lock is left alone.
func resetIndex(cmd *cobra.Command) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	db := cfg.DatabasePath()
	paths := []string{
		db, db + "-wal", db + "-shm",
		cfg.EmbeddingsPath(),
		filepath.Join(cfg.MetadataPath(), vectorindex.FileName),
	}
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}
