package commands

import (
	"context"

	"github.com/0x5457/code-index/cmd/cmdsfx"
	"github.com/spf13/cobra"
)

func NewWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Index the project and keep the index current until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, r *cmdsfx.CommandRunner) error {
				return r.RunWatch(ctx)
			})
		},
	}
}
