package commands

import (
	"context"

	"github.com/0x5457/code-index/cmd/cmdsfx"
	"github.com/spf13/cobra"
)

func NewRefsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "refs [symbol]",
		Short: "List references to a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, r *cmdsfx.CommandRunner) error {
				return r.RunRefs(ctx, args[0])
			})
		},
	}
}

func NewOutlineCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "outline [file]",
		Short: "Print the symbol tree of an indexed file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, r *cmdsfx.CommandRunner) error {
				return r.RunOutline(ctx, args[0])
			})
		},
	}
}

func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show index statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, r *cmdsfx.CommandRunner) error {
				return r.RunStatus(ctx)
			})
		},
	}
}
