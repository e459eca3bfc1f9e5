package commands

import (
	"context"
	"strings"

	"github.com/0x5457/code-index/cmd/cmdsfx"
	"github.com/spf13/cobra"
)

func NewSearchCommand() *cobra.Command {
	var (
		topK  int
		text  bool
		files bool
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search code: semantic (default), symbol text or file paths",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := cmdsfx.ModeSemantic
			switch {
			case files:
				mode = cmdsfx.ModeFiles
			case text:
				mode = cmdsfx.ModeText
			}
			query := strings.Join(args, " ")
			return run(cmd, func(ctx context.Context, r *cmdsfx.CommandRunner) error {
				return r.RunSearch(ctx, query, mode, topK)
			})
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 10, "Maximum number of results")
	cmd.Flags().BoolVar(&text, "text", false, "Full-text search over symbol names and docs")
	cmd.Flags().BoolVar(&files, "files", false, "Full-text search over file paths")
	cmd.MarkFlagsMutuallyExclusive("text", "files")

	return cmd
}
