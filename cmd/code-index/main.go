package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/0x5457/code-index/cmd/code-index/commands"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "code-index",
		Short:         "Index source code into symbols, references and embeddings",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	commands.AddConfigFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(
		commands.NewIndexCommand(),
		commands.NewSearchCommand(),
		commands.NewWatchCommand(),
		commands.NewRefsCommand(),
		commands.NewOutlineCommand(),
		commands.NewStatusCommand(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		log.Fatal(err)
	}
}
