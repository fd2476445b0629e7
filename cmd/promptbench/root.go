package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spboyer/promptbench/internal/projectconfig"
	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "promptbench",
		Short: "promptbench - run prompts against many models at once",
		Long: `promptbench renders a prompt template, sends it to several language models
concurrently and streams each result as it completes.

Completed results can be graded by a validator model against a fixed rubric
and an optional JSON schema.`,
		Version:      version,
		SilenceUsage: true,
	}

	debugLogging := cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if *debugLogging {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}

		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getting working directory: %w", err)
		}
		return projectconfig.LoadEnv(wd)
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newRPCCommand())
	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newModelsCommand())

	return cmd
}

func execute() error {
	rootCmd := newRootCommand()
	return rootCmd.Execute()
}
