package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
)

func newModelsCommand() *cobra.Command {
	var refresh bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models offered by the configured backend",
		Long: `List the models offered by the configured backend.

The list is cached for catalog.ttl_minutes (and on disk when catalog.cache_dir
is set). Use --refresh to bypass the cache.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx) //nolint:errcheck

			stopSpinner := startSpinner(cmd.ErrOrStderr(), "Fetching models…")
			list, err := a.catalog.ListModels(ctx, refresh)
			stopSpinner()
			if err != nil {
				return fmt.Errorf("listing models: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			}

			if len(list) == 0 {
				fmt.Fprintln(out, "No models available.") //nolint:errcheck
				return nil
			}

			idWidth := len("ID")
			for _, m := range list {
				idWidth = max(idWidth, runewidth.StringWidth(m.ID))
			}
			idWidth += 2

			fmt.Fprintf(out, "%s%s%s\n", padRight("ID", idWidth), padRight("Owner", 20), "Created") //nolint:errcheck
			fmt.Fprintf(out, "%s\n", strings.Repeat("─", idWidth+30))                              //nolint:errcheck
			for _, m := range list {
				created := "-"
				if m.Created > 0 {
					created = time.Unix(m.Created, 0).UTC().Format(time.DateOnly)
				}
				owner := m.OwnedBy
				if owner == "" {
					owner = "-"
				}
				fmt.Fprintf(out, "%s%s%s\n", padRight(m.ID, idWidth), padRight(owner, 20), created) //nolint:errcheck
			}
			fmt.Fprintf(out, "\n%s\n", printer.Sprintf("%d model(s)", len(list))) //nolint:errcheck
			return nil
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "Bypass the model cache")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the list as JSON")

	return cmd
}
