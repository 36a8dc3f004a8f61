package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// ANSI colors, used only when stdout is a terminal.
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show index and queue status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, closeApp, err := openApp()
			if err != nil {
				return err
			}
			defer closeApp()

			ctx := cmd.Context()
			counts, err := app.store.Counts(ctx)
			if err != nil {
				return err
			}
			paused, err := app.queue.Paused(ctx)
			if err != nil {
				return err
			}

			color := isatty.IsTerminal(os.Stdout.Fd())
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "Indexed:   %s\n", colorize(fmt.Sprintf("%d", counts.Indexed), colorGreen, color))
			fmt.Fprintf(out, "Queued:    %s\n", colorize(fmt.Sprintf("%d", counts.Queued), colorYellow, color))
			fmt.Fprintf(out, "Failed:    %s\n", colorize(fmt.Sprintf("%d", counts.Failed), colorRed, color))
			fmt.Fprintf(out, "Cancelled: %d\n", counts.Cancelled)

			if paused {
				fmt.Fprintf(out, "Ingestion: %s\n", colorize("paused", colorYellow, color))
			} else {
				fmt.Fprintln(out, "Ingestion: active")
			}

			if last, ok := app.queue.LastRun(ctx); ok {
				fmt.Fprintf(out, "Last run:  %s\n", last.Format(time.RFC3339))
			} else {
				fmt.Fprintln(out, "Last run:  never")
			}

			fmt.Fprintf(out, "Captioning available: %v\n", app.gate.Available())
			return nil
		},
	}
}

func colorize(s, color string, enabled bool) string {
	if !enabled {
		return s
	}
	return color + s + colorReset
}
