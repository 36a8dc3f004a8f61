package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lumeo-dev/lumeo/internal/queue"
)

func newDriveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drive",
		Short: "Drain the indexing queue",
		Long: `Drive processes every queued item through the extraction pipeline in
FIFO order. If ingestion is paused, nothing happens and the command
reports that a retry is needed. Interrupted items resume from their
last completed stage on the next drive.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, closeApp, err := openApp()
			if err != nil {
				return err
			}
			defer closeApp()

			outcome, err := app.queue.Drive(cmd.Context())
			if err != nil {
				return err
			}

			switch outcome {
			case queue.OutcomeCompleted:
				fmt.Fprintln(cmd.OutOrStdout(), "Queue drained")
			case queue.OutcomeRetry:
				fmt.Fprintln(cmd.OutOrStdout(), "Drive deferred (paused or interrupted); run again to continue")
			}
			return nil
		},
	}
}
