package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Cancel all queued items",
		Long: `Cancel marks every queued item CANCELLED. Cancelled items keep their
records and can be brought back with 'lumeo requeue'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, closeApp, err := openApp()
			if err != nil {
				return err
			}
			defer closeApp()

			n, err := app.queue.CancelQueued(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cancelled %d item(s)\n", n)
			return nil
		},
	}
}

func newRequeueCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "requeue [id]...",
		Short: "Re-queue items for a full re-index",
		Long: `Requeue resets items back to QUEUED with all derived artifacts
cleared, so every extraction stage runs again. With --all, every
non-queued item is reset.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return fmt.Errorf("provide item IDs or --all")
			}

			app, closeApp, err := openApp()
			if err != nil {
				return err
			}
			defer closeApp()

			ctx := cmd.Context()
			if all {
				n, err := app.queue.ReindexAll(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d item(s)\n", n)
				return nil
			}

			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid item ID %q", arg)
				}
				if err := app.queue.Requeue(ctx, id); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d item(s)\n", len(args))
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Re-queue every non-queued item")
	return cmd
}
