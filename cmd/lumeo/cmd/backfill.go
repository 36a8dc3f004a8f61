package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lumeo-dev/lumeo/internal/caption"
)

func newBackfillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backfill-captions",
		Short: "Caption already-indexed images that have no description",
		Long: `When captioning is enabled after a library was indexed without it,
backfill visits every indexed item missing a description and captions
it. Requires the caption model to be available.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, closeApp, err := openApp()
			if err != nil {
				return err
			}
			defer closeApp()

			if !app.gate.Available() {
				return fmt.Errorf("caption model unavailable; set caption.model_path in %s", configPath())
			}

			backfill := caption.NewBackfill(app.store, app.decoder, app.gate, app.embedder)
			backfill.Start(cmd.Context())
			if err := backfill.Wait(); err != nil {
				return err
			}

			snap := backfill.Progress().Snapshot()
			fmt.Fprintf(cmd.OutOrStdout(), "Visited %d item(s), captioned %d\n", snap.Completed, snap.Captioned)
			return nil
		},
	}
}
