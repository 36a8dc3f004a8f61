package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lumeo-dev/lumeo/internal/watcher"
)

func newImportCmd() *cobra.Command {
	var drive bool

	cmd := &cobra.Command{
		Use:   "import <path>...",
		Short: "Add images or directories to the indexing queue",
		Long: `Import enqueues images for indexing. Directories are walked
recursively; unsupported files are skipped. Importing an already-known
image is a no-op.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closeApp, err := openApp()
			if err != nil {
				return err
			}
			defer closeApp()

			ctx := cmd.Context()
			added := 0
			for _, arg := range args {
				path, err := filepath.Abs(arg)
				if err != nil {
					return err
				}
				info, err := os.Stat(path)
				if err != nil {
					return err
				}

				if info.IsDir() {
					err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
						if err != nil {
							return err
						}
						if d.IsDir() || !watcher.Supported(p) {
							return nil
						}
						n, err := enqueueFile(cmd, app, p)
						added += n
						return err
					})
					if err != nil {
						return err
					}
					continue
				}

				if !watcher.Supported(path) {
					return fmt.Errorf("unsupported file type: %s", path)
				}
				n, err := enqueueFile(cmd, app, path)
				if err != nil {
					return err
				}
				added += n
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Enqueued %d item(s)\n", added)

			if drive {
				_, err := app.queue.Drive(ctx)
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&drive, "drive", false, "Drain the queue immediately after importing")
	return cmd
}

// enqueueFile adds one file to the queue, returning 1 if it was new.
func enqueueFile(cmd *cobra.Command, app *app, path string) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}

	_, created, err := app.queue.Enqueue(cmd.Context(), path, info.ModTime())
	if err != nil {
		return 0, err
	}
	if !created {
		return 0, nil
	}
	return 1, nil
}
