// Package cmd provides the CLI commands for Lumeo.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lumeo-dev/lumeo/internal/logging"
)

var (
	dataDirFlag    string
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the lumeo CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lumeo",
		Short: "On-device image indexing and hybrid search",
		Long: `Lumeo indexes personal images on this machine so they can be found
later by keyword, meaning, or visual tag. Everything runs locally:
extraction, embeddings, and search never touch the network.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "Data directory (default ~/.lumeo)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(_ *cobra.Command, _ []string) {
		if loggingCleanup != nil {
			loggingCleanup()
			loggingCleanup = nil
		}
	}

	cmd.AddCommand(newImportCmd())
	cmd.AddCommand(newDriveCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newLabelsCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newPauseCmd())
	cmd.AddCommand(newResumeCmd())
	cmd.AddCommand(newCancelCmd())
	cmd.AddCommand(newRequeueCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newBackfillCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// setupLogging routes slog output to the data directory log file.
func setupLogging(_ *cobra.Command, _ []string) error {
	cleanup, err := logging.SetupDefault(dataDir(), debugMode)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	loggingCleanup = cleanup
	if debugMode {
		slog.Debug("debug logging enabled", "data_dir", dataDir())
	}
	return nil
}

// dataDir resolves the data directory from the flag or the default.
func dataDir() string {
	if dataDirFlag != "" {
		return dataDirFlag
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".lumeo")
	}
	return filepath.Join(home, ".lumeo")
}

// configPath is the config file location inside the data directory.
func configPath() string {
	return filepath.Join(dataDir(), "config.yaml")
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
