package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lumeo-dev/lumeo/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change configuration",
	}
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigSetCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath())
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <toggle> <on|off>",
		Short: "Flip a feature toggle",
		Long: `Toggles: ocr, text-embeddings, labeling, captioning.

Toggle changes take effect on the next drive. Turning a feature off
does not erase what was already extracted; re-queue items to rebuild
them under the new settings.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath())
			if err != nil {
				return err
			}

			enabled, err := parseOnOff(args[1])
			if err != nil {
				return err
			}

			switch args[0] {
			case "ocr":
				cfg.Features.OCREnabled = enabled
			case "text-embeddings":
				cfg.Features.TextEmbeddingsEnabled = enabled
			case "labeling":
				cfg.Features.LabelingEnabled = enabled
			case "captioning":
				cfg.Features.CaptioningEnabled = enabled
			default:
				return fmt.Errorf("unknown toggle %q (ocr, text-embeddings, labeling, captioning)", args[0])
			}

			if err := cfg.Save(configPath()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", args[0], enabled)
			return nil
		},
	}
}

func parseOnOff(s string) (bool, error) {
	switch s {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("expected on or off, got %q", s)
	}
}
