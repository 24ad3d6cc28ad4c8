package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/indexmode/internal/config"
)

func newConfigCmd() *cobra.Command {
	var jsonOutput bool
	var pathOnly bool

	cmd := &cobra.Command{
		Use:   "config [dir]",
		Short: "Show effective configuration",
		Long: `Show the effective configuration for a project after merging all sources.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/indexmode/config.yaml)
  3. Project config (.indexmode.yaml)
  4. Environment variables (INDEXMODE_*)`,
		Example: `  # Show merged configuration for the current directory
  indexmode config

  # Show as JSON
  indexmode config --json

  # Print the user config file path
  indexmode config --path`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if pathOnly {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
				return err
			}

			dir, err := projectDir(args)
			if err != nil {
				return err
			}
			cfg, err := config.Load(dir)
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), cfg)
			}
			data, err := cfg.WriteYAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&pathOnly, "path", false, "Print the user config file path")

	return cmd
}

// projectDir resolves the optional directory argument to an absolute path.
func projectDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve project directory: %w", err)
	}
	return abs, nil
}
