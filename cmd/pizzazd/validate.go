package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pizzaz/pizzazd/pkg/config"
	"github.com/pizzaz/pizzazd/pkg/logging"
	"github.com/pizzaz/pizzazd/pkg/widget"
)

var validateCmd = &cobra.Command{
	Use:   "validate [manifest]",
	Short: "Validate a widget manifest without starting the server",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		} else {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			path = cfg.ManifestPath
		}

		registry := widget.NewRegistry(path, logging.Nop())
		result, err := registry.Reload()
		if err != nil {
			return fmt.Errorf("manifest %s is invalid: %w", path, err)
		}

		fmt.Printf("manifest %s is valid: %d widgets, schema version %s\n",
			path, result.WidgetsLoaded, result.SchemaVersion)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
