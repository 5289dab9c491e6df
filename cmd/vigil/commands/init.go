package commands

import (
	"github.com/dyluth/vigil/internal/config"
	"github.com/dyluth/vigil/internal/printer"
	"github.com/dyluth/vigil/internal/scaffold"
	"github.com/spf13/cobra"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter vigil.yml for a hub",
	Long: `Write a starter hub configuration with every default spelled out.

The file is written to --config, or ./vigil.yml when no path is given.
Use --force to replace an existing file.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Replace an existing configuration file")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = config.DefaultPath
	}

	if err := scaffold.Initialize(path, forceInit); err != nil {
		if _, ok := err.(*scaffold.ErrExists); ok {
			return printer.Error(
				"configuration already exists",
				err.Error(),
				[]string{"Re-run with --force to replace it"},
			)
		}
		return printer.Error("initialization failed", err.Error(), nil)
	}

	printer.Success("Wrote %s\n", path)
	printer.Step("Start the hub:\n  vigil-hub --config %s\n", path)
	return nil
}
