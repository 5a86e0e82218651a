package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/vodarr/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing vodarr-client configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the default configuration",
	Long: `Dump the default configuration values in YAML format.

The client reads the same configuration as the server; the probe.* and
player.* sections apply client-side. Redirect to a file to create a
template:

  vodarr-client config dump > config.yaml`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	yamlData, err := cfg.DumpYAML()
	if err != nil {
		return err
	}

	fmt.Print(yamlData)
	return nil
}
