package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/vodarr/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing vodarr configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the default configuration",
	Long: `Dump the default configuration values in YAML format.

This shows all available configuration options with their default values.
You can redirect this output to a file to create a configuration template:

  vodarr config dump > config.yaml

Configuration can be set via:
  - Config file (config.yaml in ., /etc/vodarr, or $HOME/.vodarr)
  - Environment variables (VODARR_SERVER_CONTROL_PORT, VIDEO_DIR, etc.)
  - Command-line flags (for some options)

Environment variables use the VODARR_ prefix and underscores for nesting.
Example: server.control_port -> VODARR_SERVER_CONTROL_PORT`,
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

	header := []string{
		"# vodarr Configuration File",
		"# =========================",
		"#",
		"# All values shown below are defaults.",
		"# Duration format: 30s, 5m, 1h, 30d",
		"# Size format: 16KB, 1.5MB",
		"#",
		"# Environment variable overrides:",
		"#   VODARR_SERVER_HOST, VODARR_SERVER_CONTROL_PORT",
		"#   VODARR_LIBRARY_VIDEO_DIR (or VIDEO_DIR)",
		"#   VODARR_TRANSCODE_PARALLELISM (or TRANSCODE_PARALLELISM)",
		"#   VODARR_LOGGING_LEVEL, VODARR_LOGGING_FORMAT",
		"#   etc.",
		"#",
		"",
	}
	fmt.Println(strings.Join(header, "\n"))
	fmt.Print(yamlData)

	return nil
}
