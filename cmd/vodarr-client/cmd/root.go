// Package cmd implements the CLI commands for the vodarr streaming client.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/vodarr/internal/config"
	"github.com/jmylchreest/vodarr/internal/control"
	"github.com/jmylchreest/vodarr/internal/observability"
	"github.com/jmylchreest/vodarr/internal/probe"
	"github.com/jmylchreest/vodarr/internal/version"
	"github.com/jmylchreest/vodarr/pkg/format"
)

// cfgFile holds the config file path from CLI flag.
var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "vodarr-client",
	Short:   "Streaming client for a vodarr server",
	Version: version.Short(),
	Long: `vodarr-client connects to a vodarr server, measures the downlink
bandwidth, and plays videos at the resolution the connection can sustain.

240p arrives over TCP, 360p and 480p over UDP, 720p and 1080p over RTP.`,
	// PersistentPreRunE is set in init() to avoid initialization cycle
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Ctrl-C cancels the command context so an in-flight
// stream or player shuts down cleanly.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		return initLogging()
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ., /etc/vodarr, $HOME/.vodarr)")
	rootCmd.PersistentFlags().String("server", "localhost:8080", "vodarr server control address")
	rootCmd.PersistentFlags().Float64("bandwidth", 0, "downlink bandwidth in Mbps; skips the probe when set")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/vodarr")
		viper.AddConfigPath("$HOME/.vodarr")
	}

	viper.SetEnvPrefix("VODARR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	_ = viper.ReadInConfig()
}

// initLogging configures the slog logger. The client defaults to quiet
// text output so logs don't mix with command output.
func initLogging() error {
	level := viper.GetString("logging.level")
	logFormat := "text"

	if rootCmd.PersistentFlags().Changed("log-level") {
		level, _ = rootCmd.PersistentFlags().GetString("log-level")
	} else if level == "" || level == "info" {
		level = "warn"
	}
	if rootCmd.PersistentFlags().Changed("log-format") {
		logFormat, _ = rootCmd.PersistentFlags().GetString("log-format")
	}

	logCfg := config.LoggingConfig{
		Level:  strings.ToLower(level),
		Format: strings.ToLower(logFormat),
	}
	if logCfg.Level == "warning" {
		logCfg.Level = "warn"
	}

	logger := observability.NewLoggerWithWriter(logCfg, os.Stderr)
	observability.SetDefault(logger)

	return nil
}

// serverAddr returns the control address from the --server flag.
func serverAddr() string {
	addr, _ := rootCmd.PersistentFlags().GetString("server")
	return addr
}

// dialServer connects to the server and performs the CONNECT handshake.
func dialServer(ctx context.Context, logger *slog.Logger) (*control.Client, error) {
	client, err := control.Dial(ctx, serverAddr(), logger)
	if err != nil {
		return nil, fmt.Errorf("dialing server: %w", err)
	}
	if _, err := client.Connect(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting session: %w", err)
	}
	return client, nil
}

// resolveBandwidth determines the downlink bandwidth in Mbps.
//
// Priority: --bandwidth flag, then a timed download of the configured
// probe URL. With neither available, -1 is returned: the resolution
// policy treats unknown bandwidth as its 480p default.
func resolveBandwidth(ctx context.Context, logger *slog.Logger) float64 {
	if rootCmd.PersistentFlags().Changed("bandwidth") {
		mbps, _ := rootCmd.PersistentFlags().GetFloat64("bandwidth")
		return mbps
	}

	url := viper.GetString("probe.url")
	if url == "" {
		logger.Warn("no bandwidth flag or probe url configured, using default resolution")
		return -1
	}

	prober := probe.New(url, viper.GetDuration("probe.timeout"), logger)
	result, err := prober.Measure(ctx)
	if err != nil {
		logger.Warn("bandwidth probe failed, using default resolution", "error", err)
		return -1
	}

	fmt.Fprintf(os.Stderr, "measured downlink: %.1f Mbps (%s in %s)\n",
		result.Mbps, format.Bytes(result.Bytes), result.Duration.Round(10*time.Millisecond))
	return result.Mbps
}
