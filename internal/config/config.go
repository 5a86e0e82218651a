// Package config provides configuration management for vodarr using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/jmylchreest/vodarr/pkg/duration"
)

// Default configuration values.
const (
	defaultControlPort     = 8080
	defaultTCPStreamPort   = 8081
	defaultUDPStreamPort   = 8082
	defaultRTPStreamPort   = 8083
	defaultHTTPPort        = 8084
	defaultIdleTimeout     = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second

	defaultParallelism        = 2
	defaultTranscodeQueueSize = 256

	defaultTCPBufferSize  = 16 * 1024
	defaultUDPChunkSize   = 16 * 1024
	defaultRTPPayloadSize = 1400
	defaultUDPPacing      = 50 * time.Millisecond
	defaultRTPPacing      = 40 * time.Millisecond
	defaultAcceptTimeout  = 30 * time.Second

	defaultSweepInterval = 15 * time.Second
	defaultProbeTimeout  = 15 * time.Second
)

// Config holds all configuration for both the server and the client.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Library   LibraryConfig   `mapstructure:"library"`
	Transcode TranscodeConfig `mapstructure:"transcode"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Session   SessionConfig   `mapstructure:"session"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Player    PlayerConfig    `mapstructure:"player"`
	Probe     ProbeConfig     `mapstructure:"probe"`
}

// ServerConfig holds the listener configuration. The four ports are bound
// once at startup and reused across sessions.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	AdvertiseHost   string        `mapstructure:"advertise_host"` // host placed in STREAM_READY endpoints; empty = derive from the control connection
	ControlPort     int           `mapstructure:"control_port"`
	TCPStreamPort   int           `mapstructure:"tcp_stream_port"`
	UDPStreamPort   int           `mapstructure:"udp_stream_port"`
	RTPStreamPort   int           `mapstructure:"rtp_stream_port"`
	HTTPPort        int           `mapstructure:"http_port"`
	HTTPEnabled     bool          `mapstructure:"http_enabled"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"` // control channel read timeout
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LibraryConfig holds the media library configuration.
type LibraryConfig struct {
	VideoDir      string `mapstructure:"video_dir"`
	RescanEnabled bool   `mapstructure:"rescan_enabled"`
	RescanCron    string `mapstructure:"rescan_cron"` // five-field cron expression or @every descriptor
}

// TranscodeConfig holds transcode executor configuration.
type TranscodeConfig struct {
	Parallelism int    `mapstructure:"parallelism"`
	QueueSize   int    `mapstructure:"queue_size"`
	FFmpegPath  string `mapstructure:"ffmpeg_path"` // empty = auto-detect
}

// StreamConfig holds streaming dispatcher tuning. Sizes accept
// human-readable values like "16KB".
type StreamConfig struct {
	TCPBufferSize  ByteSize      `mapstructure:"tcp_buffer_size"`
	UDPChunkSize   ByteSize      `mapstructure:"udp_chunk_size"`
	RTPPayloadSize ByteSize      `mapstructure:"rtp_payload_size"`
	UDPPacing      time.Duration `mapstructure:"udp_pacing"`
	RTPPacing      time.Duration `mapstructure:"rtp_pacing"`
	AcceptTimeout  time.Duration `mapstructure:"accept_timeout"` // how long a TCP sender waits for the receiver to dial in
}

// SessionConfig holds session registry configuration.
type SessionConfig struct {
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// PlayerConfig holds the client's media player configuration.
type PlayerConfig struct {
	Binary string `mapstructure:"binary"` // empty = auto-detect ffplay
}

// ProbeConfig holds the client's bandwidth probe configuration.
type ProbeConfig struct {
	URL     string        `mapstructure:"url"` // large object fetched to time the downlink; empty disables the probe
	Timeout time.Duration `mapstructure:"timeout"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration and are
// prefixed with VODARR_, using underscores for nesting
// (VODARR_SERVER_CONTROL_PORT=8080). The short names VIDEO_DIR,
// CONTROL_PORT, TCP_STREAM_PORT, UDP_STREAM_PORT, RTP_STREAM_PORT and
// TRANSCODE_PARALLELISM are honoured as aliases.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/vodarr")
		v.AddConfigPath("$HOME/.vodarr")
	}

	v.SetEnvPrefix("VODARR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvAliases(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// No config file is fine; defaults and env vars apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// decodeHooks builds the conversion chain for Unmarshal. Duration fields
// go through duration.Parse so config files can use extended forms like
// "2 minutes" or "30d" alongside the standard "30s". The text hook covers
// types with their own TextUnmarshaler, such as ByteSize.
func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	durationType := reflect.TypeOf(time.Duration(0))
	return mapstructure.DecodeHookFuncType(func(from, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to != durationType {
			return data, nil
		}
		return duration.Parse(data.(string))
	})
}

// bindEnvAliases binds the short environment names alongside the prefixed
// forms, so both VIDEO_DIR and VODARR_LIBRARY_VIDEO_DIR work.
func bindEnvAliases(v *viper.Viper) {
	aliases := map[string][]string{
		"library.video_dir":      {"VODARR_LIBRARY_VIDEO_DIR", "VIDEO_DIR"},
		"server.control_port":    {"VODARR_SERVER_CONTROL_PORT", "CONTROL_PORT"},
		"server.tcp_stream_port": {"VODARR_SERVER_TCP_STREAM_PORT", "TCP_STREAM_PORT"},
		"server.udp_stream_port": {"VODARR_SERVER_UDP_STREAM_PORT", "UDP_STREAM_PORT"},
		"server.rtp_stream_port": {"VODARR_SERVER_RTP_STREAM_PORT", "RTP_STREAM_PORT"},
		"transcode.parallelism":  {"VODARR_TRANSCODE_PARALLELISM", "TRANSCODE_PARALLELISM"},
	}
	for key, names := range aliases {
		// BindEnv cannot fail with a non-empty key.
		_ = v.BindEnv(append([]string{key}, names...)...)
	}
}

// SetDefaults configures default values for all configuration options.
// Called before reading the config file so defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.advertise_host", "")
	v.SetDefault("server.control_port", defaultControlPort)
	v.SetDefault("server.tcp_stream_port", defaultTCPStreamPort)
	v.SetDefault("server.udp_stream_port", defaultUDPStreamPort)
	v.SetDefault("server.rtp_stream_port", defaultRTPStreamPort)
	v.SetDefault("server.http_port", defaultHTTPPort)
	v.SetDefault("server.http_enabled", true)
	v.SetDefault("server.idle_timeout", defaultIdleTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)

	// Library defaults
	v.SetDefault("library.video_dir", "./videos")
	v.SetDefault("library.rescan_enabled", true)
	v.SetDefault("library.rescan_cron", "@every 5m")

	// Transcode defaults
	v.SetDefault("transcode.parallelism", defaultParallelism)
	v.SetDefault("transcode.queue_size", defaultTranscodeQueueSize)
	v.SetDefault("transcode.ffmpeg_path", "")

	// Stream defaults
	v.SetDefault("stream.tcp_buffer_size", defaultTCPBufferSize)
	v.SetDefault("stream.udp_chunk_size", defaultUDPChunkSize)
	v.SetDefault("stream.rtp_payload_size", defaultRTPPayloadSize)
	v.SetDefault("stream.udp_pacing", defaultUDPPacing)
	v.SetDefault("stream.rtp_pacing", defaultRTPPacing)
	v.SetDefault("stream.accept_timeout", defaultAcceptTimeout)

	// Session defaults
	v.SetDefault("session.sweep_interval", defaultSweepInterval)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Player defaults (client)
	v.SetDefault("player.binary", "")

	// Probe defaults (client)
	v.SetDefault("probe.url", "")
	v.SetDefault("probe.timeout", defaultProbeTimeout)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	ports := map[string]int{
		"server.control_port":    c.Server.ControlPort,
		"server.tcp_stream_port": c.Server.TCPStreamPort,
		"server.udp_stream_port": c.Server.UDPStreamPort,
		"server.rtp_stream_port": c.Server.RTPStreamPort,
		"server.http_port":       c.Server.HTTPPort,
	}
	seen := make(map[int]string, len(ports))
	for name, port := range ports {
		if port < 1 || port > maxPort {
			return fmt.Errorf("%s must be between 1 and %d", name, maxPort)
		}
		if other, dup := seen[port]; dup {
			return fmt.Errorf("%s and %s must not share port %d", name, other, port)
		}
		seen[port] = name
	}

	if c.Library.VideoDir == "" {
		return fmt.Errorf("library.video_dir is required")
	}

	if c.Transcode.Parallelism < 1 {
		return fmt.Errorf("transcode.parallelism must be at least 1")
	}
	if c.Transcode.QueueSize < 1 {
		return fmt.Errorf("transcode.queue_size must be at least 1")
	}

	if c.Stream.TCPBufferSize < 1 {
		return fmt.Errorf("stream.tcp_buffer_size must be positive")
	}
	if c.Stream.UDPChunkSize < 1 {
		return fmt.Errorf("stream.udp_chunk_size must be positive")
	}
	// RTP payloads above 1400 bytes risk IP fragmentation on a typical MTU.
	if c.Stream.RTPPayloadSize < 1 || c.Stream.RTPPayloadSize > 1400 {
		return fmt.Errorf("stream.rtp_payload_size must be between 1 and 1400")
	}
	if c.Stream.UDPPacing < 0 || c.Stream.RTPPacing < 0 {
		return fmt.Errorf("stream pacing intervals must not be negative")
	}

	if c.Session.SweepInterval < time.Second {
		return fmt.Errorf("session.sweep_interval must be at least 1s")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// ControlAddress returns the control listener address in host:port form.
func (c *ServerConfig) ControlAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.ControlPort)
}

// TCPStreamAddress returns the reliable stream listener address.
func (c *ServerConfig) TCPStreamAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.TCPStreamPort)
}

// UDPStreamAddress returns the datagram stream socket address.
func (c *ServerConfig) UDPStreamAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.UDPStreamPort)
}

// RTPStreamAddress returns the RTP stream socket address.
func (c *ServerConfig) RTPStreamAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.RTPStreamPort)
}

// HTTPAddress returns the status API address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// StreamPort returns the configured port for a transport token
// (tcp, udp or rtp); ok is false for anything else.
func (c *ServerConfig) StreamPort(transport string) (int, bool) {
	switch transport {
	case "tcp":
		return c.TCPStreamPort, true
	case "udp":
		return c.UDPStreamPort, true
	case "rtp":
		return c.RTPStreamPort, true
	}
	return 0, false
}
