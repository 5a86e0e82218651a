package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTestConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ControlPort:   8080,
			TCPStreamPort: 8081,
			UDPStreamPort: 8082,
			RTPStreamPort: 8083,
			HTTPPort:      8084,
		},
		Library:   LibraryConfig{VideoDir: "./videos"},
		Transcode: TranscodeConfig{Parallelism: 2, QueueSize: 256},
		Stream: StreamConfig{
			TCPBufferSize:  16 * 1024,
			UDPChunkSize:   16 * 1024,
			RTPPayloadSize: 1400,
			UDPPacing:      50 * time.Millisecond,
			RTPPacing:      40 * time.Millisecond,
		},
		Session: SessionConfig{SweepInterval: 15 * time.Second},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.ControlPort)
	assert.Equal(t, 8081, cfg.Server.TCPStreamPort)
	assert.Equal(t, 8082, cfg.Server.UDPStreamPort)
	assert.Equal(t, 8083, cfg.Server.RTPStreamPort)
	assert.Equal(t, 30*time.Second, cfg.Server.IdleTimeout)

	assert.Equal(t, "./videos", cfg.Library.VideoDir)
	assert.True(t, cfg.Library.RescanEnabled)

	assert.Equal(t, 2, cfg.Transcode.Parallelism)

	assert.Equal(t, int64(16*1024), cfg.Stream.TCPBufferSize.Bytes())
	assert.Equal(t, int64(16*1024), cfg.Stream.UDPChunkSize.Bytes())
	assert.Equal(t, int64(1400), cfg.Stream.RTPPayloadSize.Bytes())
	assert.Equal(t, 50*time.Millisecond, cfg.Stream.UDPPacing)
	assert.Equal(t, 40*time.Millisecond, cfg.Stream.RTPPacing)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_FromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  host: "127.0.0.1"
  control_port: 9090
  tcp_stream_port: 9091
  udp_stream_port: 9092
  rtp_stream_port: 9093

library:
  video_dir: "/srv/videos"

transcode:
  parallelism: 4

stream:
  udp_chunk_size: "32KB"
  udp_pacing: 25ms

logging:
  level: "debug"
  format: "text"
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.ControlPort)
	assert.Equal(t, "/srv/videos", cfg.Library.VideoDir)
	assert.Equal(t, 4, cfg.Transcode.Parallelism)
	assert.Equal(t, int64(32*1024), cfg.Stream.UDPChunkSize.Bytes())
	assert.Equal(t, 25*time.Millisecond, cfg.Stream.UDPPacing)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoad_ExtendedDurationForms(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  idle_timeout: "2 minutes"

session:
  sweep_interval: "45 seconds"

probe:
  timeout: 90s
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Minute, cfg.Server.IdleTimeout)
	assert.Equal(t, 45*time.Second, cfg.Session.SweepInterval)
	assert.Equal(t, 90*time.Second, cfg.Probe.Timeout)
}

func TestLoad_EnvAliases(t *testing.T) {
	t.Setenv("VIDEO_DIR", "/mnt/media")
	t.Setenv("CONTROL_PORT", "7070")
	t.Setenv("TCP_STREAM_PORT", "7071")
	t.Setenv("UDP_STREAM_PORT", "7072")
	t.Setenv("RTP_STREAM_PORT", "7073")
	t.Setenv("TRANSCODE_PARALLELISM", "3")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/mnt/media", cfg.Library.VideoDir)
	assert.Equal(t, 7070, cfg.Server.ControlPort)
	assert.Equal(t, 7071, cfg.Server.TCPStreamPort)
	assert.Equal(t, 7072, cfg.Server.UDPStreamPort)
	assert.Equal(t, 7073, cfg.Server.RTPStreamPort)
	assert.Equal(t, 3, cfg.Transcode.Parallelism)
}

func TestLoad_PrefixedEnv(t *testing.T) {
	t.Setenv("VODARR_SERVER_CONTROL_PORT", "6060")
	t.Setenv("VODARR_LOGGING_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 6060, cfg.Server.ControlPort)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"control port too low", func(c *Config) { c.Server.ControlPort = 0 }, "server.control_port"},
		{"control port too high", func(c *Config) { c.Server.ControlPort = 70000 }, "server.control_port"},
		{"duplicate ports", func(c *Config) { c.Server.UDPStreamPort = c.Server.TCPStreamPort }, "must not share port"},
		{"missing video dir", func(c *Config) { c.Library.VideoDir = "" }, "library.video_dir"},
		{"zero parallelism", func(c *Config) { c.Transcode.Parallelism = 0 }, "transcode.parallelism"},
		{"rtp payload above mtu", func(c *Config) { c.Stream.RTPPayloadSize = 1500 }, "rtp_payload_size"},
		{"negative pacing", func(c *Config) { c.Stream.UDPPacing = -time.Millisecond }, "pacing"},
		{"sweep too short", func(c *Config) { c.Session.SweepInterval = 100 * time.Millisecond }, "session.sweep_interval"},
		{"bad level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestServerAddresses(t *testing.T) {
	sc := &ServerConfig{
		Host:          "0.0.0.0",
		ControlPort:   8080,
		TCPStreamPort: 8081,
		UDPStreamPort: 8082,
		RTPStreamPort: 8083,
		HTTPPort:      8084,
	}

	assert.Equal(t, "0.0.0.0:8080", sc.ControlAddress())
	assert.Equal(t, "0.0.0.0:8081", sc.TCPStreamAddress())
	assert.Equal(t, "0.0.0.0:8082", sc.UDPStreamAddress())
	assert.Equal(t, "0.0.0.0:8083", sc.RTPStreamAddress())
	assert.Equal(t, "0.0.0.0:8084", sc.HTTPAddress())
}

func TestStreamPort(t *testing.T) {
	sc := &ServerConfig{TCPStreamPort: 8081, UDPStreamPort: 8082, RTPStreamPort: 8083}

	port, ok := sc.StreamPort("tcp")
	require.True(t, ok)
	assert.Equal(t, 8081, port)

	port, ok = sc.StreamPort("udp")
	require.True(t, ok)
	assert.Equal(t, 8082, port)

	port, ok = sc.StreamPort("rtp")
	require.True(t, ok)
	assert.Equal(t, 8083, port)

	_, ok = sc.StreamPort("quic")
	assert.False(t, ok)
}
