package player

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/vodarr/internal/media"
)

func TestChooseTransport(t *testing.T) {
	tests := []struct {
		resolution media.Resolution
		want       media.Transport
	}{
		{media.Resolution240p, media.TransportTCP},
		{media.Resolution360p, media.TransportUDP},
		{media.Resolution480p, media.TransportUDP},
		{media.Resolution720p, media.TransportRTP},
		{media.Resolution1080p, media.TransportRTP},
	}
	for _, tt := range tests {
		t.Run(string(tt.resolution), func(t *testing.T) {
			assert.Equal(t, tt.want, ChooseTransport(tt.resolution))
		})
	}
}

func TestReceiverURL(t *testing.T) {
	tests := []struct {
		name      string
		endpoint  string
		localPort int
		want      string
		wantErr   bool
	}{
		{
			name:     "tcp ignores local port",
			endpoint: "tcp://192.0.2.1:8081",
			want:     "tcp://192.0.2.1:8081",
		},
		{
			name:      "udp carries localport",
			endpoint:  "udp://192.0.2.1:8082",
			localPort: 41000,
			want:      "udp://192.0.2.1:8082?localport=41000",
		},
		{
			name:      "rtp carries localport",
			endpoint:  "rtp://192.0.2.1:8083",
			localPort: 41001,
			want:      "rtp://192.0.2.1:8083?localport=41001",
		},
		{
			name:     "udp without local port fails",
			endpoint: "udp://192.0.2.1:8082",
			wantErr:  true,
		},
		{
			name:     "unknown scheme fails",
			endpoint: "ftp://192.0.2.1:21",
			wantErr:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReceiverURL(tt.endpoint, tt.localPort)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRandomLocalPort(t *testing.T) {
	port, err := RandomLocalPort()
	require.NoError(t, err)
	assert.Greater(t, port, 0)
	assert.LessOrEqual(t, port, 65535)
}

func TestPlayer_ArgsIncludeWhitelistForRTP(t *testing.T) {
	p := &Player{binary: "/usr/bin/ffplay", logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	args := p.Args("rtp://192.0.2.1:8083?localport=41001", media.TransportRTP)
	assert.Contains(t, args, "-protocol_whitelist")
	assert.Contains(t, args, "file,rtp,udp")
	assert.Equal(t, "rtp://192.0.2.1:8083?localport=41001", args[len(args)-1])

	args = p.Args("tcp://192.0.2.1:8081", media.TransportTCP)
	assert.NotContains(t, args, "-protocol_whitelist")
}
