// Package player launches the external media player against a stream
// endpoint and picks a transport when the user did not.
package player

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os/exec"
	"strconv"

	"github.com/jmylchreest/vodarr/internal/media"
	"github.com/jmylchreest/vodarr/internal/observability"
	"github.com/jmylchreest/vodarr/internal/util"
)

// rtpProtocolWhitelist is required by ffplay to open rtp:// URLs.
const rtpProtocolWhitelist = "file,rtp,udp"

// ChooseTransport picks the delivery mode for an entry when the user left
// it unset: low resolutions ride the reliable stream, mid resolutions
// plain datagrams, high resolutions RTP.
func ChooseTransport(r media.Resolution) media.Transport {
	return media.TransportForResolution(r)
}

// RandomLocalPort reserves a free UDP port for the receiver by binding an
// ephemeral socket and releasing it. The small race against another
// process grabbing the port before the player does is accepted.
func RandomLocalPort() (int, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return 0, fmt.Errorf("reserving local port: %w", err)
	}
	port := conn.LocalAddr().(*net.UDPAddr).Port
	if err := conn.Close(); err != nil {
		return 0, err
	}
	return port, nil
}

// ReceiverURL builds the input URL the player opens for a stream
// endpoint. For datagram transports the server pushes to localPort, so
// the URL carries it as the localport query parameter.
func ReceiverURL(endpoint string, localPort int) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parsing stream endpoint: %w", err)
	}

	switch u.Scheme {
	case string(media.TransportTCP):
		return u.String(), nil
	case string(media.TransportUDP), string(media.TransportRTP):
		if localPort <= 0 {
			return "", fmt.Errorf("transport %s requires a local port", u.Scheme)
		}
		q := u.Query()
		q.Set("localport", strconv.Itoa(localPort))
		u.RawQuery = q.Encode()
		return u.String(), nil
	default:
		return "", fmt.Errorf("unknown stream endpoint scheme %q", u.Scheme)
	}
}

// Player runs the external media pipeline (ffplay by default) against a
// receiver URL.
type Player struct {
	binary string
	logger *slog.Logger
}

// New creates a player. binary may be empty to auto-detect ffplay from
// the environment or PATH.
func New(binary string, logger *slog.Logger) (*Player, error) {
	if binary == "" {
		found, err := util.FindBinary("ffplay", "VODARR_FFPLAY_BINARY")
		if err != nil {
			return nil, fmt.Errorf("player binary: %w", err)
		}
		binary = found
	}
	return &Player{
		binary: binary,
		logger: observability.WithComponent(logger, "player"),
	}, nil
}

// Binary returns the resolved player binary path.
func (p *Player) Binary() string {
	return p.binary
}

// Args builds the player invocation for a receiver URL. RTP input needs
// an explicit protocol whitelist before ffplay will touch it.
func (p *Player) Args(receiverURL string, transport media.Transport) []string {
	args := []string{"-loglevel", "error", "-autoexit"}
	if transport == media.TransportRTP {
		args = append(args, "-protocol_whitelist", rtpProtocolWhitelist)
	}
	return append(args, receiverURL)
}

// Play runs the player until the stream ends or ctx is cancelled. The
// child's exit code propagates the stream state: a non-zero exit is
// returned as the *exec.ExitError.
func (p *Player) Play(ctx context.Context, receiverURL string, transport media.Transport) error {
	args := p.Args(receiverURL, transport)
	p.logger.Info("starting player",
		"binary", p.binary,
		"url", receiverURL,
		"transport", transport,
	)

	cmd := exec.CommandContext(ctx, p.binary, args...)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("player exited: %w", err)
	}
	return nil
}
