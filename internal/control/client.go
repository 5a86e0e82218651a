package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/jmylchreest/vodarr/internal/media"
	"github.com/jmylchreest/vodarr/internal/observability"
)

var (
	// ErrNotFound is returned when the requested video is not in the
	// server's catalog.
	ErrNotFound = errors.New("video not found on server")
	// ErrBusy is returned when the session already has an active stream.
	ErrBusy = errors.New("session already streaming")
	// ErrNotConnected is returned when a request needs a session but
	// Connect has not been called.
	ErrNotConnected = errors.New("not connected")
)

// BadRequestError carries the server's reason for rejecting a message.
type BadRequestError struct {
	Reason string
}

func (e *BadRequestError) Error() string {
	return "bad request: " + e.Reason
}

// Client is the synchronous control-channel client. Requests and replies
// alternate on one connection; the client is not safe for concurrent use.
type Client struct {
	conn     net.Conn
	clientID string
	timeout  time.Duration
	logger   *slog.Logger
}

// Dial opens a control connection to the server.
func Dial(ctx context.Context, addr string, logger *slog.Logger) (*Client, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing control server: %w", err)
	}
	return &Client{
		conn:    conn,
		timeout: 30 * time.Second,
		logger:  observability.WithComponent(logger, "client"),
	}, nil
}

// WithTimeout overrides the per-request deadline.
func (c *Client) WithTimeout(d time.Duration) *Client {
	c.timeout = d
	return c
}

// ClientID returns the server-issued session ID, empty before Connect.
func (c *Client) ClientID() string {
	return c.clientID
}

// ServerHost returns the host part of the dialed server address.
func (c *Client) ServerHost() string {
	if host, _, err := net.SplitHostPort(c.conn.RemoteAddr().String()); err == nil {
		return host
	}
	return c.conn.RemoteAddr().String()
}

// Close closes the control connection without a DISCONNECT exchange. The
// server treats the drop as an implicit disconnect.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Connect opens a session and stores the issued client ID.
func (c *Client) Connect(ctx context.Context) (string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	msg, err := c.roundTrip(ctx, KindConnect, ConnectRequest{
		Hostname: hostname,
		TS:       time.Now().Unix(),
	})
	if err != nil {
		return "", err
	}
	if msg.Kind != KindConnected {
		return "", c.unexpected(msg, KindConnected)
	}

	reply, err := DecodeBody[ConnectedReply](msg)
	if err != nil {
		return "", err
	}
	c.clientID = reply.ClientID
	c.logger.Debug("connected", "client_id", c.clientID)
	return c.clientID, nil
}

// ListContainers asks the server which containers are available.
func (c *Client) ListContainers(ctx context.Context) ([]media.Container, error) {
	msg, err := c.roundTrip(ctx, KindListContainers, nil)
	if err != nil {
		return nil, err
	}
	if msg.Kind != KindContainers {
		return nil, c.unexpected(msg, KindContainers)
	}

	reply, err := DecodeBody[ContainersReply](msg)
	if err != nil {
		return nil, err
	}
	return reply.Containers, nil
}

// ListVideos asks for the catalog filtered by container and the client's
// measured downlink.
func (c *Client) ListVideos(ctx context.Context, container media.Container, bandwidthMbps float64) ([]VideoInfo, error) {
	msg, err := c.roundTrip(ctx, KindListVideos, ListVideosRequest{
		Container:     string(container),
		BandwidthMbps: bandwidthMbps,
	})
	if err != nil {
		return nil, err
	}
	if msg.Kind != KindVideos {
		return nil, c.unexpected(msg, KindVideos)
	}

	reply, err := DecodeBody[VideosReply](msg)
	if err != nil {
		return nil, err
	}
	return reply.Videos, nil
}

// StartStream asks the server to push a video. port is the local receive
// port for datagram transports. Returns the endpoint the receiver should
// use.
func (c *Client) StartStream(ctx context.Context, title string, resolution media.Resolution, container media.Container, transport media.Transport, port int) (string, error) {
	if c.clientID == "" {
		return "", ErrNotConnected
	}

	msg, err := c.roundTrip(ctx, KindStartStream, StartStreamRequest{
		Title:      title,
		Resolution: string(resolution),
		Container:  string(container),
		Transport:  string(transport),
		Port:       port,
	})
	if err != nil {
		return "", err
	}

	switch msg.Kind {
	case KindStreamReady:
		reply, err := DecodeBody[StreamReadyReply](msg)
		if err != nil {
			return "", err
		}
		return reply.Endpoint, nil
	case KindNotFound:
		return "", ErrNotFound
	case KindBusy:
		return "", ErrBusy
	default:
		return "", c.unexpected(msg, KindStreamReady)
	}
}

// Disconnect ends the session. The connection remains usable for a new
// Connect.
func (c *Client) Disconnect(ctx context.Context) error {
	if c.clientID == "" {
		return ErrNotConnected
	}

	msg, err := c.roundTrip(ctx, KindDisconnect, DisconnectRequest{ClientID: c.clientID})
	if err != nil {
		return err
	}
	if msg.Kind != KindOK {
		return c.unexpected(msg, KindOK)
	}
	c.clientID = ""
	return nil
}

// roundTrip sends one request and reads one reply.
func (c *Client) roundTrip(ctx context.Context, kind Kind, body any) (Message, error) {
	data, err := Encode(kind, body)
	if err != nil {
		return Message{}, err
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return Message{}, err
	}

	if err := WriteFrame(c.conn, data); err != nil {
		return Message{}, fmt.Errorf("sending %s: %w", kind, err)
	}

	reply, err := ReadFrame(c.conn)
	if err != nil {
		return Message{}, fmt.Errorf("reading %s reply: %w", kind, err)
	}
	return Decode(reply)
}

// unexpected turns an unanticipated reply into an error, surfacing the
// server's BAD_REQUEST reason when present.
func (c *Client) unexpected(msg Message, want Kind) error {
	if msg.Kind == KindBadRequest {
		reply, err := DecodeBody[BadRequestReply](msg)
		if err == nil {
			return &BadRequestError{Reason: reply.Reason}
		}
	}
	return fmt.Errorf("expected %s reply, got %s", want, msg.Kind)
}
