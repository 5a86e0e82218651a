package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/jmylchreest/vodarr/internal/library"
	"github.com/jmylchreest/vodarr/internal/media"
	"github.com/jmylchreest/vodarr/internal/observability"
	"github.com/jmylchreest/vodarr/internal/session"
	"github.com/jmylchreest/vodarr/internal/stream"
)

// DefaultIdleTimeout is the control channel read timeout. A client silent
// for longer is considered dead and its session torn down.
const DefaultIdleTimeout = 30 * time.Second

const writeTimeout = 10 * time.Second

// ServerConfig holds the control listener configuration.
type ServerConfig struct {
	// Addr is the control listen address.
	Addr string
	// AdvertiseHost overrides the host placed in STREAM_READY endpoints.
	// Empty means the local address of the connection the client dialed.
	AdvertiseHost string
	// IdleTimeout is the per-read deadline on the control channel.
	IdleTimeout time.Duration
}

// Server accepts control connections and serves the request/reply
// protocol, one goroutine per client. Responses preserve request order
// within a connection.
type Server struct {
	cfg        ServerConfig
	catalog    *library.Catalog
	registry   *session.Registry
	dispatcher *stream.Dispatcher
	logger     *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
}

// NewServer creates a control server. Call Listen before Serve to surface
// bind failures at startup.
func NewServer(cfg ServerConfig, catalog *library.Catalog, registry *session.Registry, dispatcher *stream.Dispatcher, logger *slog.Logger) *Server {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	return &Server{
		cfg:        cfg,
		catalog:    catalog,
		registry:   registry,
		dispatcher: dispatcher,
		conns:      make(map[net.Conn]struct{}),
		logger:     observability.WithComponent(logger, "control"),
	}
}

// Listen binds the control port.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("binding control port: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("control server listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until ctx is cancelled. It binds the listener
// if Listen was not called first.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
		s.mu.Lock()
		ln = s.listener
		s.mu.Unlock()
	}

	go func() {
		<-ctx.Done()
		ln.Close()
		s.closeConns()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.wg.Wait()
				return ctx.Err()
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}

		s.trackConn(conn, true)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.trackConn(conn, false)
			s.handleConn(ctx, conn)
		}()
	}
}

func (s *Server) trackConn(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

func (s *Server) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.Close()
	}
}

// handleConn runs the frame loop for one client. When the connection goes
// away, for any reason, the client's session is removed and its active
// stream aborted.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	peer := conn.RemoteAddr().String()
	logger := s.logger.With("peer", peer)
	logger.Debug("control connection opened")

	var sess *session.Session
	defer func() {
		if sess != nil {
			s.registry.Remove(sess.ID)
			logger.Info("control connection closed, session removed", "client_id", sess.ID)
		} else {
			logger.Debug("control connection closed")
		}
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout)); err != nil {
			return
		}

		body, err := ReadFrame(conn)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				logger.Debug("control read ended", "error", err)
			}
			return
		}

		if sess != nil {
			sess.Touch()
		}

		msg, err := Decode(body)
		if err != nil {
			if werr := s.reply(conn, KindBadRequest, BadRequestReply{Reason: err.Error()}); werr != nil {
				return
			}
			continue
		}

		reply, replyBody := s.dispatch(ctx, conn, &sess, msg)
		if err := s.reply(conn, reply, replyBody); err != nil {
			logger.Warn("failed to write reply", "kind", reply, "error", err)
			return
		}
	}
}

// dispatch handles one decoded message and returns the reply to send.
// Protocol-level errors come back as BAD_REQUEST; the channel stays open.
func (s *Server) dispatch(ctx context.Context, conn net.Conn, sess **session.Session, msg Message) (Kind, any) {
	switch msg.Kind {
	case KindConnect:
		req, err := DecodeBody[ConnectRequest](msg)
		if err != nil {
			return KindBadRequest, BadRequestReply{Reason: err.Error()}
		}
		if *sess != nil {
			return KindBadRequest, BadRequestReply{Reason: "already connected"}
		}
		*sess = s.registry.Connect(conn.RemoteAddr().String(), req.Hostname)
		return KindConnected, ConnectedReply{ClientID: (*sess).ID}

	case KindListContainers:
		return KindContainers, ContainersReply{Containers: s.catalog.ListContainers()}

	case KindListVideos:
		req, err := DecodeBody[ListVideosRequest](msg)
		if err != nil {
			return KindBadRequest, BadRequestReply{Reason: err.Error()}
		}
		container, ok := media.ParseContainer(req.Container)
		if !ok {
			return KindBadRequest, BadRequestReply{Reason: fmt.Sprintf("unknown container %q", req.Container)}
		}
		entries := s.catalog.ListVideos(container, req.BandwidthMbps)
		videos := make([]VideoInfo, 0, len(entries))
		for _, e := range entries {
			videos = append(videos, VideoInfo{
				Title:      e.Title,
				Resolution: e.Resolution,
				Container:  e.Container,
				URL:        "file://" + e.Path,
			})
		}
		return KindVideos, VideosReply{Videos: videos}

	case KindStartStream:
		return s.startStream(ctx, conn, *sess, msg)

	case KindDisconnect:
		req, err := DecodeBody[DisconnectRequest](msg)
		if err != nil {
			return KindBadRequest, BadRequestReply{Reason: err.Error()}
		}
		if err := s.registry.Disconnect(req.ClientID, conn.RemoteAddr().String()); err != nil {
			return KindBadRequest, BadRequestReply{Reason: err.Error()}
		}
		if *sess != nil && (*sess).ID == req.ClientID {
			*sess = nil
		}
		return KindOK, nil

	default:
		return KindBadRequest, BadRequestReply{Reason: fmt.Sprintf("unknown message kind %q", msg.Kind)}
	}
}

// startStream validates a START_STREAM request, attaches a stream handle
// to the session and hands it to the dispatcher.
func (s *Server) startStream(ctx context.Context, conn net.Conn, sess *session.Session, msg Message) (Kind, any) {
	if sess == nil {
		return KindBadRequest, BadRequestReply{Reason: "not connected"}
	}

	req, err := DecodeBody[StartStreamRequest](msg)
	if err != nil {
		return KindBadRequest, BadRequestReply{Reason: err.Error()}
	}

	resolution, ok := media.ParseResolution(req.Resolution)
	if !ok {
		return KindBadRequest, BadRequestReply{Reason: fmt.Sprintf("unknown resolution %q", req.Resolution)}
	}
	container, ok := media.ParseContainer(req.Container)
	if !ok {
		return KindBadRequest, BadRequestReply{Reason: fmt.Sprintf("unknown container %q", req.Container)}
	}
	transport, ok := media.ParseTransport(req.Transport)
	if !ok {
		return KindBadRequest, BadRequestReply{Reason: fmt.Sprintf("unknown transport %q", req.Transport)}
	}

	entry, err := s.catalog.Lookup(req.Title, resolution, container)
	if err != nil {
		return KindNotFound, nil
	}

	var peer *net.UDPAddr
	if transport == media.TransportUDP || transport == media.TransportRTP {
		if req.Port <= 0 {
			return KindBadRequest, BadRequestReply{Reason: "datagram transport requires a receive port"}
		}
		host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
		if err != nil {
			return KindBadRequest, BadRequestReply{Reason: "cannot resolve peer address"}
		}
		ip := net.ParseIP(host)
		if ip == nil {
			return KindBadRequest, BadRequestReply{Reason: "cannot resolve peer address"}
		}
		peer = &net.UDPAddr{IP: ip, Port: req.Port}
	}

	handle := session.NewStreamHandle(ctx, entry, transport)
	if err := s.registry.AttachStream(sess.ID, handle); err != nil {
		if errors.Is(err, session.ErrStreamActive) {
			return KindBusy, nil
		}
		return KindBadRequest, BadRequestReply{Reason: err.Error()}
	}

	s.dispatcher.Launch(handle, peer)

	endpoint := fmt.Sprintf("%s://%s:%d", transport, s.endpointHost(conn), s.dispatcher.Port(transport))
	return KindStreamReady, StreamReadyReply{Endpoint: endpoint}
}

// endpointHost picks the host clients should use to reach the stream
// ports: the configured advertise host, or the address this client
// already dialed successfully.
func (s *Server) endpointHost(conn net.Conn) string {
	if s.cfg.AdvertiseHost != "" {
		return s.cfg.AdvertiseHost
	}
	if host, _, err := net.SplitHostPort(conn.LocalAddr().String()); err == nil {
		return host
	}
	return "localhost"
}

func (s *Server) reply(conn net.Conn, kind Kind, body any) error {
	data, err := Encode(kind, body)
	if err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return WriteFrame(conn, data)
}
