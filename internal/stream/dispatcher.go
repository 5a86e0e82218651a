// Package stream delivers catalog files to clients over the three wire
// transports: a reliable byte stream, raw datagrams, and RTP-framed
// datagrams.
package stream

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/jmylchreest/vodarr/internal/media"
	"github.com/jmylchreest/vodarr/internal/observability"
	"github.com/jmylchreest/vodarr/internal/session"
)

// Default sender tuning. Datagram pacing approximates real-time delivery;
// it is rate shaping, not a correctness requirement.
const (
	DefaultTCPBufferSize  = 16 * 1024
	DefaultUDPChunkSize   = 16 * 1024
	DefaultRTPPayloadSize = 1400 // fits a typical MTU with the 12-byte header
	DefaultUDPPacing      = 50 * time.Millisecond
	DefaultRTPPacing      = 40 * time.Millisecond
	DefaultAcceptTimeout  = 30 * time.Second
)

// ErrNoPeerAddress is returned when a datagram transport is requested
// without a destination address.
var ErrNoPeerAddress = errors.New("datagram transport requires a peer address")

// Config holds the dispatcher's listen addresses and sender tuning.
type Config struct {
	TCPAddr string
	UDPAddr string
	RTPAddr string

	TCPBufferSize  int
	UDPChunkSize   int
	RTPPayloadSize int
	UDPPacing      time.Duration
	RTPPacing      time.Duration
	AcceptTimeout  time.Duration
}

// DefaultConfig returns a config bound to the well-known stream ports.
func DefaultConfig() Config {
	return Config{
		TCPAddr:        ":8081",
		UDPAddr:        ":8082",
		RTPAddr:        ":8083",
		TCPBufferSize:  DefaultTCPBufferSize,
		UDPChunkSize:   DefaultUDPChunkSize,
		RTPPayloadSize: DefaultRTPPayloadSize,
		UDPPacing:      DefaultUDPPacing,
		RTPPacing:      DefaultRTPPacing,
		AcceptTimeout:  DefaultAcceptTimeout,
	}
}

func (c *Config) applyDefaults() {
	if c.TCPBufferSize <= 0 {
		c.TCPBufferSize = DefaultTCPBufferSize
	}
	if c.UDPChunkSize <= 0 {
		c.UDPChunkSize = DefaultUDPChunkSize
	}
	if c.RTPPayloadSize <= 0 || c.RTPPayloadSize > DefaultRTPPayloadSize {
		c.RTPPayloadSize = DefaultRTPPayloadSize
	}
	if c.AcceptTimeout <= 0 {
		c.AcceptTimeout = DefaultAcceptTimeout
	}
}

// Dispatcher owns the three process-wide stream sockets, bound once at
// startup and reused across sessions. Each Launch runs one sender
// goroutine scoped to the stream handle's context.
type Dispatcher struct {
	cfg Config

	tcpListener *net.TCPListener
	udpConn     *net.UDPConn
	rtpConn     *net.UDPConn

	// Serializes accepts on the shared reliable listener so concurrent
	// TCP streams cannot steal each other's peer connection.
	acceptMu sync.Mutex

	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewDispatcher binds the three transport sockets. A bind failure is fatal
// to startup: the caller gets the error and any sockets bound so far are
// released.
func NewDispatcher(cfg Config, logger *slog.Logger) (*Dispatcher, error) {
	cfg.applyDefaults()

	d := &Dispatcher{
		cfg:    cfg,
		logger: observability.WithComponent(logger, "stream"),
	}

	tcpAddr, err := net.ResolveTCPAddr("tcp", cfg.TCPAddr)
	if err != nil {
		return nil, fmt.Errorf("resolving tcp stream address: %w", err)
	}
	if d.tcpListener, err = net.ListenTCP("tcp", tcpAddr); err != nil {
		return nil, fmt.Errorf("binding tcp stream port: %w", err)
	}

	if d.udpConn, err = listenUDP(cfg.UDPAddr); err != nil {
		d.tcpListener.Close()
		return nil, fmt.Errorf("binding udp stream port: %w", err)
	}

	if d.rtpConn, err = listenUDP(cfg.RTPAddr); err != nil {
		d.tcpListener.Close()
		d.udpConn.Close()
		return nil, fmt.Errorf("binding rtp stream port: %w", err)
	}

	d.logger.Info("stream transports bound",
		"tcp", d.tcpListener.Addr().String(),
		"udp", d.udpConn.LocalAddr().String(),
		"rtp", d.rtpConn.LocalAddr().String(),
	)
	return d, nil
}

func listenUDP(addr string) (*net.UDPConn, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	return net.ListenUDP("udp", udpAddr)
}

// Port returns the bound port for a transport.
func (d *Dispatcher) Port(t media.Transport) int {
	switch t {
	case media.TransportTCP:
		return d.tcpListener.Addr().(*net.TCPAddr).Port
	case media.TransportUDP:
		return d.udpConn.LocalAddr().(*net.UDPAddr).Port
	case media.TransportRTP:
		return d.rtpConn.LocalAddr().(*net.UDPAddr).Port
	}
	return 0
}

// Launch starts a sender goroutine for the handle. peer is the client's
// receive address for datagram transports and is ignored for TCP. The
// handle reaches a terminal state when the sender stops.
func (d *Dispatcher) Launch(handle *session.StreamHandle, peer *net.UDPAddr) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(handle, peer)
	}()
}

// Wait blocks until every launched sender has stopped.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close releases the transport sockets. In-flight senders are stopped by
// cancelling their handles, not by Close.
func (d *Dispatcher) Close() error {
	var errs []error
	if err := d.tcpListener.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := d.udpConn.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := d.rtpConn.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) run(handle *session.StreamHandle, peer *net.UDPAddr) {
	logger := d.logger.With(
		"stream_id", handle.ID,
		"entry", handle.Entry.Key().String(),
		"transport", handle.Transport,
	)

	start := time.Now()
	var sent sendResult
	var err error

	switch handle.Transport {
	case media.TransportTCP:
		sent, err = d.sendTCP(handle)
	case media.TransportUDP:
		sent, err = d.sendUDP(handle, peer)
	case media.TransportRTP:
		sent, err = d.sendRTP(handle, peer)
	default:
		err = fmt.Errorf("unknown transport %q", handle.Transport)
	}

	counters := makeCounters(sent, time.Since(start))

	switch {
	case err == nil:
		handle.Finish(counters)
		logger.Info("stream finished",
			"bytes", counters.BytesSent,
			"packets", counters.PacketsSent,
			"wall_time", counters.WallTime,
			"bitrate_mbps", counters.BitrateMbps,
		)
	case handle.Context().Err() != nil:
		// Cancelled by the session; not a delivery failure.
		handle.Abort(nil, counters)
		logger.Info("stream cancelled", "bytes", counters.BytesSent)
	default:
		handle.Abort(err, counters)
		logger.Error("stream aborted", "error", err, "bytes", counters.BytesSent)
	}
}

// sendResult carries the raw counts out of a sender.
type sendResult struct {
	bytes   uint64
	packets uint64
}

func makeCounters(sent sendResult, wall time.Duration) session.Counters {
	counters := session.Counters{
		BytesSent:   sent.bytes,
		PacketsSent: sent.packets,
		WallTime:    wall,
	}
	if secs := wall.Seconds(); secs > 0 {
		counters.BitrateMbps = float64(sent.bytes) * 8 / 1e6 / secs
	}
	return counters
}

// pace sleeps for the given interval or until the stream is cancelled.
// Returns false on cancellation so senders stop within one interval.
func pace(handle *session.StreamHandle, interval time.Duration) bool {
	if interval <= 0 {
		return handle.Context().Err() == nil
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-handle.Context().Done():
		return false
	case <-timer.C:
		return true
	}
}
