// Package session tracks connected clients and their active streams.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/vodarr/internal/media"
)

// StreamState is the lifecycle state of a stream handle.
type StreamState string

const (
	StreamSetup    StreamState = "setup"
	StreamActive   StreamState = "active"
	StreamFinished StreamState = "finished"
	StreamAborted  StreamState = "aborted"
)

// IsTerminal reports whether the state is final.
func (s StreamState) IsTerminal() bool {
	return s == StreamFinished || s == StreamAborted
}

// Counters accumulates per-stream delivery statistics. A sender publishes
// them into the handle when it stops.
type Counters struct {
	BytesSent   uint64        `json:"bytes_sent"`
	PacketsSent uint64        `json:"packets_sent"`
	WallTime    time.Duration `json:"wall_time"`
	BitrateMbps float64       `json:"bitrate_mbps"`
}

// StreamHandle represents one delivery of one entry to one client. The
// handle owns the cancellation context its sender runs under: aborting the
// handle cancels the sender, which observes it within one pacing interval.
type StreamHandle struct {
	ID        string          `json:"id"`
	Entry     media.Entry     `json:"entry"`
	Transport media.Transport `json:"transport"`
	StartedAt time.Time       `json:"started_at"`

	mu       sync.RWMutex
	state    StreamState
	counters Counters
	err      error

	ctx    context.Context
	cancel context.CancelFunc
}

// NewStreamHandle creates a handle in the setup state. The sender's
// lifetime is bounded by parent: closing the session or shutting the
// server down cancels every stream it spawned.
func NewStreamHandle(parent context.Context, entry media.Entry, transport media.Transport) *StreamHandle {
	ctx, cancel := context.WithCancel(parent)
	return &StreamHandle{
		ID:        ulid.Make().String(),
		Entry:     entry,
		Transport: transport,
		StartedAt: time.Now(),
		state:     StreamSetup,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Context returns the cancellation context the sender must observe.
func (h *StreamHandle) Context() context.Context {
	return h.ctx
}

// State returns the current lifecycle state.
func (h *StreamHandle) State() StreamState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Counters returns the published delivery statistics.
func (h *StreamHandle) Counters() Counters {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.counters
}

// Err returns the failure that aborted the stream, if any.
func (h *StreamHandle) Err() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.err
}

// Activate moves the handle from setup to active. Activating a handle that
// was already aborted is a no-op so a cancelled sender cannot resurrect it.
func (h *StreamHandle) Activate() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == StreamSetup {
		h.state = StreamActive
	}
}

// Finish marks the stream complete and publishes its counters.
func (h *StreamHandle) Finish(counters Counters) {
	h.mu.Lock()
	if !h.state.IsTerminal() {
		h.state = StreamFinished
		h.counters = counters
	}
	h.mu.Unlock()
	h.cancel()
}

// Abort cancels the stream. The first call wins on state and error; err
// may be nil for a deliberate cancellation. A registry teardown aborts
// the handle before the sender has published anything, so a later Abort
// carrying more delivered bytes or packets still replaces the counters.
func (h *StreamHandle) Abort(err error, counters Counters) {
	h.mu.Lock()
	switch {
	case !h.state.IsTerminal():
		h.state = StreamAborted
		h.counters = counters
		h.err = err
	case h.state == StreamAborted &&
		(counters.BytesSent > h.counters.BytesSent || counters.PacketsSent > h.counters.PacketsSent):
		h.counters = counters
	}
	h.mu.Unlock()
	h.cancel()
}

// Info returns a point-in-time copy for the status API.
func (h *StreamHandle) Info() StreamInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return StreamInfo{
		ID:         h.ID,
		Title:      h.Entry.Title,
		Resolution: h.Entry.Resolution,
		Container:  h.Entry.Container,
		Transport:  h.Transport,
		State:      h.state,
		StartedAt:  h.StartedAt,
		Counters:   h.counters,
	}
}

// StreamInfo is the read-only view of a stream handle.
type StreamInfo struct {
	ID         string           `json:"id"`
	Title      string           `json:"title"`
	Resolution media.Resolution `json:"resolution"`
	Container  media.Container  `json:"container"`
	Transport  media.Transport  `json:"transport"`
	State      StreamState      `json:"state"`
	StartedAt  time.Time        `json:"started_at"`
	Counters   Counters         `json:"counters"`
}

// Session is one connected client. At most one non-terminal stream handle
// exists per session at any time.
type Session struct {
	ID          string    `json:"id"`
	Peer        string    `json:"peer"`
	Hostname    string    `json:"hostname"`
	ConnectedAt time.Time `json:"connected_at"`

	mu       sync.RWMutex
	stream   *StreamHandle
	lastSeen time.Time
}

// Touch records control-channel activity for the registry's sweep.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// LastSeen returns the time of the most recent control-channel activity.
func (s *Session) LastSeen() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}

// Stream returns the session's current stream handle, which may be
// terminal or nil.
func (s *Session) Stream() *StreamHandle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stream
}

// Info returns a point-in-time copy for the status API.
func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info := Info{
		ID:          s.ID,
		Peer:        s.Peer,
		Hostname:    s.Hostname,
		ConnectedAt: s.ConnectedAt,
	}
	if s.stream != nil {
		streamInfo := s.stream.Info()
		info.Stream = &streamInfo
	}
	return info
}

// Info is the read-only view of a session.
type Info struct {
	ID          string      `json:"id"`
	Peer        string      `json:"peer"`
	Hostname    string      `json:"hostname"`
	ConnectedAt time.Time   `json:"connected_at"`
	Stream      *StreamInfo `json:"stream,omitempty"`
}
