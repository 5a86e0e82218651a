package session

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jmylchreest/vodarr/internal/observability"
)

var (
	// ErrSessionNotFound is returned when a session ID is unknown.
	ErrSessionNotFound = errors.New("session not found")
	// ErrPeerMismatch is returned when a disconnect arrives from a peer
	// other than the one that registered the session.
	ErrPeerMismatch = errors.New("peer does not match session registration")
	// ErrStreamActive is returned when a session tries to start a second
	// stream while one is still running. Maps to BUSY on the wire.
	ErrStreamActive = errors.New("session already has an active stream")
)

// DefaultIdleTimeout is how long a session may go without control-channel
// activity before the sweep collects it. The control server unregisters
// sessions as their connections close; the sweep is the backstop for
// connections that die without a FIN.
const DefaultIdleTimeout = 2 * time.Minute

// Registry issues client IDs and tracks active sessions.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	idleTimeout time.Duration
	logger      *slog.Logger
}

// NewRegistry creates an empty session registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		sessions:    make(map[string]*Session),
		idleTimeout: DefaultIdleTimeout,
		logger:      observability.WithComponent(logger, "session"),
	}
}

// WithIdleTimeout overrides the sweep's idle threshold.
func (r *Registry) WithIdleTimeout(d time.Duration) *Registry {
	r.idleTimeout = d
	return r
}

// Connect registers a new session for the given peer and returns it. The
// session ID is the opaque client ID handed to the peer.
func (r *Registry) Connect(peer, hostname string) *Session {
	now := time.Now()
	s := &Session{
		ID:          uuid.NewString(),
		Peer:        peer,
		Hostname:    hostname,
		ConnectedAt: now,
		lastSeen:    now,
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	r.logger.Info("client connected",
		"client_id", s.ID,
		"peer", peer,
		"hostname", hostname,
	)
	return s
}

// Get returns the session for a client ID.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Disconnect removes a session. The peer's host must match the one
// recorded at connect time; the port may differ because it is a fresh
// ephemeral port on reconnecting clients. Any active stream is aborted.
func (r *Registry) Disconnect(id, peer string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return ErrSessionNotFound
	}
	if !samePeerHost(s.Peer, peer) {
		r.mu.Unlock()
		return ErrPeerMismatch
	}
	delete(r.sessions, id)
	r.mu.Unlock()

	r.abortStream(s)
	r.logger.Info("client disconnected", "client_id", id, "peer", peer)
	return nil
}

// Remove drops a session without peer verification. Used by the control
// server when the session's own connection closes.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if ok {
		r.abortStream(s)
		r.logger.Debug("session removed", "client_id", id)
	}
}

// AttachStream binds a new stream handle to the session. Fails with
// ErrStreamActive while a previous handle is still non-terminal; the
// running stream is left untouched.
func (r *Registry) AttachStream(id string, handle *StreamHandle) error {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream != nil && !s.stream.State().IsTerminal() {
		return ErrStreamActive
	}
	s.stream = handle

	r.logger.Info("stream attached",
		"client_id", id,
		"stream_id", handle.ID,
		"entry", handle.Entry.Key().String(),
		"transport", handle.Transport,
	)
	return nil
}

// DropStream aborts the session's stream if one is running.
func (r *Registry) DropStream(id string) error {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}
	r.abortStream(s)
	return nil
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns a point-in-time view of every session.
func (r *Registry) Snapshot() []Info {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	out := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Info())
	}
	return out
}

// Sweep runs the garbage-collection loop until ctx is cancelled. Sessions
// whose control channel has been silent past the idle threshold are
// removed and their streams aborted.
func (r *Registry) Sweep(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.sweepOnce()
		}
	}
}

func (r *Registry) sweepOnce() {
	cutoff := time.Now().Add(-r.idleTimeout)

	r.mu.Lock()
	var stale []*Session
	for id, s := range r.sessions {
		if s.LastSeen().Before(cutoff) {
			delete(r.sessions, id)
			stale = append(stale, s)
		}
	}
	r.mu.Unlock()

	for _, s := range stale {
		r.abortStream(s)
		r.logger.Warn("swept idle session",
			"client_id", s.ID,
			"peer", s.Peer,
			"last_seen", s.LastSeen(),
		)
	}
}

func (r *Registry) abortStream(s *Session) {
	s.mu.RLock()
	handle := s.stream
	s.mu.RUnlock()

	if handle != nil && !handle.State().IsTerminal() {
		handle.Abort(nil, handle.Counters())
	}
}

// samePeerHost compares the host part of two peer addresses, tolerating a
// bare host without a port.
func samePeerHost(a, b string) bool {
	return peerHost(a) == peerHost(b)
}

func peerHost(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
