package stream

import (
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/jmylchreest/vodarr/internal/session"
)

// sendTCP accepts a single peer connection on the reliable listener and
// writes the file through it. Back-pressure is the socket buffer; the
// stream ends on EOF or when the peer closes.
func (d *Dispatcher) sendTCP(handle *session.StreamHandle) (sendResult, error) {
	var sent sendResult

	file, err := os.Open(handle.Entry.Path)
	if err != nil {
		return sent, fmt.Errorf("opening source: %w", err)
	}
	defer file.Close()

	conn, err := d.acceptPeer(handle)
	if err != nil {
		return sent, err
	}
	defer conn.Close()

	handle.Activate()

	// A peer that stops draining parks the sender in Write; closing the
	// connection on cancellation unblocks it.
	copyDone := make(chan struct{})
	defer close(copyDone)
	go func() {
		select {
		case <-handle.Context().Done():
			conn.Close()
		case <-copyDone:
		}
	}()

	buf := make([]byte, d.cfg.TCPBufferSize)
	for {
		if err := handle.Context().Err(); err != nil {
			return sent, err
		}

		n, readErr := file.Read(buf)
		if n > 0 {
			if _, writeErr := conn.Write(buf[:n]); writeErr != nil {
				if ctxErr := handle.Context().Err(); ctxErr != nil {
					return sent, ctxErr
				}
				return sent, fmt.Errorf("writing to receiver: %w", writeErr)
			}
			sent.bytes += uint64(n)
			sent.packets++
		}
		if readErr == io.EOF {
			return sent, nil
		}
		if readErr != nil {
			return sent, fmt.Errorf("reading source: %w", readErr)
		}
	}
}

// acceptPeer waits for the receiver to dial in on the shared reliable
// listener. Accepts are serialized across streams; a cancellation expires
// the listener deadline so one dead stream cannot hold the listener for
// the whole accept timeout.
func (d *Dispatcher) acceptPeer(handle *session.StreamHandle) (*net.TCPConn, error) {
	d.acceptMu.Lock()
	defer d.acceptMu.Unlock()

	if err := handle.Context().Err(); err != nil {
		return nil, err
	}
	if err := d.tcpListener.SetDeadline(time.Now().Add(d.cfg.AcceptTimeout)); err != nil {
		return nil, fmt.Errorf("arming reliable listener: %w", err)
	}

	accepted := make(chan struct{})
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		select {
		case <-handle.Context().Done():
			d.tcpListener.SetDeadline(time.Now())
		case <-accepted:
		}
	}()

	conn, err := d.tcpListener.AcceptTCP()
	close(accepted)
	// The watcher must be gone before the mutex is released so its
	// deadline write cannot clobber the next stream's accept window.
	<-watcherDone

	if ctxErr := handle.Context().Err(); ctxErr != nil {
		if conn != nil {
			conn.Close()
		}
		return nil, ctxErr
	}
	if err != nil {
		return nil, fmt.Errorf("waiting for receiver: %w", err)
	}
	return conn, nil
}
