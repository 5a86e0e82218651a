package stream

import (
	"fmt"
	"io"
	"net"
	"os"

	"github.com/jmylchreest/vodarr/internal/session"
)

// sendUDP reads the file in fixed chunks and sends each as one datagram
// to the peer, pacing between datagrams to approximate real-time
// delivery. Losses are accepted and never retried.
func (d *Dispatcher) sendUDP(handle *session.StreamHandle, peer *net.UDPAddr) (sendResult, error) {
	var sent sendResult

	if peer == nil {
		return sent, ErrNoPeerAddress
	}

	file, err := os.Open(handle.Entry.Path)
	if err != nil {
		return sent, fmt.Errorf("opening source: %w", err)
	}
	defer file.Close()

	handle.Activate()

	buf := make([]byte, d.cfg.UDPChunkSize)
	for {
		if err := handle.Context().Err(); err != nil {
			return sent, err
		}

		n, readErr := file.Read(buf)
		if n > 0 {
			if _, writeErr := d.udpConn.WriteToUDP(buf[:n], peer); writeErr != nil {
				return sent, fmt.Errorf("sending datagram: %w", writeErr)
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

		if !pace(handle, d.cfg.UDPPacing) {
			return sent, handle.Context().Err()
		}
	}
}
