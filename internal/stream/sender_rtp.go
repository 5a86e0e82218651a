package stream

import (
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"os"

	"github.com/pion/rtp"

	"github.com/jmylchreest/vodarr/internal/session"
)

const (
	// rtpPayloadType is the dynamic payload type used for all streams.
	rtpPayloadType = 96
	// rtpTimestampIncrement advances the 90 kHz media clock by one frame
	// at a nominal 25 fps per packet.
	rtpTimestampIncrement = 3600
)

// sendRTP reads the file in MTU-sized payloads and sends each prefixed
// with a 12-byte RTP header: version 2, no padding/extension/CSRC, payload
// type 96, sequence numbers monotonic modulo 2^16 in send order, and a
// per-stream random SSRC.
func (d *Dispatcher) sendRTP(handle *session.StreamHandle, peer *net.UDPAddr) (sendResult, error) {
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

	packet := rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    rtpPayloadType,
			SequenceNumber: uint16(rand.Uint32()),
			Timestamp:      rand.Uint32(),
			SSRC:           rand.Uint32(),
		},
	}

	buf := make([]byte, d.cfg.RTPPayloadSize)
	for {
		if err := handle.Context().Err(); err != nil {
			return sent, err
		}

		n, readErr := file.Read(buf)
		if n > 0 {
			packet.Payload = buf[:n]
			wire, marshalErr := packet.Marshal()
			if marshalErr != nil {
				return sent, fmt.Errorf("marshaling rtp packet: %w", marshalErr)
			}
			if _, writeErr := d.rtpConn.WriteToUDP(wire, peer); writeErr != nil {
				return sent, fmt.Errorf("sending rtp packet: %w", writeErr)
			}
			sent.bytes += uint64(n)
			sent.packets++
			packet.Header.SequenceNumber++
			packet.Header.Timestamp += rtpTimestampIncrement
		}
		if readErr == io.EOF {
			return sent, nil
		}
		if readErr != nil {
			return sent, fmt.Errorf("reading source: %w", readErr)
		}

		if !pace(handle, d.cfg.RTPPacing) {
			return sent, handle.Context().Err()
		}
	}
}
