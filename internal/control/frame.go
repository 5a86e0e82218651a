// Package control implements the request/reply protocol between client and
// server: length-prefixed JSON frames over one reliable connection per
// client.
package control

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize caps a single frame's body. Control messages are small;
// anything near this size is a broken or hostile peer.
const MaxFrameSize = 1 << 20

var (
	// ErrFrameTooLarge is returned when a frame's declared length exceeds
	// MaxFrameSize.
	ErrFrameTooLarge = errors.New("control frame exceeds size limit")
	// ErrEmptyFrame is returned for a zero-length frame.
	ErrEmptyFrame = errors.New("empty control frame")
)

// WriteFrame writes one frame: a 4-byte big-endian body length followed by
// the body.
func WriteFrame(w io.Writer, body []byte) error {
	if len(body) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(body))
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(body)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("writing frame header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("writing frame body: %w", err)
	}
	return nil
}

// ReadFrame reads one frame written by WriteFrame.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(header[:])
	if size == 0 {
		return nil, ErrEmptyFrame
	}
	if size > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("reading frame body: %w", err)
	}
	return body, nil
}
