// Package protocol implements the wire formats spoken between capture clients,
// the detection service and downstream capture receivers.
//
// All integers are little-endian, matching what the capture clients emit.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ByteOrder is the byte order of every integer on the wire.
var ByteOrder = binary.LittleEndian

const (
	// FrameLengthSize is the width of the TCP frame length prefix.
	FrameLengthSize = 8
	// DefaultMaxFrameSize bounds a single encoded frame accepted from a client.
	DefaultMaxFrameSize = 64 << 20
)

var (
	// ErrConnectionClosed is returned when the peer closes the stream in the middle of a frame.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrFrameTooLarge is returned when a length prefix exceeds the configured limit.
	ErrFrameTooLarge = errors.New("frame too large")
)

// ReadFrame reads one length-prefixed frame from r.
//
// It returns io.EOF only when the stream ends exactly on a frame boundary.
// A stream that ends anywhere inside a prefix or payload yields ErrConnectionClosed.
func ReadFrame(r io.Reader, maxSize uint64) ([]byte, error) {
	var prefix [FrameLengthSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, closedOr(err)
	}

	length := ByteOrder.Uint64(prefix[:])
	if maxSize > 0 && length > maxSize {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrFrameTooLarge, length, maxSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, closedOr(err)
	}
	return payload, nil
}

// WriteFrame writes payload to w behind its length prefix.
func WriteFrame(w io.Writer, payload []byte) error {
	buf := make([]byte, FrameLengthSize+len(payload))
	ByteOrder.PutUint64(buf, uint64(len(payload)))
	copy(buf[FrameLengthSize:], payload)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// closedOr maps a premature end of stream to ErrConnectionClosed.
func closedOr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	}
	return err
}
