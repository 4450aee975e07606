package protocol

import (
	"errors"
	"fmt"
	"io"
	"net"
)

const (
	// CaptureHeaderSize is height + width + payload length on the TCP send path.
	CaptureHeaderSize = 16
	// DimensionsSize is the first UDP send datagram: height + width.
	DimensionsSize = 8
	// LengthSize is the second UDP send datagram: total payload length.
	LengthSize = 8
	// ChunkCountSize is the third UDP send datagram: number of chunks.
	ChunkCountSize = 4
	// ChunkIndexSize prefixes every chunk datagram.
	ChunkIndexSize = 4
	// DefaultChunkSize leaves headroom below MaxDatagramSize for the index prefix.
	DefaultChunkSize = MaxDatagramSize - 100
)

// ErrMalformedDatagram is returned when a capture datagram has the wrong size for its role.
var ErrMalformedDatagram = errors.New("malformed capture datagram")

// CaptureHeader precedes a captured crop on the TCP send path.
type CaptureHeader struct {
	Height uint32
	Width  uint32
	Length uint64
}

// Marshal encodes the header.
func (h CaptureHeader) Marshal() []byte {
	buf := make([]byte, CaptureHeaderSize)
	ByteOrder.PutUint32(buf[0:4], h.Height)
	ByteOrder.PutUint32(buf[4:8], h.Width)
	ByteOrder.PutUint64(buf[8:16], h.Length)
	return buf
}

// WriteCapture writes header and payload to w as a single write sequence.
func WriteCapture(w io.Writer, height, width uint32, payload []byte) error {
	header := CaptureHeader{Height: height, Width: width, Length: uint64(len(payload))}
	buffers := net.Buffers{header.Marshal(), payload}
	if _, err := buffers.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write capture: %w", err)
	}
	return nil
}

// ReadCapture reads one capture (header and payload) from r.
func ReadCapture(r io.Reader, maxSize uint64) (CaptureHeader, []byte, error) {
	var buf [CaptureHeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return CaptureHeader{}, nil, closedOr(err)
	}

	header := CaptureHeader{
		Height: ByteOrder.Uint32(buf[0:4]),
		Width:  ByteOrder.Uint32(buf[4:8]),
		Length: ByteOrder.Uint64(buf[8:16]),
	}
	if maxSize > 0 && header.Length > maxSize {
		return header, nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrFrameTooLarge, header.Length, maxSize)
	}

	payload := make([]byte, header.Length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return header, nil, closedOr(err)
	}
	return header, payload, nil
}

// EncodeDimensions builds the first UDP send datagram.
func EncodeDimensions(height, width uint32) []byte {
	buf := make([]byte, DimensionsSize)
	ByteOrder.PutUint32(buf[0:4], height)
	ByteOrder.PutUint32(buf[4:8], width)
	return buf
}

// DecodeDimensions parses the first UDP send datagram.
func DecodeDimensions(datagram []byte) (height, width uint32, err error) {
	if len(datagram) != DimensionsSize {
		return 0, 0, fmt.Errorf("%w: dimensions datagram is %d bytes", ErrMalformedDatagram, len(datagram))
	}
	return ByteOrder.Uint32(datagram[0:4]), ByteOrder.Uint32(datagram[4:8]), nil
}

// EncodeLength builds the second UDP send datagram.
func EncodeLength(length uint64) []byte {
	buf := make([]byte, LengthSize)
	ByteOrder.PutUint64(buf, length)
	return buf
}

// DecodeLength parses the second UDP send datagram.
func DecodeLength(datagram []byte) (uint64, error) {
	if len(datagram) != LengthSize {
		return 0, fmt.Errorf("%w: length datagram is %d bytes", ErrMalformedDatagram, len(datagram))
	}
	return ByteOrder.Uint64(datagram), nil
}

// EncodeChunkCount builds the third UDP send datagram.
func EncodeChunkCount(count uint32) []byte {
	buf := make([]byte, ChunkCountSize)
	ByteOrder.PutUint32(buf, count)
	return buf
}

// DecodeChunkCount parses the third UDP send datagram.
func DecodeChunkCount(datagram []byte) (uint32, error) {
	if len(datagram) != ChunkCountSize {
		return 0, fmt.Errorf("%w: chunk count datagram is %d bytes", ErrMalformedDatagram, len(datagram))
	}
	return ByteOrder.Uint32(datagram), nil
}

// EncodeChunk builds one chunk datagram.
func EncodeChunk(index uint32, chunk []byte) []byte {
	buf := make([]byte, ChunkIndexSize+len(chunk))
	ByteOrder.PutUint32(buf, index)
	copy(buf[ChunkIndexSize:], chunk)
	return buf
}

// DecodeChunk parses one chunk datagram. The returned chunk aliases datagram.
func DecodeChunk(datagram []byte) (uint32, []byte, error) {
	if len(datagram) < ChunkIndexSize {
		return 0, nil, fmt.Errorf("%w: chunk datagram is %d bytes", ErrShortDatagram, len(datagram))
	}
	return ByteOrder.Uint32(datagram), datagram[ChunkIndexSize:], nil
}

// SplitChunks cuts payload into chunks of at most size bytes.
// An empty payload yields no chunks.
func SplitChunks(payload []byte, size int) [][]byte {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return split(payload, size)
}
