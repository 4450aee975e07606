package protocol

import (
	"errors"
	"fmt"
)

const (
	// FragmentHeaderSize is the size of frame_id + fragment_id + total_fragments.
	FragmentHeaderSize = 12
	// MaxDatagramSize is the largest UDP payload over IPv4.
	MaxDatagramSize = 65507
	// DefaultFragmentSize is the payload size used by capture clients per fragment.
	DefaultFragmentSize = 40000
)

// ErrShortDatagram is returned for datagrams smaller than the header they must carry.
var ErrShortDatagram = errors.New("datagram shorter than header")

// Fragment is one datagram's share of an encoded frame.
type Fragment struct {
	FrameID    uint32
	FragmentID uint32
	Total      uint32
	Payload    []byte
}

// ParseFragment decodes a receive-side datagram.
// The returned payload aliases datagram.
func ParseFragment(datagram []byte) (Fragment, error) {
	if len(datagram) < FragmentHeaderSize {
		return Fragment{}, fmt.Errorf("%w: %d bytes", ErrShortDatagram, len(datagram))
	}
	return Fragment{
		FrameID:    ByteOrder.Uint32(datagram[0:4]),
		FragmentID: ByteOrder.Uint32(datagram[4:8]),
		Total:      ByteOrder.Uint32(datagram[8:12]),
		Payload:    datagram[FragmentHeaderSize:],
	}, nil
}

// Marshal encodes the fragment as a single datagram.
func (f Fragment) Marshal() []byte {
	buf := make([]byte, FragmentHeaderSize+len(f.Payload))
	ByteOrder.PutUint32(buf[0:4], f.FrameID)
	ByteOrder.PutUint32(buf[4:8], f.FragmentID)
	ByteOrder.PutUint32(buf[8:12], f.Total)
	copy(buf[FragmentHeaderSize:], f.Payload)
	return buf
}

// SplitFrame cuts payload into fragments of at most size bytes, all tagged with frameID.
// An empty payload still produces one empty fragment so the receiver sees the frame.
func SplitFrame(frameID uint32, payload []byte, size int) []Fragment {
	if size <= 0 {
		size = DefaultFragmentSize
	}

	pieces := split(payload, size)
	if len(pieces) == 0 {
		pieces = [][]byte{{}}
	}

	fragments := make([]Fragment, len(pieces))
	for i, piece := range pieces {
		fragments[i] = Fragment{
			FrameID:    frameID,
			FragmentID: uint32(i),
			Total:      uint32(len(pieces)),
			Payload:    piece,
		}
	}
	return fragments
}

// split slices data into consecutive pieces of at most size bytes without copying.
func split(data []byte, size int) [][]byte {
	var pieces [][]byte
	for start := 0; start < len(data); start += size {
		end := start + size
		if end > len(data) {
			end = len(data)
		}
		pieces = append(pieces, data[start:end])
	}
	return pieces
}
