package handler

import (
	"time"

	"docdetect/internal/protocol"
)

// DefaultCaptureStaleAfter resets a half-received UDP capture when the sender goes quiet.
const DefaultCaptureStaleAfter = 2 * time.Second

type captureState int

const (
	awaitDimensions captureState = iota
	awaitLength
	awaitChunkCount
	awaitChunks
)

// CaptureStats counts downstream captures.
type CaptureStats struct {
	Completed uint64 `json:"completed"`
	Discarded uint64 `json:"discarded"`
}

// CaptureAssembler rebuilds captures sent with the UDP send protocol: a
// dimensions datagram, a length datagram, a chunk count datagram and then the
// indexed chunks. The three header datagrams carry no capture id, so losing any
// of them makes the capture unrecoverable; the assembler falls back to waiting
// for dimensions after a malformed header or a quiet period of staleAfter.
type CaptureAssembler struct {
	staleAfter time.Duration
	maxSize    uint64

	state  captureState
	header protocol.CaptureHeader
	count  uint32
	chunks map[uint32][]byte
	last   time.Time

	stats CaptureStats
}

// NewCaptureAssembler creates an assembler. maxSize 0 uses protocol.DefaultMaxFrameSize.
func NewCaptureAssembler(staleAfter time.Duration, maxSize uint64) *CaptureAssembler {
	if staleAfter <= 0 {
		staleAfter = DefaultCaptureStaleAfter
	}
	if maxSize == 0 {
		maxSize = protocol.DefaultMaxFrameSize
	}
	return &CaptureAssembler{staleAfter: staleAfter, maxSize: maxSize}
}

// Add feeds one datagram received at now. It returns the header and payload
// once a capture is complete and its length matches the announced length.
func (a *CaptureAssembler) Add(datagram []byte, now time.Time) (protocol.CaptureHeader, []byte, bool) {
	if a.state != awaitDimensions && now.Sub(a.last) > a.staleAfter {
		a.discard()
	}
	a.last = now

	switch a.state {
	case awaitDimensions:
		height, width, err := protocol.DecodeDimensions(datagram)
		if err != nil {
			return protocol.CaptureHeader{}, nil, false
		}
		a.header = protocol.CaptureHeader{Height: height, Width: width}
		a.state = awaitLength

	case awaitLength:
		length, err := protocol.DecodeLength(datagram)
		if err != nil || length > a.maxSize {
			a.discard()
			return protocol.CaptureHeader{}, nil, false
		}
		a.header.Length = length
		a.state = awaitChunkCount

	case awaitChunkCount:
		count, err := protocol.DecodeChunkCount(datagram)
		if err != nil {
			a.discard()
			return protocol.CaptureHeader{}, nil, false
		}
		if a.header.Length > uint64(count)*protocol.MaxDatagramSize {
			a.discard()
			return protocol.CaptureHeader{}, nil, false
		}
		if count == 0 {
			return a.finish()
		}
		a.count = count
		a.chunks = make(map[uint32][]byte, count)
		a.state = awaitChunks

	case awaitChunks:
		index, chunk, err := protocol.DecodeChunk(datagram)
		if err != nil || index >= a.count {
			return protocol.CaptureHeader{}, nil, false
		}
		a.chunks[index] = append([]byte(nil), chunk...)
		if uint32(len(a.chunks)) == a.count {
			return a.finish()
		}
	}

	return protocol.CaptureHeader{}, nil, false
}

// Stats returns the counters.
func (a *CaptureAssembler) Stats() CaptureStats {
	return a.stats
}

func (a *CaptureAssembler) finish() (protocol.CaptureHeader, []byte, bool) {
	header := a.header
	size := 0
	for _, chunk := range a.chunks {
		size += len(chunk)
	}
	payload := make([]byte, 0, size)
	for i := uint32(0); i < a.count; i++ {
		payload = append(payload, a.chunks[i]...)
	}

	if uint64(len(payload)) != header.Length {
		a.discard()
		return protocol.CaptureHeader{}, nil, false
	}

	a.reset()
	a.stats.Completed++
	return header, payload, true
}

func (a *CaptureAssembler) discard() {
	a.stats.Discarded++
	a.reset()
}

func (a *CaptureAssembler) reset() {
	a.state = awaitDimensions
	a.header = protocol.CaptureHeader{}
	a.count = 0
	a.chunks = nil
}
