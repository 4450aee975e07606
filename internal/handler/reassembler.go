package handler

import (
	"sort"

	"docdetect/internal/protocol"
)

// ReassemblyStats counts what happened to incoming fragments.
type ReassemblyStats struct {
	Completed uint64 `json:"completed"`
	Discarded uint64 `json:"discarded"` // Partial frames abandoned for a newer frame_id
	Rejected  uint64 `json:"rejected"`  // Fragments with inconsistent headers
}

// Reassembler rebuilds frames from UDP fragments.
//
// It holds fragments of at most one frame at a time. A fragment with a different
// frame_id drops whatever was collected so far; there is no retransmission and no
// partial-frame salvage.
type Reassembler struct {
	inFlight  bool
	frameID   uint32
	total     uint32
	fragments map[uint32][]byte

	// Frame that completed last, so late duplicates do not start a new buffer.
	completed   bool
	completedID uint32

	stats ReassemblyStats
}

// NewReassembler creates an empty reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{fragments: make(map[uint32][]byte)}
}

// Add stores one fragment and returns the full payload when its frame completes.
// The fragment payload is copied, so callers may reuse their receive buffer.
func (r *Reassembler) Add(f protocol.Fragment) ([]byte, bool) {
	if f.Total == 0 || f.FragmentID >= f.Total {
		r.stats.Rejected++
		return nil, false
	}

	if !r.inFlight || f.FrameID != r.frameID {
		// Late duplicates of the frame that just completed are ignored only while
		// nothing is in flight; any other frame_id discards the partial frame.
		if !r.inFlight && r.completed && f.FrameID == r.completedID {
			return nil, false
		}
		r.start(f.FrameID, f.Total)
	} else if f.Total != r.total {
		r.stats.Rejected++
		return nil, false
	}

	r.fragments[f.FragmentID] = append([]byte(nil), f.Payload...)

	if uint32(len(r.fragments)) != r.total {
		return nil, false
	}

	payload := r.assemble()
	r.completed = true
	r.completedID = r.frameID
	r.inFlight = false
	r.fragments = make(map[uint32][]byte)
	r.stats.Completed++
	return payload, true
}

// Pending returns the frame currently being collected and how many fragments arrived.
func (r *Reassembler) Pending() (frameID uint32, received int, ok bool) {
	return r.frameID, len(r.fragments), r.inFlight
}

// Stats returns the counters.
func (r *Reassembler) Stats() ReassemblyStats {
	return r.stats
}

func (r *Reassembler) start(frameID, total uint32) {
	if r.inFlight && len(r.fragments) > 0 {
		r.stats.Discarded++
	}
	r.inFlight = true
	r.frameID = frameID
	r.total = total
	r.fragments = make(map[uint32][]byte, total)
}

func (r *Reassembler) assemble() []byte {
	ids := make([]uint32, 0, len(r.fragments))
	size := 0
	for id, data := range r.fragments {
		ids = append(ids, id)
		size += len(data)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	payload := make([]byte, 0, size)
	for _, id := range ids {
		payload = append(payload, r.fragments[id]...)
	}
	return payload
}
