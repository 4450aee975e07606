package protocol

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

// chunkedReader hands out data in the given read sizes, then the remainder.
type chunkedReader struct {
	data  []byte
	sizes []int
	reads int
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := len(r.data)
	if r.reads < len(r.sizes) && r.sizes[r.reads] < n {
		n = r.sizes[r.reads]
	}
	if n > len(p) {
		n = len(p)
	}
	copy(p, r.data[:n])
	r.data = r.data[n:]
	r.reads++
	return n, nil
}

func framed(payload []byte) []byte {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, payload); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func TestReadFrame_SplitAcrossFiveReads(t *testing.T) {
	payload := bytes.Repeat([]byte("document-frame-"), 200)
	wire := framed(payload)

	whole, err := ReadFrame(bytes.NewReader(wire), DefaultMaxFrameSize)
	if err != nil {
		t.Fatalf("single read failed: %v", err)
	}

	r := &chunkedReader{data: wire, sizes: []int{3, 7, 500, 1111}}
	split, err := ReadFrame(r, DefaultMaxFrameSize)
	if err != nil {
		t.Fatalf("split read failed: %v", err)
	}

	if r.reads != 5 {
		t.Errorf("Expected payload to arrive in 5 reads, got %d", r.reads)
	}
	if !bytes.Equal(whole, split) {
		t.Error("Split delivery should decode to byte-identical payload")
	}
	if !bytes.Equal(split, payload) {
		t.Error("Decoded payload differs from original")
	}
}

func TestReadFrame_Consecutive(t *testing.T) {
	wire := append(framed([]byte("first")), framed([]byte("second"))...)
	r := bytes.NewReader(wire)

	for _, want := range []string{"first", "second"} {
		got, err := ReadFrame(r, 0)
		if err != nil {
			t.Fatalf("ReadFrame failed: %v", err)
		}
		if string(got) != want {
			t.Errorf("Expected %q, got %q", want, got)
		}
	}

	if _, err := ReadFrame(r, 0); err != io.EOF {
		t.Errorf("Expected io.EOF at frame boundary, got %v", err)
	}
}

func TestReadFrame_ClosedMidFrame(t *testing.T) {
	wire := framed([]byte("truncated payload"))

	tests := []struct {
		name string
		cut  int
	}{
		{"inside prefix", 3},
		{"inside payload", FrameLengthSize + 4},
	}

	for _, tt := range tests {
		_, err := ReadFrame(bytes.NewReader(wire[:tt.cut]), 0)
		if !errors.Is(err, ErrConnectionClosed) {
			t.Errorf("%s: expected ErrConnectionClosed, got %v", tt.name, err)
		}
	}
}

func TestReadFrame_TooLarge(t *testing.T) {
	wire := framed(make([]byte, 1024))
	if _, err := ReadFrame(bytes.NewReader(wire), 512); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("Expected ErrFrameTooLarge, got %v", err)
	}
}

func TestParseFragment(t *testing.T) {
	f := Fragment{FrameID: 7, FragmentID: 2, Total: 3, Payload: []byte("abc")}
	parsed, err := ParseFragment(f.Marshal())
	if err != nil {
		t.Fatalf("ParseFragment failed: %v", err)
	}
	if parsed.FrameID != 7 || parsed.FragmentID != 2 || parsed.Total != 3 {
		t.Errorf("Unexpected header: %+v", parsed)
	}
	if string(parsed.Payload) != "abc" {
		t.Errorf("Expected payload abc, got %q", parsed.Payload)
	}

	if _, err := ParseFragment(make([]byte, FragmentHeaderSize-1)); !errors.Is(err, ErrShortDatagram) {
		t.Errorf("Expected ErrShortDatagram, got %v", err)
	}
}

func TestSplitFrame(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 25)
	fragments := SplitFrame(4, payload, 10)

	if len(fragments) != 3 {
		t.Fatalf("Expected 3 fragments, got %d", len(fragments))
	}
	for i, f := range fragments {
		if f.FragmentID != uint32(i) || f.Total != 3 || f.FrameID != 4 {
			t.Errorf("Fragment %d has header %+v", i, f)
		}
	}
	if len(fragments[2].Payload) != 5 {
		t.Errorf("Expected last fragment of 5 bytes, got %d", len(fragments[2].Payload))
	}

	if empty := SplitFrame(1, nil, 10); len(empty) != 1 || empty[0].Total != 1 {
		t.Errorf("Empty payload should produce a single empty fragment, got %+v", empty)
	}
}

func TestCaptureWireLayout(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCapture(&buf, 480, 640, []byte("png")); err != nil {
		t.Fatalf("WriteCapture failed: %v", err)
	}

	wire := buf.Bytes()
	if len(wire) != CaptureHeaderSize+3 {
		t.Fatalf("Expected %d bytes on the wire, got %d", CaptureHeaderSize+3, len(wire))
	}
	if ByteOrder.Uint32(wire[0:4]) != 480 || ByteOrder.Uint32(wire[4:8]) != 640 {
		t.Error("Height must precede width on the wire")
	}
	if ByteOrder.Uint64(wire[8:16]) != 3 {
		t.Errorf("Expected length 3, got %d", ByteOrder.Uint64(wire[8:16]))
	}

	header, payload, err := ReadCapture(bytes.NewReader(wire), 0)
	if err != nil {
		t.Fatalf("ReadCapture failed: %v", err)
	}
	if header.Height != 480 || header.Width != 640 || string(payload) != "png" {
		t.Errorf("Unexpected capture %+v %q", header, payload)
	}
}

func TestCaptureDatagrams_RejectWrongSizes(t *testing.T) {
	if _, _, err := DecodeDimensions(make([]byte, 4)); !errors.Is(err, ErrMalformedDatagram) {
		t.Errorf("Expected ErrMalformedDatagram for dimensions, got %v", err)
	}
	if _, err := DecodeLength(make([]byte, 4)); !errors.Is(err, ErrMalformedDatagram) {
		t.Errorf("Expected ErrMalformedDatagram for length, got %v", err)
	}
	if _, err := DecodeChunkCount(make([]byte, 8)); !errors.Is(err, ErrMalformedDatagram) {
		t.Errorf("Expected ErrMalformedDatagram for chunk count, got %v", err)
	}
	if _, _, err := DecodeChunk(make([]byte, 2)); !errors.Is(err, ErrShortDatagram) {
		t.Errorf("Expected ErrShortDatagram for chunk, got %v", err)
	}
}

func TestSplitChunks(t *testing.T) {
	if chunks := SplitChunks(nil, 10); len(chunks) != 0 {
		t.Errorf("Expected no chunks for empty payload, got %d", len(chunks))
	}

	chunks := SplitChunks(make([]byte, DefaultChunkSize+1), 0)
	if len(chunks) != 2 {
		t.Fatalf("Expected 2 chunks, got %d", len(chunks))
	}
	if ChunkIndexSize+len(chunks[0]) > MaxDatagramSize {
		t.Error("Chunk datagram exceeds the UDP payload ceiling")
	}
}
