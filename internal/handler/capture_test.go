package handler

import (
	"bytes"
	"context"
	"math"
	"net"
	"sync"
	"testing"
	"time"

	"docdetect/internal/logger"
	"docdetect/internal/protocol"
)

func captureDatagrams(height, width uint32, payload []byte, chunkSize int) [][]byte {
	chunks := protocol.SplitChunks(payload, chunkSize)
	datagrams := [][]byte{
		protocol.EncodeDimensions(height, width),
		protocol.EncodeLength(uint64(len(payload))),
		protocol.EncodeChunkCount(uint32(len(chunks))),
	}
	for i, chunk := range chunks {
		datagrams = append(datagrams, protocol.EncodeChunk(uint32(i), chunk))
	}
	return datagrams
}

func TestCaptureAssembler_Complete(t *testing.T) {
	a := NewCaptureAssembler(time.Second, 0)
	payload := []byte("0123456789abcdef")
	datagrams := captureDatagrams(480, 640, payload, 5)

	// Chunks may arrive in any order.
	chunks := datagrams[3:]
	chunks[0], chunks[len(chunks)-1] = chunks[len(chunks)-1], chunks[0]

	now := time.Now()
	var (
		header   protocol.CaptureHeader
		got      []byte
		complete bool
	)
	for _, d := range datagrams {
		header, got, complete = a.Add(d, now)
	}

	if !complete {
		t.Fatal("Expected capture to complete")
	}
	if header.Height != 480 || header.Width != 640 || header.Length != uint64(len(payload)) {
		t.Errorf("Unexpected header %+v", header)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Expected %q, got %q", payload, got)
	}
}

func TestCaptureAssembler_LostHeaderIsUnrecoverable(t *testing.T) {
	a := NewCaptureAssembler(time.Second, 0)
	now := time.Now()
	datagrams := captureDatagrams(10, 20, []byte("payload"), 3)

	// Length datagram lost: the chunk count (4 bytes) arrives where a length is expected.
	a.Add(datagrams[0], now)
	for _, d := range datagrams[2:] {
		if _, _, complete := a.Add(d, now); complete {
			t.Fatal("Capture with a lost header must not complete")
		}
	}
	if a.Stats().Discarded == 0 {
		t.Error("Expected the broken capture to be discarded")
	}

	// The next capture goes through.
	var complete bool
	for _, d := range captureDatagrams(1, 2, []byte("next"), 3) {
		_, _, complete = a.Add(d, now)
	}
	if !complete {
		t.Error("Assembler should recover for the next capture")
	}
}

func TestCaptureAssembler_StaleReset(t *testing.T) {
	a := NewCaptureAssembler(100*time.Millisecond, 0)
	start := time.Now()

	old := captureDatagrams(10, 20, []byte("abcdef"), 3)
	for _, d := range old[:4] {
		a.Add(d, start)
	}

	later := start.Add(time.Second)
	var complete bool
	for _, d := range captureDatagrams(3, 4, []byte("xyz"), 3) {
		_, _, complete = a.Add(d, later)
	}
	if !complete {
		t.Error("Stale partial capture should be dropped in favour of the new one")
	}
}

func TestCaptureAssembler_LengthMismatch(t *testing.T) {
	a := NewCaptureAssembler(time.Second, 0)
	now := time.Now()

	a.Add(protocol.EncodeDimensions(1, 1), now)
	a.Add(protocol.EncodeLength(100), now)
	a.Add(protocol.EncodeChunkCount(1), now)
	if _, _, complete := a.Add(protocol.EncodeChunk(0, []byte("short")), now); complete {
		t.Error("Capture shorter than its announced length must be discarded")
	}
}

func TestCaptureAssembler_RejectsOversizedLength(t *testing.T) {
	tests := []struct {
		name    string
		maxSize uint64
		length  uint64
		count   uint32
	}{
		{"default limit", 0, 1 << 62, 0},
		{"no chunks for a large length", math.MaxUint64, 1 << 62, 0},
		{"more bytes than the chunks can carry", math.MaxUint64, 3 * protocol.MaxDatagramSize, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewCaptureAssembler(time.Second, tt.maxSize)
			now := time.Now()

			a.Add(protocol.EncodeDimensions(1, 1), now)
			a.Add(protocol.EncodeLength(tt.length), now)
			if _, _, complete := a.Add(protocol.EncodeChunkCount(tt.count), now); complete {
				t.Fatal("Capture with an impossible length must not complete")
			}
			if a.Stats().Discarded != 1 {
				t.Errorf("Expected 1 discarded capture, got %d", a.Stats().Discarded)
			}

			// The assembler is back to waiting for a header.
			var complete bool
			for _, d := range captureDatagrams(2, 2, []byte("ok"), 10) {
				_, _, complete = a.Add(d, now)
			}
			if !complete {
				t.Error("Next capture should complete after the rejected one")
			}
		})
	}
}

func TestCaptureAssembler_EmptyPayload(t *testing.T) {
	a := NewCaptureAssembler(time.Second, 0)
	now := time.Now()

	var complete bool
	for _, d := range captureDatagrams(1, 1, nil, 10) {
		_, _, complete = a.Add(d, now)
	}
	if !complete {
		t.Error("Empty capture should complete after the chunk count")
	}
}

type captureCollector struct {
	mu       sync.Mutex
	headers  []protocol.CaptureHeader
	payloads [][]byte
	signal   chan struct{}
}

func newCaptureCollector() *captureCollector {
	return &captureCollector{signal: make(chan struct{}, 16)}
}

func (c *captureCollector) sink(header protocol.CaptureHeader, payload []byte) {
	c.mu.Lock()
	c.headers = append(c.headers, header)
	c.payloads = append(c.payloads, payload)
	c.mu.Unlock()
	select {
	case c.signal <- struct{}{}:
	default:
	}
}

func (c *captureCollector) wait(t *testing.T, n int) ([]protocol.CaptureHeader, [][]byte) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		c.mu.Lock()
		if len(c.headers) >= n {
			headers := append([]protocol.CaptureHeader(nil), c.headers...)
			payloads := append([][]byte(nil), c.payloads...)
			c.mu.Unlock()
			return headers, payloads
		}
		c.mu.Unlock()

		select {
		case <-c.signal:
		case <-deadline:
			t.Fatalf("Timed out waiting for %d captures", n)
		}
	}
}

func TestCaptureTCPHandler_ReceivesCapture(t *testing.T) {
	collector := newCaptureCollector()
	h := NewCaptureTCPHandler("127.0.0.1:0", 20*time.Millisecond, 0, collector.sink, logger.NewDiscard())
	if err := h.Listen(); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go h.Serve(ctx)
	defer func() {
		cancel()
		h.Close()
		h.Wait()
	}()

	conn, err := net.Dial("tcp", h.Addr().String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	payload := bytes.Repeat([]byte{7}, 4096)
	if err := protocol.WriteCapture(conn, 120, 160, payload); err != nil {
		t.Fatalf("WriteCapture failed: %v", err)
	}
	conn.Close()

	headers, payloads := collector.wait(t, 1)
	if headers[0].Height != 120 || headers[0].Width != 160 {
		t.Errorf("Unexpected header %+v", headers[0])
	}
	if !bytes.Equal(payloads[0], payload) {
		t.Errorf("Expected %d payload bytes, got %d", len(payload), len(payloads[0]))
	}
}

func TestCaptureUDPHandler_ReceivesCapture(t *testing.T) {
	collector := newCaptureCollector()
	h := NewCaptureUDPHandler("127.0.0.1:0", 20*time.Millisecond, 0, collector.sink, logger.NewDiscard())
	if err := h.Listen(); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer h.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Serve(ctx)

	conn, err := net.Dial("udp", h.Addr().String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	payload := bytes.Repeat([]byte("crop"), 1000)
	for _, d := range captureDatagrams(30, 40, payload, 1024) {
		if _, err := conn.Write(d); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		time.Sleep(time.Millisecond)
	}

	headers, payloads := collector.wait(t, 1)
	if headers[0].Height != 30 || headers[0].Width != 40 {
		t.Errorf("Unexpected header %+v", headers[0])
	}
	if !bytes.Equal(payloads[0], payload) {
		t.Errorf("Expected %d payload bytes, got %d", len(payload), len(payloads[0]))
	}
}
