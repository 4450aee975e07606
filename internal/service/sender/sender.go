// Package sender re-transmits accepted captures to the downstream receiver.
package sender

import (
	"context"
	"fmt"
	"net"
	"time"

	"docdetect/internal/config"
	"docdetect/internal/dto"
	"docdetect/internal/protocol"
)

// DefaultTimeout bounds the TCP dial and the write of one capture.
const DefaultTimeout = time.Second

// Sender delivers one capture. Implementations open a fresh connection per call.
type Sender interface {
	Send(ctx context.Context, capture dto.CapturedImage) error
}

// New returns the sender matching cfg.Transport.
func New(cfg *config.Config) (Sender, error) {
	switch cfg.Transport {
	case config.TransportTCP:
		return NewTCPSender(cfg.SendAddr, cfg.SendTimeout), nil
	case config.TransportUDP:
		return NewUDPSender(cfg.SendAddr, cfg.ChunkSize, cfg.ChunkDelay), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// TCPSender writes [height][width][length][payload] over a new connection.
type TCPSender struct {
	addr    string
	timeout time.Duration
}

// NewTCPSender creates a sender dialing addr. timeout 0 uses DefaultTimeout.
func NewTCPSender(addr string, timeout time.Duration) *TCPSender {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &TCPSender{addr: addr, timeout: timeout}
}

// Send dials, writes one capture and closes the connection.
func (s *TCPSender) Send(ctx context.Context, capture dto.CapturedImage) error {
	dialer := net.Dialer{Timeout: s.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", s.addr, err)
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}

	return protocol.WriteCapture(conn, uint32(capture.Height), uint32(capture.Width), capture.Data)
}

// UDPSender writes the dimensions, length and chunk count datagrams followed by
// the indexed chunks, pausing between chunks. There is no acknowledgement.
type UDPSender struct {
	addr      string
	chunkSize int
	delay     time.Duration
}

// NewUDPSender creates a sender to addr. chunkSize 0 uses protocol.DefaultChunkSize.
func NewUDPSender(addr string, chunkSize int, delay time.Duration) *UDPSender {
	if chunkSize <= 0 {
		chunkSize = protocol.DefaultChunkSize
	}
	return &UDPSender{addr: addr, chunkSize: chunkSize, delay: delay}
}

// Send writes the header datagrams and the chunks of one capture.
func (s *UDPSender) Send(ctx context.Context, capture dto.CapturedImage) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "udp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to open UDP socket to %s: %w", s.addr, err)
	}
	defer conn.Close()

	chunks := protocol.SplitChunks(capture.Data, s.chunkSize)

	headers := [][]byte{
		protocol.EncodeDimensions(uint32(capture.Height), uint32(capture.Width)),
		protocol.EncodeLength(uint64(len(capture.Data))),
		protocol.EncodeChunkCount(uint32(len(chunks))),
	}
	for _, header := range headers {
		if _, err := conn.Write(header); err != nil {
			return fmt.Errorf("failed to send header datagram: %w", err)
		}
	}

	for i, chunk := range chunks {
		if _, err := conn.Write(protocol.EncodeChunk(uint32(i), chunk)); err != nil {
			return fmt.Errorf("failed to send chunk %d/%d: %w", i+1, len(chunks), err)
		}
		if err := sleep(ctx, s.delay); err != nil {
			return err
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
