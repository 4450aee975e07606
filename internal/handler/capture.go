package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"docdetect/internal/logger"
	"docdetect/internal/protocol"
)

// CaptureSink receives every capture a downstream receiver rebuilds.
type CaptureSink func(header protocol.CaptureHeader, payload []byte)

// CaptureTCPHandler is the downstream end of the TCP send protocol.
type CaptureTCPHandler struct {
	*tcpServer
	maxSize uint64
	sink    CaptureSink
}

// NewCaptureTCPHandler creates a receiver for addr. maxSize 0 uses protocol.DefaultMaxFrameSize.
func NewCaptureTCPHandler(addr string, poll time.Duration, maxSize uint64, sink CaptureSink, logger *logger.Logger) *CaptureTCPHandler {
	if maxSize == 0 {
		maxSize = protocol.DefaultMaxFrameSize
	}
	h := &CaptureTCPHandler{
		tcpServer: newTCPServer("TCP capture receiver", addr, poll, logger),
		maxSize:   maxSize,
		sink:      sink,
	}
	h.handle = h.handleSender
	return h
}

// handleSender reads captures until the sender closes the connection.
func (h *CaptureTCPHandler) handleSender(ctx context.Context, conn *net.TCPConn) {
	reader := &pollingReader{ctx: ctx, conn: conn, poll: h.poll}

	for {
		header, payload, err := protocol.ReadCapture(reader, h.maxSize)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				h.logger.Warning("Capture sender %s error: %v", conn.RemoteAddr(), err)
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		h.sink(header, payload)
	}
}

// CaptureUDPHandler is the downstream end of the UDP send protocol.
type CaptureUDPHandler struct {
	addr   string
	poll   time.Duration
	sink   CaptureSink
	logger *logger.Logger

	mu        sync.Mutex
	conn      *net.UDPConn
	assembler *CaptureAssembler
}

// NewCaptureUDPHandler creates a receiver for addr. maxSize 0 uses protocol.DefaultMaxFrameSize.
func NewCaptureUDPHandler(addr string, poll time.Duration, maxSize uint64, sink CaptureSink, logger *logger.Logger) *CaptureUDPHandler {
	if poll <= 0 {
		poll = time.Second
	}
	if maxSize == 0 {
		maxSize = protocol.DefaultMaxFrameSize
	}
	return &CaptureUDPHandler{
		addr:      addr,
		poll:      poll,
		sink:      sink,
		logger:    logger,
		assembler: NewCaptureAssembler(DefaultCaptureStaleAfter, maxSize),
	}
}

// Listen binds the UDP socket.
func (h *CaptureUDPHandler) Listen() error {
	addr, err := net.ResolveUDPAddr("udp", h.addr)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address %s: %w", h.addr, err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP %s: %w", h.addr, err)
	}

	h.mu.Lock()
	h.conn = conn
	h.mu.Unlock()

	h.logger.Info("UDP capture receiver listening on %s", conn.LocalAddr())
	return nil
}

// Addr returns the bound address, nil before Listen.
func (h *CaptureUDPHandler) Addr() net.Addr {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conn == nil {
		return nil
	}
	return h.conn.LocalAddr()
}

// Serve runs the receive loop until ctx is cancelled or the socket is closed.
func (h *CaptureUDPHandler) Serve(ctx context.Context) error {
	h.mu.Lock()
	conn := h.conn
	h.mu.Unlock()
	if conn == nil {
		return errors.New("udp capture receiver is not listening")
	}

	buffer := make([]byte, 65535)

	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := conn.SetReadDeadline(time.Now().Add(h.poll)); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("failed to set read deadline: %w", err)
		}

		n, _, err := conn.ReadFromUDP(buffer)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			h.logger.Error("Error reading capture datagram: %v", err)
			continue
		}

		h.mu.Lock()
		header, payload, complete := h.assembler.Add(buffer[:n], time.Now())
		h.mu.Unlock()

		if complete {
			h.sink(header, payload)
		}
	}
}

// Close closes the socket, unblocking Serve.
func (h *CaptureUDPHandler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conn == nil {
		return nil
	}
	err := h.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Stats returns the assembler counters.
func (h *CaptureUDPHandler) Stats() CaptureStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.assembler.Stats()
}
