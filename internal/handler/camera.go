package handler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"docdetect/internal/config"
	"docdetect/internal/logger"
	"docdetect/internal/protocol"
)

// FrameSink receives every complete encoded frame from a camera handler.
type FrameSink func(payload []byte)

// CameraUDPHandler listens for UDP fragments from capture clients, reassembles
// frames and forwards complete frames to the sink.
type CameraUDPHandler struct {
	addr   string
	poll   time.Duration
	sink   FrameSink
	logger *logger.Logger

	mu          sync.Mutex
	conn        *net.UDPConn
	reassembler *Reassembler
}

// NewCameraUDPHandler creates a handler bound to cfg.ReceiveAddr once Listen is called.
func NewCameraUDPHandler(cfg *config.Config, sink FrameSink, logger *logger.Logger) *CameraUDPHandler {
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = time.Second
	}
	return &CameraUDPHandler{
		addr:        cfg.ReceiveAddr,
		poll:        poll,
		sink:        sink,
		logger:      logger,
		reassembler: NewReassembler(),
	}
}

// Listen binds the UDP socket.
func (h *CameraUDPHandler) Listen() error {
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

	h.logger.Info("UDP camera handler listening on %s", conn.LocalAddr())
	return nil
}

// Addr returns the bound address, nil before Listen.
func (h *CameraUDPHandler) Addr() net.Addr {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conn == nil {
		return nil
	}
	return h.conn.LocalAddr()
}

// Serve runs the receive loop until ctx is cancelled or the socket is closed.
func (h *CameraUDPHandler) Serve(ctx context.Context) error {
	h.mu.Lock()
	conn := h.conn
	h.mu.Unlock()
	if conn == nil {
		return errors.New("udp camera handler is not listening")
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
			h.logger.Error("Error reading UDP packet: %v", err)
			continue
		}

		fragment, err := protocol.ParseFragment(buffer[:n])
		if err != nil {
			continue
		}

		h.mu.Lock()
		payload, complete := h.reassembler.Add(fragment)
		h.mu.Unlock()

		if complete && ctx.Err() == nil {
			h.sink(payload)
		}
	}
}

// Close closes the socket, unblocking Serve.
func (h *CameraUDPHandler) Close() error {
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

// Stats returns the reassembly counters.
func (h *CameraUDPHandler) Stats() ReassemblyStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reassembler.Stats()
}

// pollingReader bounds every read with a short deadline and gives up once ctx is done.
// Bytes already read are never lost, so framing can resume across deadlines.
type pollingReader struct {
	ctx  context.Context
	conn net.Conn
	poll time.Duration
}

func (r *pollingReader) Read(p []byte) (int, error) {
	for {
		if err := r.ctx.Err(); err != nil {
			return 0, err
		}
		if err := r.conn.SetReadDeadline(time.Now().Add(r.poll)); err != nil {
			return 0, err
		}

		n, err := r.conn.Read(p)
		if isTimeout(err) {
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
