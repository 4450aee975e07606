package handler

import (
	"context"
	"errors"
	"io"
	"net"

	"docdetect/internal/config"
	"docdetect/internal/logger"
	"docdetect/internal/protocol"
)

// CameraTCPHandler accepts persistent client connections and strips the
// length-prefix framing from each frame.
type CameraTCPHandler struct {
	*tcpServer
	maxFrameSize uint64
	sink         FrameSink
}

// NewCameraTCPHandler creates a handler bound to cfg.ReceiveAddr once Listen is called.
func NewCameraTCPHandler(cfg *config.Config, sink FrameSink, logger *logger.Logger) *CameraTCPHandler {
	maxFrameSize := cfg.MaxFrameSize
	if maxFrameSize == 0 {
		maxFrameSize = protocol.DefaultMaxFrameSize
	}
	h := &CameraTCPHandler{
		tcpServer:    newTCPServer("TCP camera handler", cfg.ReceiveAddr, cfg.PollInterval, logger),
		maxFrameSize: maxFrameSize,
		sink:         sink,
	}
	h.handle = h.handleClient
	return h
}

// handleClient reads frames from one client until it disconnects or shutdown begins.
func (h *CameraTCPHandler) handleClient(ctx context.Context, conn *net.TCPConn) {
	remote := conn.RemoteAddr().String()
	h.logger.Info("Camera client connected: %s", remote)

	reader := &pollingReader{ctx: ctx, conn: conn, poll: h.poll}

	for {
		payload, err := protocol.ReadFrame(reader, h.maxFrameSize)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				h.logger.Info("Camera client disconnected: %s", remote)
			case ctx.Err() != nil:
				h.logger.Debug("Closing camera client %s for shutdown", remote)
			default:
				h.logger.Warning("Camera client %s error: %v", remote, err)
			}
			return
		}

		if ctx.Err() != nil {
			return
		}
		h.sink(payload)
	}
}
