package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"docdetect/internal/logger"
	"docdetect/internal/protocol"
)

// ReceivedWriter stores crops arriving over the capture protocol. It is the
// sink of the downstream receiver.
type ReceivedWriter struct {
	dir    string
	logger *logger.Logger
	now    func() time.Time

	mu    sync.Mutex
	count int
}

func NewReceivedWriter(dir string, logger *logger.Logger) *ReceivedWriter {
	return &ReceivedWriter{dir: dir, logger: logger, now: time.Now}
}

// Handle writes one crop as received_{n}_{timestamp}.png.
func (w *ReceivedWriter) Handle(header protocol.CaptureHeader, payload []byte) {
	path, err := w.write(payload)
	if err != nil {
		w.logger.Error("Failed to store received capture: %v", err)
		return
	}
	w.logger.Info("Received %dx%d capture (%d bytes): %s", header.Width, header.Height, len(payload), path)
}

// Count returns how many crops were written.
func (w *ReceivedWriter) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

func (w *ReceivedWriter) write(payload []byte) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(w.dir, FileName("received", w.count, w.now()))
	if err := os.WriteFile(path, payload, 0644); err != nil {
		return "", err
	}
	w.count++
	return path, nil
}
