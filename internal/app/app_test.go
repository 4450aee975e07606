package app

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"docdetect/internal/config"
	"docdetect/internal/logger"
	"docdetect/internal/protocol"
	"docdetect/internal/service/pipeline"
)

func testConfig(t *testing.T, transport string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Transport:          transport,
		ReceiveAddr:        "127.0.0.1:0",
		SendAddr:           "127.0.0.1:1",
		QueueSize:          1,
		MinCaptureInterval: time.Second,
		ShutdownTimeout:    500 * time.Millisecond,
		PollInterval:       20 * time.Millisecond,
		MaxFrameSize:       protocol.DefaultMaxFrameSize,
		ModelPath:          filepath.Join(dir, "missing.pb"),
		ConfigPath:         filepath.Join(dir, "missing.pbtxt"),
		DetectionThreshold: 0.1,
		MaxDetections:      1,
		ChunkSize:          1024,
		ChunkDelay:         time.Millisecond,
		SendTimeout:        100 * time.Millisecond,
		ScreenshotDir:      filepath.Join(dir, "screenshots"),
		DBPath:             filepath.Join(dir, "captures.db"),
	}
}

func TestApp_MissingModelIsFatal(t *testing.T) {
	for _, transport := range []string{config.TransportTCP, config.TransportUDP} {
		t.Run(transport, func(t *testing.T) {
			a, err := NewApp(testConfig(t, transport), logger.NewDiscard())
			if err != nil {
				t.Fatalf("NewApp failed: %v", err)
			}

			done := make(chan error, 1)
			go func() { done <- a.Run(context.Background()) }()

			select {
			case err := <-done:
				if !errors.Is(err, pipeline.ErrDetectorUnavailable) {
					t.Errorf("Expected ErrDetectorUnavailable, got %v", err)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("Run did not stop after the detector failed to load")
			}
		})
	}
}

func TestApp_ContextCancelStopsRun(t *testing.T) {
	cfg := testConfig(t, config.TransportTCP)
	a, err := NewApp(cfg, logger.NewDiscard())
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	if addr, ok := a.receiver.(interface{ Addr() net.Addr }); ok && addr.Addr() != nil {
		if conn, err := net.DialTimeout("tcp", addr.Addr().String(), 200*time.Millisecond); err == nil {
			conn.Close()
			t.Error("Receiver should not accept connections after shutdown")
		}
	}
}

func TestApp_Status(t *testing.T) {
	cfg := testConfig(t, config.TransportUDP)
	cfg.Show = true
	a, err := NewApp(cfg, logger.NewDiscard())
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	defer a.close()

	status, ok := a.Status().(map[string]any)
	if !ok {
		t.Fatalf("Expected a map, got %T", a.Status())
	}
	for _, key := range []string{"transport", "pipeline", "dispatch", "receiver", "viewers"} {
		if _, ok := status[key]; !ok {
			t.Errorf("Status is missing %q", key)
		}
	}
	if status["transport"] != config.TransportUDP {
		t.Errorf("Expected udp transport, got %v", status["transport"])
	}
}

func TestNewApp_UnknownTransport(t *testing.T) {
	if _, err := NewApp(testConfig(t, "sctp"), logger.NewDiscard()); err == nil {
		t.Error("Expected an error for an unknown transport")
	}
}
