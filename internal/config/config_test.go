package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoad_TCPDefaults(t *testing.T) {
	cfg, err := Load(viper.New())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Transport != TransportTCP {
		t.Errorf("Expected tcp transport, got %s", cfg.Transport)
	}
	if cfg.ReceiveAddr != DefaultTCPReceiveAddr || cfg.SendAddr != DefaultTCPSendAddr {
		t.Errorf("Unexpected addresses %s -> %s", cfg.ReceiveAddr, cfg.SendAddr)
	}
	if cfg.MinCaptureInterval != time.Second {
		t.Errorf("Expected 1s capture interval, got %v", cfg.MinCaptureInterval)
	}
	if cfg.QueueSize != 1 {
		t.Errorf("Expected queue size 1, got %d", cfg.QueueSize)
	}
	if cfg.DBPath != filepath.Join(cfg.ScreenshotDir, "captures.db") {
		t.Errorf("Expected DB next to screenshots, got %s", cfg.DBPath)
	}
}

func TestLoad_UDPDefaultsFollowTransport(t *testing.T) {
	t.Setenv("TRANSPORT", "UDP")

	cfg, err := Load(viper.New())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ReceiveAddr != DefaultUDPReceiveAddr || cfg.SendAddr != DefaultUDPSendAddr {
		t.Errorf("Unexpected addresses %s -> %s", cfg.ReceiveAddr, cfg.SendAddr)
	}
	if cfg.MinCaptureInterval != 10*time.Second {
		t.Errorf("Expected 10s capture interval, got %v", cfg.MinCaptureInterval)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("TRANSPORT", "udp")
	t.Setenv("MIN_CAPTURE_INTERVAL", "3s")
	t.Setenv("RECEIVE_ADDR", "0.0.0.0:9000")
	t.Setenv("QUEUE_SIZE", "4")
	t.Setenv("DETECT_LABELS", "document, book")

	cfg, err := Load(viper.New())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.MinCaptureInterval != 3*time.Second {
		t.Errorf("Expected 3s, got %v", cfg.MinCaptureInterval)
	}
	if cfg.ReceiveAddr != "0.0.0.0:9000" {
		t.Errorf("Expected overridden receive addr, got %s", cfg.ReceiveAddr)
	}
	if cfg.SendAddr != DefaultUDPSendAddr {
		t.Errorf("Send addr should keep the transport default, got %s", cfg.SendAddr)
	}
	if cfg.QueueSize != 4 {
		t.Errorf("Expected queue size 4, got %d", cfg.QueueSize)
	}
	if len(cfg.DetectLabels) != 2 || cfg.DetectLabels[0] != "document" || cfg.DetectLabels[1] != "book" {
		t.Errorf("Unexpected labels %v", cfg.DetectLabels)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docdetect.yaml")
	content := "transport: udp\nqueue_size: 2\nsave: true\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Transport != TransportUDP || cfg.QueueSize != 2 || !cfg.Save {
		t.Errorf("Config file values not applied: %+v", cfg)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"TRANSPORT", "sctp"},
		{"QUEUE_SIZE", "0"},
		{"CHUNK_SIZE", "70000"},
		{"MAX_FRAME_SIZE", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(viper.New()); err == nil {
				t.Errorf("Expected %s=%s to be rejected", tt.key, tt.value)
			}
		})
	}
}
