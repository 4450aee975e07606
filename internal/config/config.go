package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	TransportTCP = "tcp"
	TransportUDP = "udp"
)

// Transport-dependent defaults observed on the deployed variants.
const (
	DefaultTCPReceiveAddr = "127.0.0.1:48003"
	DefaultTCPSendAddr    = "127.0.0.1:48004"
	DefaultUDPReceiveAddr = "127.0.0.1:48005"
	DefaultUDPSendAddr    = "127.0.0.1:48006"

	DefaultTCPMinCaptureInterval = 1 * time.Second
	DefaultUDPMinCaptureInterval = 10 * time.Second
)

type Config struct {
	Transport          string        // tcp or udp, selects both receive and send protocols
	ReceiveAddr        string        // Where capture clients send frames
	SendAddr           string        // Downstream receiver of captured crops
	QueueSize          int           // Bound of the frame queue (latest frame wins)
	MinCaptureInterval time.Duration // Freshness interval of the capture policy
	ShutdownTimeout    time.Duration // Join timeout per worker during shutdown
	PollInterval       time.Duration // Read/accept deadline so loops observe shutdown
	MaxFrameSize       uint64        // Largest encoded frame accepted from a client

	ModelPath          string
	ConfigPath         string
	DetectionThreshold float64
	MaxDetections      int
	DetectLabels       []string // Empty means every label the model knows

	ChunkSize   int           // UDP send chunk payload size
	ChunkDelay  time.Duration // Pause between UDP send chunks
	SendTimeout time.Duration // Dial and write timeout of a TCP send

	Save          bool // Persist captured crops before transmitting
	Show          bool // Publish annotated frames to preview viewers
	ScreenshotDir string
	DBPath        string
	PreviewAddr   string // Empty disables the HTTP surface
	APIToken      string // Required on HTTP requests when set

	LogDirectory string
	LogLevel     string
}

// Load reads .env (when present), the optional config file and the environment.
// Values bound to command-line flags on v take precedence.
func Load(v *viper.Viper) (*Config, error) {
	_ = godotenv.Load()

	if v == nil {
		v = viper.New()
	}
	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		Transport:          strings.ToLower(v.GetString("transport")),
		QueueSize:          v.GetInt("queue_size"),
		ShutdownTimeout:    v.GetDuration("shutdown_timeout"),
		PollInterval:       v.GetDuration("poll_interval"),
		MaxFrameSize:       v.GetUint64("max_frame_size"),
		ModelPath:          v.GetString("model_path"),
		ConfigPath:         v.GetString("config_path"),
		DetectionThreshold: v.GetFloat64("detection_threshold"),
		MaxDetections:      v.GetInt("max_detections"),
		DetectLabels:       splitList(v.GetStringSlice("detect_labels")),
		ChunkSize:          v.GetInt("chunk_size"),
		ChunkDelay:         v.GetDuration("chunk_delay"),
		SendTimeout:        v.GetDuration("send_timeout"),
		Save:               v.GetBool("save"),
		Show:               v.GetBool("show"),
		ScreenshotDir:      v.GetString("screenshot_dir"),
		DBPath:             v.GetString("db_path"),
		PreviewAddr:        v.GetString("preview_addr"),
		APIToken:           v.GetString("api_token"),
		LogDirectory:       v.GetString("log_dir"),
		LogLevel:           v.GetString("log_level"),
	}

	// Ports and capture interval follow the transport unless given explicitly.
	cfg.ReceiveAddr = v.GetString("receive_addr")
	cfg.SendAddr = v.GetString("send_addr")
	cfg.MinCaptureInterval = v.GetDuration("min_capture_interval")
	applyTransportDefaults(cfg)

	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.ScreenshotDir, "captures.db")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("transport", TransportTCP)
	v.SetDefault("queue_size", 1)
	v.SetDefault("shutdown_timeout", 2*time.Second)
	v.SetDefault("poll_interval", time.Second)
	v.SetDefault("max_frame_size", 64<<20)
	v.SetDefault("model_path", filepath.Join(".", "models", "frozen_inference_graph.pb"))
	v.SetDefault("config_path", filepath.Join(".", "models", "ssd_mobilenet_v1_coco_2017_11_17.pbtxt"))
	v.SetDefault("detection_threshold", 0.10)
	v.SetDefault("max_detections", 1)
	v.SetDefault("chunk_size", 65507-100)
	v.SetDefault("chunk_delay", time.Millisecond)
	v.SetDefault("send_timeout", time.Second)
	v.SetDefault("screenshot_dir", filepath.Join(".", "screenshots"))
	v.SetDefault("preview_addr", ":8080")
	v.SetDefault("log_dir", filepath.Join(".", "logs"))
	v.SetDefault("log_level", "info")
}

func applyTransportDefaults(cfg *Config) {
	switch cfg.Transport {
	case TransportUDP:
		cfg.ReceiveAddr = orDefault(cfg.ReceiveAddr, DefaultUDPReceiveAddr)
		cfg.SendAddr = orDefault(cfg.SendAddr, DefaultUDPSendAddr)
		if cfg.MinCaptureInterval == 0 {
			cfg.MinCaptureInterval = DefaultUDPMinCaptureInterval
		}
	default:
		cfg.ReceiveAddr = orDefault(cfg.ReceiveAddr, DefaultTCPReceiveAddr)
		cfg.SendAddr = orDefault(cfg.SendAddr, DefaultTCPSendAddr)
		if cfg.MinCaptureInterval == 0 {
			cfg.MinCaptureInterval = DefaultTCPMinCaptureInterval
		}
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Transport != TransportTCP && c.Transport != TransportUDP {
		errs = append(errs, fmt.Errorf("transport must be %q or %q, got %q", TransportTCP, TransportUDP, c.Transport))
	}
	if c.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("queue size must be at least 1, got %d", c.QueueSize))
	}
	if c.MinCaptureInterval < 0 {
		errs = append(errs, fmt.Errorf("min capture interval must not be negative"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll interval must be positive"))
	}
	if c.MaxFrameSize == 0 {
		errs = append(errs, fmt.Errorf("max frame size must be positive"))
	}
	if c.ChunkSize <= 0 || c.ChunkSize > 65507-4 {
		errs = append(errs, fmt.Errorf("chunk size must be in (0, %d], got %d", 65507-4, c.ChunkSize))
	}
	return errors.Join(errs...)
}

func orDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

// splitList accepts both repeated values and a single comma separated env value.
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
