package vision

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sort"
	"sync"

	"docdetect/internal/config"
	"docdetect/internal/dto"
	"docdetect/internal/frame"
	"docdetect/internal/logger"

	"gocv.io/x/gocv"
)

// ErrNotLoaded is returned by Detect before Load finished successfully.
var ErrNotLoaded = errors.New("detection network not initialized")

// Detector runs an SSD network through OpenCV's dnn module. The network is
// loaded in the background; Ready closes once loading finished either way.
type Detector struct {
	modelPath     string
	configPath    string
	threshold     float64
	maxDetections int
	labels        map[string]struct{}
	logger        *logger.Logger

	loadOnce sync.Once
	ready    chan struct{}
	err      error

	mu     sync.Mutex
	net    gocv.Net
	loaded bool
}

// NewDetector creates a detector for cfg.ModelPath/cfg.ConfigPath. Call Load to start loading.
func NewDetector(cfg *config.Config, logger *logger.Logger) *Detector {
	labels := make(map[string]struct{}, len(cfg.DetectLabels))
	for _, label := range cfg.DetectLabels {
		labels[label] = struct{}{}
	}

	return &Detector{
		modelPath:     cfg.ModelPath,
		configPath:    cfg.ConfigPath,
		threshold:     cfg.DetectionThreshold,
		maxDetections: cfg.MaxDetections,
		labels:        labels,
		logger:        logger,
		ready:         make(chan struct{}),
	}
}

// Load starts loading the network on a background goroutine. Subsequent calls are no-ops.
func (d *Detector) Load() {
	d.loadOnce.Do(func() {
		go func() {
			defer close(d.ready)
			if err := d.initializeNet(); err != nil {
				d.err = err
				d.logger.Error("Could not initialize detection network: %v", err)
			}
		}()
	})
}

// Ready is closed once loading finished, successfully or not.
func (d *Detector) Ready() <-chan struct{} {
	return d.ready
}

// Err reports the load failure. Only meaningful after Ready is closed.
func (d *Detector) Err() error {
	select {
	case <-d.ready:
		return d.err
	default:
		return nil
	}
}

// initializeNet loads the DNN network and sets backend/target preferences.
func (d *Detector) initializeNet() error {
	if _, err := os.Stat(d.modelPath); err != nil {
		return fmt.Errorf("model file not found: %s", d.modelPath)
	}
	if _, err := os.Stat(d.configPath); err != nil {
		return fmt.Errorf("config file not found: %s", d.configPath)
	}

	net := gocv.ReadNet(d.modelPath, d.configPath)
	if net.Empty() {
		return fmt.Errorf("failed to load network from %s", d.modelPath)
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return fmt.Errorf("failed to set preferable backend or target")
	}

	d.mu.Lock()
	d.net = net
	d.loaded = true
	d.mu.Unlock()

	d.logger.Info("Detection network initialized from %s", d.modelPath)
	return nil
}

// Detect returns the regions above the confidence threshold, best first,
// limited to the configured maximum.
func (d *Detector) Detect(img frame.Image) ([]dto.DetectionResult, error) {
	f, ok := img.(*Frame)
	if !ok {
		return nil, fmt.Errorf("unsupported image type %T", img)
	}

	select {
	case <-d.ready:
	default:
		return nil, ErrNotLoaded
	}
	if d.err != nil {
		return nil, ErrNotLoaded
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.loaded {
		return nil, ErrNotLoaded
	}

	mat := f.Mat()
	blob := gocv.BlobFromImage(mat, 1.0/127.5, image.Pt(300, 300), gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	// Rows: [batch_id, class_id, confidence, x1, y1, x2, y2], coordinates normalized.
	rows := output.Reshape(1, output.Total()/7)
	defer rows.Close()

	cols, height := float32(mat.Cols()), float32(mat.Rows())

	var results []dto.DetectionResult
	for i := 0; i < rows.Rows(); i++ {
		confidence := float64(rows.GetFloatAt(i, 2))
		if confidence < d.threshold {
			continue
		}

		label := classLabel(int(rows.GetFloatAt(i, 1)))
		if !d.wants(label) {
			continue
		}

		x := int(rows.GetFloatAt(i, 3) * cols)
		y := int(rows.GetFloatAt(i, 4) * height)
		results = append(results, dto.DetectionResult{
			Label:      label,
			Confidence: confidence,
			X:          x,
			Y:          y,
			Width:      int(rows.GetFloatAt(i, 5)*cols) - x,
			Height:     int(rows.GetFloatAt(i, 6)*height) - y,
		})
	}

	return limit(results, d.maxDetections), nil
}

// Close releases the network.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.loaded {
		return nil
	}
	d.loaded = false
	return d.net.Close()
}

func (d *Detector) wants(label string) bool {
	if len(d.labels) == 0 {
		return true
	}
	_, ok := d.labels[label]
	return ok
}

// limit keeps the n most confident results, n <= 0 keeps all.
func limit(results []dto.DetectionResult, n int) []dto.DetectionResult {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Confidence > results[j].Confidence
	})
	if n > 0 && len(results) > n {
		results = results[:n]
	}
	return results
}

// classLabel maps COCO class IDs of the SSD model to labels.
func classLabel(classID int) string {
	labels := map[int]string{
		1:  "person",
		62: "chair",
		63: "couch",
		67: "dining table",
		72: "tv",
		73: "laptop",
		76: "keyboard",
		77: "cell phone",
		84: "book",
	}

	if label, exists := labels[classID]; exists {
		return label
	}
	return fmt.Sprintf("class%d", classID)
}
