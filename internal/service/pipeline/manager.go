// Package pipeline consumes decoded frames, runs detection and hands the
// crops chosen by the capture policy to storage and the sender.
package pipeline

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"docdetect/internal/config"
	"docdetect/internal/dto"
	"docdetect/internal/frame"
	"docdetect/internal/logger"
	"docdetect/internal/queue"
	"docdetect/internal/service/capture"

	"github.com/google/uuid"
)

// StatusEvery is how many frames pass between status log lines.
const StatusEvery = 20

var (
	// ErrDetectorUnavailable is returned by Run when the model failed to load.
	ErrDetectorUnavailable = errors.New("detector unavailable")
	// ErrAlreadyRunning is returned by a second concurrent Run.
	ErrAlreadyRunning = errors.New("pipeline is already running")
)

// Detector finds regions of interest in a frame. Detect is only called after
// Ready is closed and Err returned nil.
type Detector interface {
	Ready() <-chan struct{}
	Err() error
	Detect(img frame.Image) ([]dto.DetectionResult, error)
}

// Dispatcher sends a capture without blocking the caller.
type Dispatcher interface {
	Dispatch(ctx context.Context, capture dto.CapturedImage)
}

// Storage persists a capture before it is sent.
type Storage interface {
	Persist(capture *dto.CapturedImage) error
}

// Annotator renders a preview image of a frame and its detections.
type Annotator interface {
	Annotate(img frame.Image, detections []dto.DetectionResult, fps float64) ([]byte, error)
}

// Broadcaster delivers preview messages to viewers.
type Broadcaster interface {
	Broadcast(message []byte)
}

// Stats is a snapshot of pipeline counters.
type Stats struct {
	Running      bool        `json:"running"`
	Frames       uint64      `json:"frames"`
	DecodeErrors uint64      `json:"decode_errors"`
	DetectErrors uint64      `json:"detect_errors"`
	Captures     uint64      `json:"captures"`
	LastCapture  time.Time   `json:"last_capture,omitempty"`
	Queue        queue.Stats `json:"queue"`
}

// Manager owns the frame queue and the capture policy. Receivers call
// HandleCameraPayload; a single goroutine calls Run.
type Manager struct {
	decoder    frame.Decoder
	detector   Detector
	dispatcher Dispatcher
	storage    Storage
	annotator  Annotator
	preview    Broadcaster
	logger     *logger.Logger
	now        func() time.Time
	newID      func() string

	queue   *queue.Queue[frame.Image]
	tracker *capture.Tracker

	running      atomic.Bool
	frames       atomic.Uint64
	decodeErrors atomic.Uint64
	detectErrors atomic.Uint64
	captures     atomic.Uint64
	lastCapture  atomic.Int64
}

// Option configures optional Manager collaborators.
type Option func(*Manager)

// WithStorage persists every accepted capture before it is dispatched.
func WithStorage(storage Storage) Option {
	return func(m *Manager) { m.storage = storage }
}

// WithPreview publishes an annotated preview of every processed frame.
func WithPreview(annotator Annotator, preview Broadcaster) Option {
	return func(m *Manager) {
		m.annotator = annotator
		m.preview = preview
	}
}

// WithClock replaces time.Now for capture decisions.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIDGenerator replaces the capture id generator.
func WithIDGenerator(newID func() string) Option {
	return func(m *Manager) { m.newID = newID }
}

// NewManager creates a pipeline with a queue of cfg.QueueSize frames.
func NewManager(cfg *config.Config, decoder frame.Decoder, detector Detector, dispatcher Dispatcher, logger *logger.Logger, opts ...Option) *Manager {
	m := &Manager{
		decoder:    decoder,
		detector:   detector,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
		newID:      uuid.NewString,
		tracker:    capture.NewTracker(cfg.MinCaptureInterval),
	}
	m.queue = queue.New(cfg.QueueSize, m.release)

	for _, opt := range opts {
		opt(m)
	}

	m.logger.Info("Pipeline ready - queue size %d, min capture interval %v", m.queue.Cap(), cfg.MinCaptureInterval)
	return m
}

// HandleCameraPayload decodes a frame and queues it, evicting the oldest
// pending frame when the queue is full. Undecodable payloads are dropped.
func (m *Manager) HandleCameraPayload(payload []byte) {
	img, err := m.decoder.Decode(payload)
	if err != nil {
		m.decodeErrors.Add(1)
		m.logger.Warning("Failed to decode frame (%d bytes): %v", len(payload), err)
		return
	}

	if m.queue.Enqueue(img) {
		m.logger.Debug("Dropped stale frame, consumer is behind")
	}
}

// Run consumes frames until the queue is stopped or ctx is cancelled.
// It waits for the detector first: if ctx is cancelled while the model is
// still loading, Run returns nil and a later load failure is never reported.
// A failed load seen before cancellation returns ErrDetectorUnavailable.
func (m *Manager) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer m.running.Store(false)

	stop := context.AfterFunc(ctx, m.queue.Stop)
	defer stop()

	select {
	case <-m.detector.Ready():
	case <-ctx.Done():
		return nil
	}
	if err := m.detector.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrDetectorUnavailable, err)
	}

	m.logger.Info("Detection pipeline started")
	last := time.Now()

	for {
		img, ok := m.queue.Dequeue()
		if !ok {
			m.logger.Info("Detection pipeline stopped after %d frames", m.frames.Load())
			return nil
		}

		fps := 0.0
		if now := time.Now(); now.After(last) {
			fps = 1 / now.Sub(last).Seconds()
			last = now
		}

		m.processFrame(ctx, img, fps)
		m.release(img)
	}
}

// Stop drains the queue and releases Run. Safe to call more than once.
func (m *Manager) Stop() {
	m.queue.Stop()
}

func (m *Manager) Stats() Stats {
	stats := Stats{
		Running:      m.running.Load(),
		Frames:       m.frames.Load(),
		DecodeErrors: m.decodeErrors.Load(),
		DetectErrors: m.detectErrors.Load(),
		Captures:     m.captures.Load(),
		Queue:        m.queue.Stats(),
	}
	if last := m.lastCapture.Load(); last != 0 {
		stats.LastCapture = time.Unix(0, last)
	}
	return stats
}

func (m *Manager) processFrame(ctx context.Context, img frame.Image, fps float64) {
	count := m.frames.Add(1)

	detections, err := m.detector.Detect(img)
	if err != nil {
		m.detectErrors.Add(1)
		m.logger.Error("Object detection failed: %v", err)
		return
	}

	now := m.now()
	for i, detection := range detections {
		m.processRegion(ctx, img, detection, i, now)
	}

	if count%StatusEvery == 0 {
		m.logger.Info("Processed frame %d, queue size: %d", count, m.queue.Len())
	}

	if m.preview != nil {
		m.publishPreview(img, detections, count, fps)
	}
}

// processRegion applies the capture policy to one detected region.
func (m *Manager) processRegion(ctx context.Context, img frame.Image, detection dto.DetectionResult, index int, now time.Time) {
	roi, err := img.Crop(detection.Rect())
	if err != nil {
		if !errors.Is(err, frame.ErrEmptyCrop) {
			m.logger.Error("Failed to crop %s region: %v", detection.Label, err)
		}
		return
	}
	defer roi.Close()

	score, err := roi.Sharpness()
	if err != nil {
		m.logger.Error("Failed to measure sharpness of %s region: %v", detection.Label, err)
		return
	}

	key := capture.Key{Label: detection.Label, Index: index}
	previous, seen := m.tracker.Previous(key)
	if !m.tracker.ShouldCapture(key, score, now) {
		m.logger.Debug("Skipping %s: sharpness %.2f, best %.2f", key, score, previous)
		return
	}

	data, err := roi.EncodePNG()
	if err != nil {
		m.logger.Error("Failed to encode %s crop: %v", key, err)
		return
	}

	captured := dto.CapturedImage{
		ID:          m.newID(),
		Label:       detection.Label,
		RegionIndex: index,
		Score:       score,
		Confidence:  detection.Confidence,
		Width:       roi.Width(),
		Height:      roi.Height(),
		Data:        data,
		Timestamp:   now,
	}

	if m.storage != nil {
		if err := m.storage.Persist(&captured); err != nil {
			m.logger.Error("Failed to persist capture %s: %v", captured.ID, err)
		}
	}

	m.dispatcher.Dispatch(ctx, captured)
	m.tracker.RecordCapture(key, score, now)
	m.captures.Add(1)
	m.lastCapture.Store(now.UnixNano())

	if seen {
		m.logger.Info("Captured %s (%s): sharpness %.2f, previous %.2f", key, captured.ID, score, previous)
	} else {
		m.logger.Info("Captured %s (%s): sharpness %.2f, first capture", key, captured.ID, score)
	}
}

func (m *Manager) publishPreview(img frame.Image, detections []dto.DetectionResult, count uint64, fps float64) {
	data, err := m.annotator.Annotate(img, detections, fps)
	if err != nil {
		m.logger.Error("Failed to render preview: %v", err)
		return
	}

	message, err := json.Marshal(dto.PreviewMessage{
		Frame:      count,
		FPS:        fps,
		Image:      base64.StdEncoding.EncodeToString(data),
		Detections: detections,
	})
	if err != nil {
		m.logger.Error("Failed to marshal preview: %v", err)
		return
	}
	m.preview.Broadcast(message)
}

func (m *Manager) release(img frame.Image) {
	if err := img.Close(); err != nil {
		m.logger.Warning("Failed to release frame: %v", err)
	}
}
