package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"docdetect/internal/config"
	"docdetect/internal/dto"
	"docdetect/internal/logger"
	"docdetect/internal/model"
	"docdetect/internal/repository"
)

// TimestampLayout is the timestamp part of screenshot file names.
const TimestampLayout = "20060102_150405"

// ScreenshotService writes accepted crops to the screenshot directory and
// records them in the capture log.
type ScreenshotService struct {
	dir    string
	save   bool
	logger *logger.Logger
	repo   repository.CaptureRepository

	mu    sync.Mutex
	saved int
}

// NewScreenshotService creates the service. Files are only written when cfg.Save
// is set; repo may be nil to skip the capture log.
func NewScreenshotService(cfg *config.Config, logger *logger.Logger, repo repository.CaptureRepository) *ScreenshotService {
	return &ScreenshotService{
		dir:    cfg.ScreenshotDir,
		save:   cfg.Save,
		logger: logger,
		repo:   repo,
	}
}

// FileName builds {label}_{index}_{timestamp}.png.
func FileName(label string, index int, ts time.Time) string {
	return fmt.Sprintf("%s_%d_%s.png", sanitize(label), index, ts.Format(TimestampLayout))
}

// Persist saves the crop (when enabled) and records it. FilePath is set on
// capture once the file is written.
func (s *ScreenshotService) Persist(capture *dto.CapturedImage) error {
	if s.save {
		if err := s.writeFile(capture); err != nil {
			return err
		}
	}

	if s.repo == nil {
		return nil
	}

	record := &model.Capture{
		CaptureID:   capture.ID,
		Label:       capture.Label,
		RegionIndex: capture.RegionIndex,
		Score:       capture.Score,
		Confidence:  capture.Confidence,
		Width:       capture.Width,
		Height:      capture.Height,
		FilePath:    capture.FilePath,
		FileSize:    int64(len(capture.Data)),
		Timestamp:   capture.Timestamp,
	}
	if _, err := s.repo.Insert(record); err != nil {
		return fmt.Errorf("failed to record capture %s: %w", capture.ID, err)
	}
	return nil
}

// Saved returns how many screenshots were written.
func (s *ScreenshotService) Saved() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved
}

func (s *ScreenshotService) writeFile(capture *dto.CapturedImage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create screenshot directory: %w", err)
	}

	filename := FileName(capture.Label, capture.RegionIndex, capture.Timestamp)
	fullpath := filepath.Join(s.dir, filename)

	if err := os.WriteFile(fullpath, capture.Data, 0644); err != nil {
		return fmt.Errorf("failed to save screenshot %s: %w", filename, err)
	}

	capture.FilePath = fullpath
	s.saved++
	s.logger.Info("Saved screenshot: %s", fullpath)
	return nil
}

func sanitize(label string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '/', '\\', ':':
			return '_'
		}
		return r
	}, label)
}
