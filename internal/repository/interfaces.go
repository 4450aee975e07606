package repository

import (
	"time"

	"docdetect/internal/model"
)

// CaptureRepository defines the interface for capture log operations.
type CaptureRepository interface {
	// Create operations
	Insert(capture *model.Capture) (int64, error)

	// Read operations
	GetByCaptureID(captureID string) (*model.Capture, error)
	GetRecent(limit int) ([]model.Capture, error)
	GetTotalCount() (int, error)
	GetCountByLabel() (map[string]int, error)

	// Delete operations
	DeleteOlderThan(cutoff time.Time) (int64, error)
}
