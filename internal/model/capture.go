package model

import "time"

// Capture is one accepted crop as recorded in the database.
type Capture struct {
	ID          int64     `json:"id"`
	CaptureID   string    `json:"capture_id"`
	Label       string    `json:"label"`
	RegionIndex int       `json:"region_index"`
	Score       float64   `json:"score"`
	Confidence  float64   `json:"confidence"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	FilePath    string    `json:"file_path,omitempty"`
	FileSize    int64     `json:"file_size"`
	Timestamp   time.Time `json:"timestamp"`
}
