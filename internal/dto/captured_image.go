package dto

import "time"

// CapturedImage is an accepted crop on its way to disk and the downstream receiver.
type CapturedImage struct {
	ID          string
	Label       string
	RegionIndex int
	Score       float64
	Confidence  float64
	Width       int
	Height      int
	Data        []byte // PNG encoded crop
	Timestamp   time.Time
	FilePath    string // Set once persisted
}
