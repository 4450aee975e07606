// Package capture decides which detected crops are worth capturing.
package capture

import (
	"fmt"
	"time"
)

// ImprovementFactor is how much sharper a crop must be than the best one seen for its key.
const ImprovementFactor = 1.10

// Key identifies a tracking slot: detections of the same label at the same region index.
type Key struct {
	Label string
	Index int
}

func (k Key) String() string {
	return fmt.Sprintf("%s_%d", k.Label, k.Index)
}

// Tracker keeps the best sharpness per key and the time of the last capture of any key.
//
// A Tracker is not safe for concurrent use. The pipeline consumer owns it.
type Tracker struct {
	minInterval time.Duration
	scores      map[Key]float64
	lastCapture time.Time
}

// NewTracker creates a tracker with the given freshness interval.
func NewTracker(minInterval time.Duration) *Tracker {
	return &Tracker{
		minInterval: minInterval,
		scores:      make(map[Key]float64),
	}
}

// ShouldCapture reports whether a crop for key with the given sharpness should be captured at now.
//
// It captures when the key has never been captured, when the crop is more than 10%
// sharper than the recorded best, or when MinInterval has elapsed since the last
// capture of any key, even if the crop is blurrier.
func (t *Tracker) ShouldCapture(key Key, score float64, now time.Time) bool {
	previous, seen := t.scores[key]
	if !seen {
		return true
	}
	if score > previous*ImprovementFactor {
		return true
	}
	return now.Sub(t.lastCapture) >= t.minInterval
}

// RecordCapture stores score for key and moves the global capture time to now.
func (t *Tracker) RecordCapture(key Key, score float64, now time.Time) {
	t.scores[key] = score
	t.lastCapture = now
}

// Previous returns the recorded score for key.
func (t *Tracker) Previous(key Key) (float64, bool) {
	score, ok := t.scores[key]
	return score, ok
}

// LastCapture returns the time of the most recent capture, zero if none.
func (t *Tracker) LastCapture() time.Time {
	return t.lastCapture
}

// MinInterval returns the configured freshness interval.
func (t *Tracker) MinInterval() time.Duration {
	return t.minInterval
}

// Len returns the number of tracked keys.
func (t *Tracker) Len() int {
	return len(t.scores)
}
