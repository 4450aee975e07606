package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"docdetect/internal/model"
)

const captureColumns = `id, capture_id, label, region_index, score, confidence, width, height, filepath, filesize, timestamp`

// CaptureRepository implements repository.CaptureRepository for SQLite.
type CaptureRepository struct {
	db *DB
}

// NewCaptureRepository creates a new SQLite capture repository.
func NewCaptureRepository(db *DB) *CaptureRepository {
	return &CaptureRepository{db: db}
}

// Insert adds a new capture record to the database.
func (r *CaptureRepository) Insert(c *model.Capture) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`
		INSERT INTO captures (capture_id, label, region_index, score, confidence, width, height, filepath, filesize, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.CaptureID, c.Label, c.RegionIndex, c.Score, c.Confidence, c.Width, c.Height, c.FilePath, c.FileSize, c.Timestamp)
	if err != nil {
		return 0, fmt.Errorf("failed to insert capture: %w", err)
	}

	return result.LastInsertId()
}

// GetByCaptureID retrieves a capture by its public id. Returns nil when absent.
func (r *CaptureRepository) GetByCaptureID(captureID string) (*model.Capture, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	row := r.db.Conn().QueryRow(`SELECT `+captureColumns+` FROM captures WHERE capture_id = ?`, captureID)
	c, err := scanCapture(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get capture: %w", err)
	}
	return c, nil
}

// GetRecent returns the newest captures first.
func (r *CaptureRepository) GetRecent(limit int) ([]model.Capture, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Conn().Query(`SELECT `+captureColumns+` FROM captures ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query captures: %w", err)
	}
	defer rows.Close()

	var captures []model.Capture
	for rows.Next() {
		c, err := scanCapture(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan capture: %w", err)
		}
		captures = append(captures, *c)
	}

	return captures, rows.Err()
}

// GetTotalCount returns the number of recorded captures.
func (r *CaptureRepository) GetTotalCount() (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var count int
	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM captures`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count captures: %w", err)
	}
	return count, nil
}

// GetCountByLabel returns capture counts per label.
func (r *CaptureRepository) GetCountByLabel() (map[string]int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`SELECT label, COUNT(*) FROM captures GROUP BY label`)
	if err != nil {
		return nil, fmt.Errorf("failed to count captures by label: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			label string
			count int
		)
		if err := rows.Scan(&label, &count); err != nil {
			return nil, fmt.Errorf("failed to scan label count: %w", err)
		}
		counts[label] = count
	}
	return counts, rows.Err()
}

// DeleteOlderThan removes captures recorded before cutoff.
func (r *CaptureRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`DELETE FROM captures WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete captures: %w", err)
	}
	return result.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCapture(s scanner) (*model.Capture, error) {
	var c model.Capture
	err := s.Scan(&c.ID, &c.CaptureID, &c.Label, &c.RegionIndex, &c.Score, &c.Confidence,
		&c.Width, &c.Height, &c.FilePath, &c.FileSize, &c.Timestamp)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
