package storage

import (
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"docdetect/internal/logger"
	"docdetect/internal/model"
	"docdetect/internal/repository"

	"github.com/google/uuid"
)

// ErrInvalidFileName is returned for files not named {label}_{index}_{timestamp}.png.
var ErrInvalidFileName = errors.New("invalid screenshot file name")

// ReindexResult summarizes a Reindex run.
type ReindexResult struct {
	Added   int
	Existed int
	Skipped int
}

// ParseFileName is the inverse of FileName. Timestamps are read in local time,
// as they were written.
func ParseFileName(name string) (label string, index int, ts time.Time, err error) {
	base, ok := strings.CutSuffix(name, ".png")
	if !ok || len(base) < len(TimestampLayout)+4 {
		return "", 0, time.Time{}, ErrInvalidFileName
	}

	stamp := base[len(base)-len(TimestampLayout):]
	ts, err = time.ParseInLocation(TimestampLayout, stamp, time.Local)
	if err != nil {
		return "", 0, time.Time{}, fmt.Errorf("%w: %v", ErrInvalidFileName, err)
	}

	rest, ok := strings.CutSuffix(base[:len(base)-len(TimestampLayout)], "_")
	if !ok {
		return "", 0, time.Time{}, ErrInvalidFileName
	}
	sep := strings.LastIndexByte(rest, '_')
	if sep <= 0 {
		return "", 0, time.Time{}, ErrInvalidFileName
	}
	index, err = strconv.Atoi(rest[sep+1:])
	if err != nil || index < 0 {
		return "", 0, time.Time{}, ErrInvalidFileName
	}
	return rest[:sep], index, ts, nil
}

// Reindex records every screenshot in dir that the capture log does not know yet.
// Capture IDs are derived from the file name, so running it twice adds nothing.
func Reindex(dir string, repo repository.CaptureRepository, logger *logger.Logger) (ReindexResult, error) {
	var result ReindexResult

	files, err := os.ReadDir(dir)
	if err != nil {
		return result, fmt.Errorf("failed to read screenshot directory: %w", err)
	}

	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".png" {
			continue
		}

		label, index, ts, err := ParseFileName(file.Name())
		if err != nil {
			logger.Warning("Skipping %s: %v", file.Name(), err)
			result.Skipped++
			continue
		}

		id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(file.Name())).String()
		existing, err := repo.GetByCaptureID(id)
		if err != nil {
			return result, err
		}
		if existing != nil {
			result.Existed++
			continue
		}

		path := filepath.Join(dir, file.Name())
		record := &model.Capture{
			CaptureID:   id,
			Label:       label,
			RegionIndex: index,
			FilePath:    path,
			Timestamp:   ts.UTC(),
		}
		if err := fillImageInfo(path, record); err != nil {
			logger.Warning("Skipping %s: %v", file.Name(), err)
			result.Skipped++
			continue
		}

		if _, err := repo.Insert(record); err != nil {
			return result, fmt.Errorf("failed to record %s: %w", file.Name(), err)
		}
		result.Added++
	}

	return result, nil
}

func fillImageInfo(path string, record *model.Capture) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return fmt.Errorf("not a readable PNG: %w", err)
	}

	record.FileSize = info.Size()
	record.Width = cfg.Width
	record.Height = cfg.Height
	return nil
}
