package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"docdetect/internal/dto"
	"docdetect/internal/logger"
	"docdetect/internal/repository"

	"github.com/gorilla/mux"
)

// GetCapturesHandler returns the newest captures from the capture log.
func GetCapturesHandler(repo repository.CaptureRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := atoiDefault(r.URL.Query().Get("limit"), 50)

		captures, err := repo.GetRecent(limit)
		if err != nil {
			logger.Error("Error querying captures from database: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		total, err := repo.GetTotalCount()
		if err != nil {
			logger.Error("Error counting captures: %v", err)
			total = len(captures)
		}

		byLabel, err := repo.GetCountByLabel()
		if err != nil {
			logger.Error("Error counting captures by label: %v", err)
		}

		data := dto.CapturesData{
			Captures: captures,
			Total:    total,
			ByLabel:  byLabel,
			Limit:    limit,
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(data); err != nil {
			logger.Error("Error encoding JSON response: %v", err)
		}
	}
}

// ViewCaptureHandler serves the saved PNG of the capture named by the {id} route variable.
func ViewCaptureHandler(repo repository.CaptureRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		capture, err := repo.GetByCaptureID(id)
		if err != nil {
			logger.Error("Error loading capture %s: %v", id, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if capture == nil || capture.FilePath == "" {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		http.ServeFile(w, r, capture.FilePath)
	}
}

// PruneCapturesHandler deletes capture records older than the "olderThan" duration (default 24h).
// Screenshot files are left on disk.
func PruneCapturesHandler(repo repository.CaptureRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		age := 24 * time.Hour
		if v := r.URL.Query().Get("olderThan"); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil || parsed <= 0 {
				http.Error(w, "olderThan must be a positive duration", http.StatusBadRequest)
				return
			}
			age = parsed
		}

		deleted, err := repo.DeleteOlderThan(time.Now().Add(-age))
		if err != nil {
			logger.Error("Error pruning captures: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		logger.Info("Pruned %d capture records older than %v", deleted, age)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int64{"deleted": deleted})
	}
}

// atoiDefault converts string to int or returns a default when conversion fails or value <= 0.
func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}
