package handler

import (
	"encoding/json"
	"net/http"

	"docdetect/internal/logger"
)

// StatusProvider reports live service counters. The value is encoded as JSON.
type StatusProvider interface {
	Status() any
}

// StatusHandler serves the provider's current status.
func StatusHandler(provider StatusProvider, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		if err := json.NewEncoder(w).Encode(provider.Status()); err != nil {
			logger.Error("Error encoding status: %v", err)
		}
	}
}
