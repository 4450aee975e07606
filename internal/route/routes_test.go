package route

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"docdetect/internal/config"
	"docdetect/internal/dto"
	"docdetect/internal/logger"
	"docdetect/internal/model"
	"docdetect/internal/repository/sqlite"
)

type staticStatus map[string]any

func (s staticStatus) Status() any { return map[string]any(s) }

func newRouter(t *testing.T, cfg *config.Config) (http.Handler, *sqlite.CaptureRepository, *logger.Logger) {
	t.Helper()
	dir := t.TempDir()

	db, err := sqlite.New(filepath.Join(dir, "captures.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	repo := sqlite.NewCaptureRepository(db)

	cfg.LogDirectory = filepath.Join(dir, "logs")
	cfg.LogLevel = "info"
	log := logger.NewLogger(cfg)

	deps := Dependencies{
		Status: staticStatus{"transport": "tcp"},
		Repo:   repo,
	}
	return SetupRoutes(cfg, deps, log), repo, log
}

func TestRoutes_Status(t *testing.T) {
	router, _, _ := newRouter(t, &config.Config{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if body["transport"] != "tcp" {
		t.Errorf("Unexpected status %v", body)
	}
}

func TestRoutes_Captures(t *testing.T) {
	router, repo, _ := newRouter(t, &config.Config{})

	png := filepath.Join(t.TempDir(), "book_0.png")
	os.WriteFile(png, []byte("png"), 0644)
	repo.Insert(&model.Capture{CaptureID: "abc", Label: "book", Score: 10, FilePath: png, Timestamp: time.Now().UTC()})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/captures?limit=5", nil))
	var data dto.CapturesData
	if err := json.NewDecoder(rec.Body).Decode(&data); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if data.Total != 1 || len(data.Captures) != 1 || data.ByLabel["book"] != 1 || data.Limit != 5 {
		t.Errorf("Unexpected captures response %+v", data)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/captures/abc", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "png" {
		t.Errorf("Expected the saved PNG, got %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/captures/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown capture, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/captures?olderThan=bogus", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid duration, got %d", rec.Code)
	}
}

func TestRoutes_Logs(t *testing.T) {
	router, _, log := newRouter(t, &config.Config{})
	log.Info("hello from the test")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/logs/info", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "hello from the test") {
		t.Errorf("Expected info log content, got %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/logs/verbose", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown level, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/logs/info/clear", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", rec.Code)
	}

	data, _ := os.ReadFile(filepath.Join(log.LogDir(), "info.log"))
	if strings.Contains(string(data), "hello from the test") {
		t.Error("Info log should be truncated")
	}
}

func TestRoutes_TokenRequired(t *testing.T) {
	router, _, _ := newRouter(t, &config.Config{APIToken: "secret"})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status?token=secret", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 with token, got %d", rec.Code)
	}
}
