package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"docdetect/internal/logger"
)

var teapot = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusTeapot)
})

func TestAuthMiddleware(t *testing.T) {
	handler := AuthMiddleware("secret")(teapot)

	tests := []struct {
		name     string
		target   string
		header   string
		expected int
	}{
		{"no token", "/api/status", "", http.StatusUnauthorized},
		{"wrong token", "/api/status?token=nope", "", http.StatusUnauthorized},
		{"query token", "/api/status?token=secret", "", http.StatusTeapot},
		{"bearer token", "/api/status", "Bearer secret", http.StatusTeapot},
		{"wrong bearer", "/api/status?token=secret", "Bearer nope", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.expected {
				t.Errorf("Expected %d, got %d", tt.expected, rec.Code)
			}
		})
	}
}

func TestAuthMiddleware_DisabledWithoutToken(t *testing.T) {
	rec := httptest.NewRecorder()
	AuthMiddleware("")(teapot).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("Expected request to pass through, got %d", rec.Code)
	}
}

func TestLoggingMiddleware_KeepsStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	LoggingMiddleware(logger.NewDiscard())(teapot).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("Expected %d, got %d", http.StatusTeapot, rec.Code)
	}
}
