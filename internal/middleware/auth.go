package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AuthMiddleware requires the API token on every request when token is set.
// The token is accepted as a Bearer header or a "token" query parameter,
// since browser WebSocket clients cannot set headers.
func AuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !validToken(r, token) {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func validToken(r *http.Request, token string) bool {
	provided := r.URL.Query().Get("token")
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		provided = strings.TrimPrefix(header, "Bearer ")
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(token)) == 1
}
