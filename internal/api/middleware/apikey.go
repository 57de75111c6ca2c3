package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// NewAPIKeyAuth gates the API behind a single operator key.
//
// When a key is configured (RESEARCH_API_KEY), all requests under /api/v1
// must present it via:
//   - Authorization: Bearer <key>
//   - X-API-Key: <key>
//
// /health and /version stay public so probes keep working. An empty key
// disables the gate entirely, which is the zero-config default for local
// use.
func NewAPIKeyAuth(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" || isPublicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			candidate := extractAPIKey(r)
			if candidate == "" {
				respondUnauthorized(w, "API key required. Set Authorization: Bearer <key> or X-API-Key header.")
				return
			}

			if subtle.ConstantTimeCompare([]byte(candidate), []byte(key)) != 1 {
				respondUnauthorized(w, "Invalid API key.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func extractAPIKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get("X-API-Key")
}

func isPublicPath(path string) bool {
	return path == "/health" || path == "/version"
}

func respondUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="research-fetch"`)
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": msg,
	})
}
