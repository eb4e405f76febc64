package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// APIKeyMiddleware validates the device ingest key. Devices send the
// key in the X-API-Key header; an empty configured key disables the
// check so local setups work without provisioning.
type APIKeyMiddleware struct {
	Key string
}

// NewAPIKeyMiddleware constructs ingest auth middleware.
func NewAPIKeyMiddleware(key string) *APIKeyMiddleware {
	return &APIKeyMiddleware{Key: key}
}

// Wrap enforces API key validation.
func (m *APIKeyMiddleware) Wrap(next http.Handler) http.Handler {
	if m == nil || m.Key == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		provided := strings.TrimSpace(r.Header.Get("X-API-Key"))
		if provided == "" {
			http.Error(w, "missing api key", http.StatusUnauthorized)
			return
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(m.Key)) != 1 {
			http.Error(w, "invalid api key", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
