// internal/api/middleware/auth.go
package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/newthinker/dzibridge/internal/api/response"
	"github.com/newthinker/dzibridge/internal/core"
)

// APIKeyAuth returns middleware that validates the X-API-Key header, or a
// bearer token in Authorization. If apiKey is empty, authentication is disabled.
func APIKeyAuth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			providedKey := providedKey(r)
			if providedKey == "" {
				response.Error(w, http.StatusUnauthorized,
					core.WrapError(core.ErrUnauthorized, errors.New("api key missing")))
				return
			}

			// Constant-time comparison to prevent timing attacks
			if subtle.ConstantTimeCompare([]byte(providedKey), []byte(apiKey)) != 1 {
				response.Error(w, http.StatusUnauthorized,
					core.WrapError(core.ErrUnauthorized, errors.New("api key rejected")))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func providedKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}
