// Package middleware provides the gateway's bearer-token gate and CORS
// handling.
package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"

	apperrors "github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/logger"
)

// Auth returns middleware that admits a request only when its Authorization
// header is exactly "Bearer <token>". Rejected requests get a 401 and never
// reach next. token must not be empty.
func Auth(token string, log *slog.Logger) func(http.Handler) http.Handler {
	if token == "" {
		panic("middleware.Auth: empty token")
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "auth")
	expected := []byte("Bearer " + token)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				reject(w, r, log, "missing")
				return
			}
			if subtle.ConstantTimeCompare([]byte(header), expected) != 1 {
				reject(w, r, log, "mismatch")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func reject(w http.ResponseWriter, r *http.Request, log *slog.Logger, reason string) {
	log.Warn("unauthorized request",
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr,
		"reason", reason,
		"request_id", logger.RequestID(r.Context()),
	)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(apperrors.Body(apperrors.Unauthorized()))
}
