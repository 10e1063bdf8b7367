// Package handler implements the gateway's HTTP endpoints: the run
// pipeline, document uploads and the run health check.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/internal/relay/pipeline"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/internal/uploads"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/logger"
)

const (
	// multipartSlack covers form fields and part headers on top of the
	// document itself.
	multipartSlack = 1 << 20
	maxFieldBytes  = 1 << 20
)

// Handler implements the gateway's HTTP endpoints. A nil pipeline puts the
// run endpoint in intake mode: requests are validated and acknowledged but
// not relayed. A nil uploads service makes upload requests fail with a
// storage error.
type Handler struct {
	pipeline *pipeline.Pipeline
	uploads  *uploads.Service
	limits   config.UploadConfig
	logger   *slog.Logger
}

// New creates a Handler.
func New(p *pipeline.Pipeline, up *uploads.Service, limits config.UploadConfig) *Handler {
	return &Handler{
		pipeline: p,
		uploads:  up,
		limits:   limits,
		logger:   logger.WithComponent("gateway-handler"),
	}
}

// RunHealth reports that the run endpoint is serving.
func (h *Handler) RunHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"message":   "Run endpoint is operational",
		"timestamp": time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
}

// limitBody caps the request body at the file limit plus room for the other
// multipart fields. A zero limit leaves the body uncapped.
func limitBody(w http.ResponseWriter, r *http.Request, limits config.UploadConfig) {
	if limits.MaxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limits.MaxBytes+multipartSlack)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeError maps err onto its status and JSON body and logs it: 4xx at
// warn, everything else at error.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	log := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "path", r.URL.Path, "status", status, "error", err)
	} else {
		log.Warn("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	h.writeJSON(w, status, apperrors.Body(err))
}
