package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/internal/relay"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/internal/uploads"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/errors"
)

var errNoFile = apperrors.New(apperrors.ErrMissingDocument, http.StatusBadRequest, "No file provided")

// Upload stores the multipart "file" in object storage and returns its
// public URL.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.uploads == nil {
		h.writeError(w, r, apperrors.StorageFailed().WithDetail("Object storage is not configured"))
		return
	}
	limits := h.uploads.Limits()
	limitBody(w, r, limits)

	up, err := readUploadFile(r, limits)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	rec, err := h.uploads.Upload(r.Context(), uploads.File{
		Name:        up.Name,
		ContentType: up.ContentType,
		Data:        up.Data,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{
		"message": "Upload successful",
		"url":     rec.URL,
	})
}

// ListUploads returns recorded uploads, newest first.
func (h *Handler) ListUploads(w http.ResponseWriter, r *http.Request) {
	if h.uploads == nil || !h.uploads.HasRegistry() {
		h.writeError(w, r, apperrors.New(apperrors.ErrNotFound, http.StatusNotFound, "Not found").
			WithDetail("Upload registry is not configured"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	records, err := h.uploads.List(r.Context(), limit, offset)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"uploads": records,
		"count":   len(records),
	})
}

func readUploadFile(r *http.Request, limits config.UploadConfig) (*relay.Upload, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, errNoFile
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, errNoFile
		}
		if err != nil {
			return nil, bodyError(err, limits.MaxBytes)
		}
		if part.FormName() != "file" {
			part.Close()
			continue
		}
		up, err := readFilePart(part, limits)
		part.Close()
		if err != nil {
			return nil, err
		}
		return up, nil
	}
}
