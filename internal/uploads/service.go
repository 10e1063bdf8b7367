package uploads

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/internal/relay/validator"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/storage"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// ObjectStore is satisfied by *storage.S3Store.
type ObjectStore interface {
	Put(ctx context.Context, obj storage.Object) (string, error)
}

// Service uploads documents and records them.
type Service struct {
	store    ObjectStore
	registry Registry
	limits   config.UploadConfig
	metrics  *metrics.Metrics
	now      func() time.Time
	logger   *slog.Logger
}

// NewService creates a Service. registry may be nil, in which case uploads
// are not recorded and List reports ErrNotFound.
func NewService(store ObjectStore, registry Registry, limits config.UploadConfig, m *metrics.Metrics) *Service {
	return &Service{
		store:    store,
		registry: registry,
		limits:   limits,
		metrics:  m,
		now:      time.Now,
		logger:   logger.WithComponent("uploads"),
	}
}

// Limits returns the checks Upload applies to a file.
func (s *Service) Limits() config.UploadConfig {
	return s.limits
}

// HasRegistry reports whether upload records are kept.
func (s *Service) HasRegistry() bool {
	return s.registry != nil
}

// Upload validates f, stores it under a fresh key and returns the record.
// A registry failure is logged and does not fail the upload.
func (s *Service) Upload(ctx context.Context, f File) (*Record, error) {
	if err := validator.CheckFile(f.Name, int64(len(f.Data)), s.limits); err != nil {
		s.metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	key, err := s.newKey(filepath.Ext(f.Name))
	if err != nil {
		s.metrics.UploadsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("generating object key: %w", err)
	}

	log := logger.FromContext(ctx)
	url, err := s.store.Put(ctx, storage.Object{Key: key, Body: f.Data, ContentType: f.ContentType})
	if err != nil {
		s.metrics.UploadsTotal.WithLabelValues("error").Inc()
		log.Error("upload failed", "key", key, "error", err)
		return nil, apperrors.StorageFailed()
	}
	s.metrics.UploadsTotal.WithLabelValues("success").Inc()

	rec := &Record{
		Key:          key,
		URL:          url,
		OriginalName: f.Name,
		ContentType:  f.ContentType,
		Size:         int64(len(f.Data)),
		RequestID:    logger.RequestID(ctx),
		CreatedAt:    s.now().UTC(),
	}
	if s.registry != nil {
		if err := s.registry.Insert(ctx, rec); err != nil {
			log.Error("failed to record upload", "key", key, "error", err)
		}
	}
	log.Info("file uploaded", "key", key, "url", url, "size", rec.Size)
	return rec, nil
}

// List returns recorded uploads, newest first. limit is clamped to
// [1, 500] with 50 as the default.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Record, error) {
	if s.registry == nil {
		return nil, apperrors.New(apperrors.ErrNotFound, 404, "Not found").
			WithDetail("Upload registry is not configured")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	records, err := s.registry.List(ctx, limit, offset)
	if err != nil {
		logger.FromContext(ctx).Error("listing uploads failed", "error", err)
		return nil, apperrors.Internal()
	}
	return records, nil
}

// newKey builds "<unix millis>-<12 hex chars><ext>".
func (s *Service) newKey(ext string) (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d-%s%s", s.now().UnixMilli(), hex.EncodeToString(b), ext), nil
}
