package materializer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/internal/relay"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/logger"
)

const maxExtLength = 8

// Fetch downloads the referenced document into a uniquely named temp file
// and exposes it as the document body.
type Fetch struct {
	client   *http.Client
	timeout  time.Duration
	tempDir  string
	maxBytes int64
	logger   *slog.Logger
}

// NewFetch creates a Fetch materializer. A nil client means
// http.DefaultClient.
func NewFetch(cfg config.FetchConfig, maxBytes int64, client *http.Client) *Fetch {
	if client == nil {
		client = http.DefaultClient
	}
	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Fetch{
		client:   client,
		timeout:  cfg.Timeout,
		tempDir:  tempDir,
		maxBytes: maxBytes,
		logger:   logger.WithComponent("fetch-materializer"),
	}
}

func (f *Fetch) Strategy() relay.Strategy {
	return relay.StrategyFetch
}

func (f *Fetch) Materialize(ctx context.Context, ref relay.Reference) (*Document, error) {
	if ref.URL == "" {
		return nil, apperrors.MissingDocument("Please provide a documents URL")
	}
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.URL, nil)
	if err != nil {
		return nil, apperrors.UpstreamFetchFailed(err.Error())
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, apperrors.UpstreamFetchFailed(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperrors.UpstreamFetchFailed(fmt.Sprintf("document server returned %d", resp.StatusCode))
	}
	if f.maxBytes > 0 && resp.ContentLength > f.maxBytes {
		return nil, apperrors.PayloadTooLarge(f.maxBytes)
	}

	ext := documentExt(req.URL, resp.Header.Get("Content-Type"))
	tempPath := filepath.Join(f.tempDir, TempName(ext))
	file, err := os.OpenFile(tempPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, apperrors.LocalStorageFailed(err.Error())
	}
	discard := func() {
		file.Close()
		if rmErr := os.Remove(tempPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			f.logger.Warn("failed to remove partial temp file", "path", tempPath, "error", rmErr)
		}
	}

	n, err := f.copyBody(file, resp.Body)
	if err != nil {
		discard()
		return nil, err
	}
	if err := file.Sync(); err != nil {
		discard()
		return nil, apperrors.LocalStorageFailed(err.Error())
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		discard()
		return nil, apperrors.LocalStorageFailed(err.Error())
	}

	name := originName(req.URL, ext)
	f.logger.Debug("document staged", "path", tempPath, "bytes", n)
	return &Document{
		Body:        file,
		ContentType: contentType(resp.Header.Get("Content-Type"), name),
		SizeBytes:   n,
		OriginName:  name,
		tempPath:    tempPath,
		release: func() error {
			file.Close()
			if err := os.Remove(tempPath); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("removing temp file %s: %w", tempPath, err)
			}
			return nil
		},
	}, nil
}

// copyBody streams src into dst, telling read failures (upstream) from write
// failures (local disk) and enforcing the size limit.
func (f *Fetch) copyBody(dst *os.File, src io.Reader) (int64, error) {
	limited := src
	if f.maxBytes > 0 {
		limited = io.LimitReader(src, f.maxBytes+1)
	}
	w := &trackingWriter{w: dst}
	n, err := io.Copy(w, limited)
	if w.err != nil {
		return n, apperrors.LocalStorageFailed(w.err.Error())
	}
	if err != nil {
		return n, apperrors.UpstreamFetchFailed(err.Error())
	}
	if f.maxBytes > 0 && n > f.maxBytes {
		return n, apperrors.PayloadTooLarge(f.maxBytes)
	}
	return n, nil
}

type trackingWriter struct {
	w   io.Writer
	err error
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if err != nil {
		t.err = err
	}
	return n, err
}

// TempName returns a collision-free staging file name: nanosecond timestamp
// plus a uuid fragment, keeping ext.
func TempName(ext string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%d-%s%s", time.Now().UnixNano(), id[:12], ext)
}

// documentExt prefers the URL path's extension, then one derived from the
// response content type.
func documentExt(u *url.URL, ct string) string {
	ext := strings.ToLower(path.Ext(u.Path))
	if len(ext) > 1 && len(ext) <= maxExtLength && isSafeExt(ext) {
		return ext
	}
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		switch mt {
		case "application/pdf":
			return ".pdf"
		case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
			return ".docx"
		}
	}
	return ""
}

func isSafeExt(ext string) bool {
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

func originName(u *url.URL, ext string) string {
	if base := path.Base(u.Path); base != "" && base != "/" && base != "." {
		return base
	}
	return "document" + ext
}
