package materializer

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/internal/relay"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/errors"
)

var testLimits = config.UploadConfig{MaxBytes: 64, AllowedExtensions: []string{".pdf", ".docx"}}

func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestUpload_Materialize(t *testing.T) {
	m := NewUpload(testLimits)
	require.Equal(t, relay.StrategyUpload, m.Strategy())

	doc, err := m.Materialize(context.Background(), relay.Reference{Upload: &relay.Upload{
		Name: "policy.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4 body"),
	}})
	require.NoError(t, err)
	defer doc.Release()

	require.False(t, doc.IsReference())
	require.Empty(t, doc.TempPath())
	require.Equal(t, int64(13), doc.SizeBytes)
	require.Equal(t, "policy.pdf", doc.OriginName)
	body, err := io.ReadAll(doc.Body)
	require.NoError(t, err)
	require.Equal(t, "%PDF-1.4 body", string(body))
}

func TestUpload_Rejections(t *testing.T) {
	m := NewUpload(testLimits)

	_, err := m.Materialize(context.Background(), relay.Reference{Upload: &relay.Upload{Name: "a.exe", Data: []byte("x")}})
	require.ErrorIs(t, err, apperrors.ErrUnsupportedFileType)

	_, err = m.Materialize(context.Background(), relay.Reference{Upload: &relay.Upload{Name: "a.pdf", Data: make([]byte, 65)}})
	require.ErrorIs(t, err, apperrors.ErrPayloadTooLarge)

	_, err = m.Materialize(context.Background(), relay.Reference{URL: "https://example.com/a.pdf"})
	require.ErrorIs(t, err, apperrors.ErrMissingDocument)
}

func TestUpload_ContentTypeFallback(t *testing.T) {
	doc, err := NewUpload(testLimits).Materialize(context.Background(), relay.Reference{Upload: &relay.Upload{
		Name: "policy.pdf", Data: []byte("x"),
	}})
	require.NoError(t, err)
	require.Equal(t, "application/pdf", doc.ContentType)
}

func TestPassthrough(t *testing.T) {
	m := NewPassthrough()
	require.Equal(t, relay.StrategyPassthrough, m.Strategy())

	doc, err := m.Materialize(context.Background(), relay.Reference{URL: "https://blob.example.com/policy.pdf?sv=2023&sig=abc"})
	require.NoError(t, err)
	require.True(t, doc.IsReference())
	require.Equal(t, "https://blob.example.com/policy.pdf?sv=2023&sig=abc", doc.Reference)
	require.NoError(t, doc.Release())
}

func TestFetch_StagesAndReleases(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		io.WriteString(w, "%PDF-1.4 fetched")
	}))
	defer srv.Close()

	dir := t.TempDir()
	m := NewFetch(config.FetchConfig{Timeout: 5 * time.Second, TempDir: dir}, 64, srv.Client())
	require.Equal(t, relay.StrategyFetch, m.Strategy())

	doc, err := m.Materialize(context.Background(), relay.Reference{URL: srv.URL + "/docs/policy.pdf?sig=1"})
	require.NoError(t, err)

	require.FileExists(t, doc.TempPath())
	require.True(t, strings.HasPrefix(doc.TempPath(), dir))
	require.True(t, strings.HasSuffix(doc.TempPath(), ".pdf"))
	require.Equal(t, "policy.pdf", doc.OriginName)
	require.Equal(t, "application/pdf", doc.ContentType)
	require.Equal(t, int64(16), doc.SizeBytes)

	body, err := io.ReadAll(doc.Body)
	require.NoError(t, err)
	require.Equal(t, "%PDF-1.4 fetched", string(body))

	require.NoError(t, doc.Release())
	require.NoError(t, doc.Release())
	requireEmptyDir(t, dir)
}

func TestFetch_UpstreamStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	dir := t.TempDir()
	_, err := NewFetch(config.FetchConfig{TempDir: dir}, 64, srv.Client()).
		Materialize(context.Background(), relay.Reference{URL: srv.URL + "/missing.pdf"})
	require.ErrorIs(t, err, apperrors.ErrUpstreamFetchFailed)
	require.Contains(t, apperrors.As(err).Detail, "404")
	requireEmptyDir(t, dir)
}

func TestFetch_TooLargeRemovesPartialFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// no Content-Length: the limit is enforced while streaming
		flusher := w.(http.Flusher)
		for i := 0; i < 10; i++ {
			io.WriteString(w, strings.Repeat("x", 16))
			flusher.Flush()
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	_, err := NewFetch(config.FetchConfig{TempDir: dir}, 64, srv.Client()).
		Materialize(context.Background(), relay.Reference{URL: srv.URL + "/big.pdf"})
	require.ErrorIs(t, err, apperrors.ErrPayloadTooLarge)
	requireEmptyDir(t, dir)
}

func TestFetch_DeclaredLengthTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		io.WriteString(w, strings.Repeat("x", 100))
	}))
	defer srv.Close()

	dir := t.TempDir()
	_, err := NewFetch(config.FetchConfig{TempDir: dir}, 64, srv.Client()).
		Materialize(context.Background(), relay.Reference{URL: srv.URL + "/big.pdf"})
	require.ErrorIs(t, err, apperrors.ErrPayloadTooLarge)
	requireEmptyDir(t, dir)
}

func TestFetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	dir := t.TempDir()
	_, err := NewFetch(config.FetchConfig{Timeout: 50 * time.Millisecond, TempDir: dir}, 64, srv.Client()).
		Materialize(context.Background(), relay.Reference{URL: srv.URL + "/slow.pdf"})
	require.ErrorIs(t, err, apperrors.ErrUpstreamFetchFailed)
	requireEmptyDir(t, dir)
}

func TestFetch_MissingTempDir(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "data")
	}))
	defer srv.Close()

	_, err := NewFetch(config.FetchConfig{TempDir: t.TempDir() + "/does-not-exist"}, 64, srv.Client()).
		Materialize(context.Background(), relay.Reference{URL: srv.URL + "/a.pdf"})
	require.ErrorIs(t, err, apperrors.ErrLocalStorageFailed)
}

func TestTempName_Unique(t *testing.T) {
	const n = 500
	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		names = make(map[string]struct{}, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := TempName(".pdf")
			mu.Lock()
			names[name] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Len(t, names, n)
}

func TestRelease_NilDocument(t *testing.T) {
	var doc *Document
	require.NoError(t, doc.Release())
}
