package pipeline

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/internal/relay"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/internal/relay/cache"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/internal/relay/events"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/internal/relay/materializer"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/metrics"
)

var limits = config.UploadConfig{MaxBytes: 1 << 20, AllowedExtensions: []string{".pdf", ".docx"}}

type fakeRelayer struct {
	mu       sync.Mutex
	calls    int
	lastBody string
	lastRef  string
	tempSeen string
	resp     *relay.Response
	err      error
}

func (f *fakeRelayer) Relay(_ context.Context, doc *materializer.Document, _ []string) (*relay.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.tempSeen = doc.TempPath()
	if doc.IsReference() {
		f.lastRef = doc.Reference
	} else {
		b, _ := io.ReadAll(doc.Body)
		f.lastBody = string(b)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []relay.RunEvent
}

func (f *fakePublisher) Publish(_ context.Context, e kafka.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e.Value.(relay.RunEvent))
	return nil
}

type memStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memStore) Set(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func documentServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		io.WriteString(w, "%PDF-1.4 remote")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestRun_UploadStrategy(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	rel := &fakeRelayer{resp: &relay.Response{Answers: []string{"₅000"}, RelevantClauses: []string{}}}
	pub := &fakePublisher{}
	p := New(materializer.NewUpload(limits), materializer.NewPassthrough(), rel, m,
		WithEvents(events.NewRecorder(pub)))

	resp, err := p.Run(context.Background(), &relay.Request{
		RequestID: "req_a",
		Reference: relay.Reference{Upload: &relay.Upload{Name: "policy.pdf", ContentType: "application/pdf", Data: []byte("%PDF")}},
		Questions: []string{"What is the premium?"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"₅000"}, resp.Answers)
	require.Equal(t, "%PDF", rel.lastBody)

	require.Equal(t, 1.0, testutil.ToFloat64(m.RelayRunsTotal.WithLabelValues("upload", relay.OutcomeSuccess)))
	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	require.Equal(t, "req_a", ev.RequestID)
	require.Equal(t, relay.StrategyUpload, ev.Strategy)
	require.Equal(t, "policy.pdf", ev.Document)
	require.Equal(t, 1, ev.QuestionCount)
	require.Equal(t, 1, ev.AnswerCount)
	require.Contains(t, ev.Stages, "materialize")
	require.Contains(t, ev.Stages, "relay")
}

func TestRun_FetchCleansUpOnSuccessAndFailure(t *testing.T) {
	srv := documentServer(t)
	dir := t.TempDir()
	m := metrics.New(prometheus.NewRegistry())
	fetch := materializer.NewFetch(config.FetchConfig{Timeout: time.Second, TempDir: dir}, limits.MaxBytes, srv.Client())

	rel := &fakeRelayer{resp: &relay.Response{Answers: []string{"A"}}}
	p := New(materializer.NewUpload(limits), fetch, rel, m)
	req := &relay.Request{RequestID: "req_b", Reference: relay.Reference{URL: srv.URL + "/policy.pdf"}, Questions: []string{"Q"}}

	_, err := p.Run(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "%PDF-1.4 remote", rel.lastBody)
	require.NotEmpty(t, rel.tempSeen)
	requireEmptyDir(t, dir)

	rel.err = apperrors.RelayFailed("upstream 500")
	_, err = p.Run(context.Background(), req)
	require.ErrorIs(t, err, apperrors.ErrRelayFailed)
	requireEmptyDir(t, dir)

	require.Equal(t, 0.0, testutil.ToFloat64(m.TempFilesActive))
	require.Equal(t, 1.0, testutil.ToFloat64(m.RelayRunsTotal.WithLabelValues("fetch", relay.OutcomeError)))
}

func TestRun_InvalidUploadNeverRelays(t *testing.T) {
	rel := &fakeRelayer{}
	p := New(materializer.NewUpload(limits), materializer.NewPassthrough(), rel, metrics.New(prometheus.NewRegistry()))

	_, err := p.Run(context.Background(), &relay.Request{
		Reference: relay.Reference{Upload: &relay.Upload{Name: "notes.txt", Data: []byte("x")}},
		Questions: []string{"Q"},
	})
	require.ErrorIs(t, err, apperrors.ErrUnsupportedFileType)
	require.Zero(t, rel.calls)
}

func TestRun_PassthroughCache(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	rel := &fakeRelayer{resp: &relay.Response{Answers: []string{"A"}, RelevantClauses: []string{"C"}}}
	c := cache.New(&memStore{data: map[string]string{}}, time.Minute, m)
	pub := &fakePublisher{}
	p := New(materializer.NewUpload(limits), materializer.NewPassthrough(), rel, m,
		WithCache(c), WithEvents(events.NewRecorder(pub)))

	req := &relay.Request{Reference: relay.Reference{URL: "https://blob.example.com/p.pdf?sig=secret"}, Questions: []string{"Q"}}
	for i := 0; i < 2; i++ {
		resp, err := p.Run(context.Background(), req)
		require.NoError(t, err)
		require.Equal(t, []string{"A"}, resp.Answers)
		require.Equal(t, []string{"C"}, resp.RelevantClauses)
	}

	require.Equal(t, 1, rel.calls)
	require.Equal(t, "https://blob.example.com/p.pdf?sig=secret", rel.lastRef)
	require.Equal(t, relay.OutcomeSuccess, pub.events[0].Outcome)
	require.Equal(t, relay.OutcomeCached, pub.events[1].Outcome)
	require.Equal(t, "https://blob.example.com/p.pdf", pub.events[1].Document)
}

func TestRun_CachedRunSurvivesOtherCallerLeaving(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	c := cache.New(&memStore{data: map[string]string{}}, time.Minute, m)

	var calls sync.WaitGroup
	calls.Add(1)
	var once sync.Once
	slow := relayerFunc(func(ctx context.Context, _ *materializer.Document, _ []string) (*relay.Response, error) {
		once.Do(calls.Done)
		select {
		case <-time.After(200 * time.Millisecond):
			return &relay.Response{Answers: []string{"A"}}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	p := New(materializer.NewUpload(limits), materializer.NewPassthrough(), slow, m, WithCache(c))
	req := &relay.Request{Reference: relay.Reference{URL: "https://blob.example.com/p.pdf"}, Questions: []string{"Q"}}

	firstCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	firstErr := make(chan error, 1)
	go func() {
		_, err := p.Run(firstCtx, req)
		firstErr <- err
	}()
	calls.Wait()

	resp, err := p.Run(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, []string{"A"}, resp.Answers)
	require.ErrorIs(t, <-firstErr, apperrors.ErrRelayFailed)
}

func TestRun_UploadsBypassCache(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	rel := &fakeRelayer{resp: &relay.Response{Answers: []string{"A"}}}
	c := cache.New(&memStore{data: map[string]string{}}, time.Minute, m)
	p := New(materializer.NewUpload(limits), materializer.NewPassthrough(), rel, m, WithCache(c))

	req := &relay.Request{
		Reference: relay.Reference{Upload: &relay.Upload{Name: "p.pdf", Data: []byte("%PDF")}},
		Questions: []string{"Q"},
	}
	for i := 0; i < 2; i++ {
		_, err := p.Run(context.Background(), req)
		require.NoError(t, err)
	}
	require.Equal(t, 2, rel.calls)
	require.Equal(t, 0.0, testutil.ToFloat64(m.CacheHitsTotal))
}

func TestRun_CanceledContextStillCleansUp(t *testing.T) {
	srv := documentServer(t)
	dir := t.TempDir()
	fetch := materializer.NewFetch(config.FetchConfig{TempDir: dir}, limits.MaxBytes, srv.Client())

	ctx, cancel := context.WithCancel(context.Background())
	rel := &fakeRelayer{err: errors.New("context canceled")}
	p := New(materializer.NewUpload(limits), fetch, relayerFunc(func(c context.Context, d *materializer.Document, q []string) (*relay.Response, error) {
		cancel()
		return rel.Relay(c, d, q)
	}), metrics.New(prometheus.NewRegistry()))

	_, err := p.Run(ctx, &relay.Request{Reference: relay.Reference{URL: srv.URL + "/p.pdf"}, Questions: []string{"Q"}})
	require.Error(t, err)
	requireEmptyDir(t, dir)
}

type relayerFunc func(ctx context.Context, doc *materializer.Document, questions []string) (*relay.Response, error)

func (f relayerFunc) Relay(ctx context.Context, doc *materializer.Document, questions []string) (*relay.Response, error) {
	return f(ctx, doc, questions)
}

func TestSelect(t *testing.T) {
	fetch := materializer.NewFetch(config.FetchConfig{}, 1, nil)
	p := New(materializer.NewUpload(limits), fetch, &fakeRelayer{}, metrics.New(prometheus.NewRegistry()))

	require.Equal(t, relay.StrategyUpload, p.Select(relay.Reference{Upload: &relay.Upload{}}).Strategy())
	require.Equal(t, relay.StrategyFetch, p.Select(relay.Reference{URL: "https://x/p.pdf"}).Strategy())
}
