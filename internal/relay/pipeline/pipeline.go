// Package pipeline runs one ingestion request end to end: pick a strategy,
// materialize the document, relay it, and report the outcome.
package pipeline

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/internal/relay"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/internal/relay/cache"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/internal/relay/events"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/internal/relay/materializer"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/tracing"
)

// Relayer sends a materialized document downstream; *client.Client
// satisfies it.
type Relayer interface {
	Relay(ctx context.Context, doc *materializer.Document, questions []string) (*relay.Response, error)
}

type Pipeline struct {
	upload  materializer.Materializer
	url     materializer.Materializer
	relayer Relayer
	cache   *cache.AnswerCache
	events  *events.Recorder
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type Option func(*Pipeline)

// WithCache enables the answer cache for pass-through runs.
func WithCache(c *cache.AnswerCache) Option {
	return func(p *Pipeline) { p.cache = c }
}

// WithEvents publishes a RunEvent after every run.
func WithEvents(r *events.Recorder) Option {
	return func(p *Pipeline) { p.events = r }
}

// New builds a pipeline. upload handles documents sent in the body; url
// handles URL references and is either the fetch or the pass-through
// materializer, as the deployment chooses.
func New(upload, url materializer.Materializer, relayer Relayer, m *metrics.Metrics, opts ...Option) *Pipeline {
	p := &Pipeline{
		upload:  upload,
		url:     url,
		relayer: relayer,
		metrics: m,
		logger:  logger.WithComponent("pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Select returns the materializer responsible for ref.
func (p *Pipeline) Select(ref relay.Reference) materializer.Materializer {
	if ref.IsUpload() {
		return p.upload
	}
	return p.url
}

// Run executes req. The returned error is an *errors.AppError suitable for
// the client. No temp file outlives the call, whatever the outcome.
func (p *Pipeline) Run(ctx context.Context, req *relay.Request) (*relay.Response, error) {
	start := time.Now()
	m := p.Select(req.Reference)
	strategy := m.Strategy()
	ctx, span := tracing.Start(ctx, "run", req.RequestID)
	span.SetAttr("strategy", string(strategy))

	resp, outcome, err := p.run(ctx, m, req)
	span.End()

	p.metrics.RelayRunsTotal.WithLabelValues(string(strategy), outcome).Inc()
	ev := relay.RunEvent{
		RequestID:     req.RequestID,
		Strategy:      strategy,
		Document:      documentLabel(req.Reference),
		QuestionCount: len(req.Questions),
		Outcome:       outcome,
		DurationMs:    time.Since(start).Milliseconds(),
		Stages:        span.Stages(),
		FinishedAt:    time.Now().UTC(),
	}
	if err != nil {
		ev.Error = err.Error()
	} else {
		ev.AnswerCount = len(resp.Answers)
	}
	p.events.Record(ctx, ev)

	log := logger.FromContext(ctx)
	span.Log(log)
	if err != nil {
		log.Warn("run failed", "strategy", strategy, "duration_ms", ev.DurationMs, "error", err)
		return nil, err
	}
	log.Info("run completed",
		"strategy", strategy,
		"outcome", outcome,
		"questions", ev.QuestionCount,
		"answers", ev.AnswerCount,
		"duration_ms", ev.DurationMs,
	)
	return resp, nil
}

func (p *Pipeline) run(ctx context.Context, m materializer.Materializer, req *relay.Request) (*relay.Response, string, error) {
	stage := tracing.StartStage(ctx, "materialize")
	doc, err := m.Materialize(ctx, req.Reference)
	stage.End()
	if err != nil {
		return nil, relay.OutcomeError, err
	}
	if doc.TempPath() != "" {
		p.metrics.TempFilesActive.Inc()
		defer p.metrics.TempFilesActive.Dec()
	}
	defer func() {
		if err := doc.Release(); err != nil {
			logger.FromContext(ctx).Error("failed to release document", "path", doc.TempPath(), "error", err)
		}
	}()
	if !doc.IsReference() {
		p.metrics.MaterializedBytes.WithLabelValues(string(m.Strategy())).Observe(float64(doc.SizeBytes))
	}

	call := func(ctx context.Context) (*relay.Response, error) {
		stage := tracing.StartStage(ctx, "relay")
		defer func() {
			stage.End()
			p.metrics.RelayDuration.WithLabelValues(string(m.Strategy())).Observe(stage.Duration().Seconds())
		}()
		return p.relayer.Relay(ctx, doc, req.Questions)
	}

	// Only reference documents are cached: the shared call may outlive this
	// run, and a reference holds nothing that Release frees.
	if p.cache != nil && doc.IsReference() {
		resp, hit, err := p.cache.GetOrRelay(ctx, doc.Reference, req.Questions, call)
		if err != nil {
			return nil, relay.OutcomeError, err
		}
		if hit {
			return resp, relay.OutcomeCached, nil
		}
		return resp, relay.OutcomeSuccess, nil
	}

	resp, err := call(ctx)
	if err != nil {
		return nil, relay.OutcomeError, err
	}
	return resp, relay.OutcomeSuccess, nil
}

// documentLabel names the document in events, dropping any URL query or
// fragment.
func documentLabel(ref relay.Reference) string {
	if ref.IsUpload() {
		return ref.Upload.Name
	}
	u, err := url.Parse(ref.URL)
	if err != nil {
		return ""
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
