// Package tracing times the stages of a request. A root span travels in the
// context; stages started under it are recorded as children and can be
// flattened into per-stage durations for logs and events.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type contextKey struct{}

// Span is one timed operation. Only root spans collect children.
type Span struct {
	Name    string
	TraceID string

	mu       sync.Mutex
	start    time.Time
	duration time.Duration
	ended    bool
	children []*Span
	attrs    []any
}

// Start creates a root span for traceID and stores it in the returned
// context.
func Start(ctx context.Context, name, traceID string) (context.Context, *Span) {
	span := &Span{Name: name, TraceID: traceID, start: time.Now()}
	return context.WithValue(ctx, contextKey{}, span), span
}

// StartStage starts a child of the span in ctx. Without a parent it returns
// a detached span that is still safe to End.
func StartStage(ctx context.Context, name string) *Span {
	child := &Span{Name: name, start: time.Now()}
	if parent := FromContext(ctx); parent != nil {
		child.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.children = append(parent.children, child)
		parent.mu.Unlock()
	}
	return child
}

// FromContext returns the span stored in ctx, or nil.
func FromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(contextKey{}).(*Span)
	return span
}

// End fixes the span's duration. Later calls are ignored.
func (s *Span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.duration = time.Since(s.start)
		s.ended = true
	}
}

// Duration returns the recorded duration, or the time elapsed so far for a
// span that has not ended.
func (s *Span) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return s.duration
	}
	return time.Since(s.start)
}

// SetAttr attaches a key-value pair that is written with the span.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs = append(s.attrs, key, value)
	s.mu.Unlock()
}

// Stages returns the duration in milliseconds of each child, keyed by name.
// Repeated stage names are summed.
func (s *Span) Stages() map[string]int64 {
	s.mu.Lock()
	children := append([]*Span(nil), s.children...)
	s.mu.Unlock()
	if len(children) == 0 {
		return nil
	}
	stages := make(map[string]int64, len(children))
	for _, c := range children {
		stages[c.Name] += c.Duration().Milliseconds()
	}
	return stages
}

// Log writes the span and its stages as one debug record.
func (s *Span) Log(log *slog.Logger) {
	s.mu.Lock()
	attrs := append([]any{
		"trace_id", s.TraceID,
		"span", s.Name,
	}, s.attrs...)
	s.mu.Unlock()
	attrs = append(attrs, "duration_ms", s.Duration().Milliseconds())
	for name, ms := range s.Stages() {
		attrs = append(attrs, name+"_ms", ms)
	}
	log.Debug("span", attrs...)
}
