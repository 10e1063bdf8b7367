// Package events publishes a RunEvent to Kafka after each pipeline run.
package events

import (
	"context"
	"time"

	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/internal/relay"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/logger"
)

const publishTimeout = 3 * time.Second

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Recorder emits run events. A nil *Recorder records nothing.
type Recorder struct {
	pub Publisher
}

func NewRecorder(pub Publisher) *Recorder {
	return &Recorder{pub: pub}
}

// Record publishes ev keyed by its request ID and never returns an error. The
// kafka producer queues the message and returns, so the request path only
// waits on encoding. A publisher that blocks is cut off after publishTimeout.
func (r *Recorder) Record(ctx context.Context, ev relay.RunEvent) {
	if r == nil || r.pub == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := r.pub.Publish(ctx, kafka.Event{Key: ev.RequestID, Value: ev}); err != nil {
		logger.FromContext(ctx).Error("failed to publish run event",
			"component", "run-events",
			"outcome", ev.Outcome,
			"error", err,
		)
	}
}
