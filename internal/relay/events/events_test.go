package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/internal/relay"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/kafka"
)

type fakePublisher struct {
	events []kafka.Event
	ctxErr error
	err    error
}

func (f *fakePublisher) Publish(ctx context.Context, event kafka.Event) error {
	f.ctxErr = ctx.Err()
	f.events = append(f.events, event)
	return f.err
}

func TestRecord_KeysByRequestID(t *testing.T) {
	pub := &fakePublisher{}
	ev := relay.RunEvent{
		RequestID:     "req_1",
		Strategy:      relay.StrategyUpload,
		QuestionCount: 2,
		AnswerCount:   2,
		Outcome:       relay.OutcomeSuccess,
		FinishedAt:    time.Now().UTC(),
	}
	NewRecorder(pub).Record(context.Background(), ev)

	require.Len(t, pub.events, 1)
	require.Equal(t, "req_1", pub.events[0].Key)
	require.Equal(t, ev, pub.events[0].Value)
}

func TestRecord_SurvivesCanceledRequest(t *testing.T) {
	pub := &fakePublisher{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	NewRecorder(pub).Record(ctx, relay.RunEvent{RequestID: "req_2", Outcome: relay.OutcomeError})
	require.Len(t, pub.events, 1)
	require.NoError(t, pub.ctxErr)
}

func TestRecord_PublishErrorIsSwallowed(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker unavailable")}
	NewRecorder(pub).Record(context.Background(), relay.RunEvent{RequestID: "req_3"})
	require.Len(t, pub.events, 1)
}

func TestRecord_NilRecorder(t *testing.T) {
	var r *Recorder
	r.Record(context.Background(), relay.RunEvent{RequestID: "req_4"})
}
