package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/config"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestPublish_EncodesJSON(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, "hackrx.runs")

	err := p.Publish(context.Background(), Event{Key: "req_1", Value: map[string]int{"answer_count": 2}})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	require.Equal(t, "req_1", string(w.msgs[0].Key))

	var got map[string]int
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	require.Equal(t, 2, got["answer_count"])

	require.NoError(t, p.Close())
	require.True(t, w.closed)
}

func TestPublish_WrapsWriterError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := NewProducerWithWriter(w, "hackrx.runs")

	err := p.Publish(context.Background(), Event{Key: "k", Value: "v"})
	require.ErrorContains(t, err, "hackrx.runs")
	require.ErrorContains(t, err, "broker down")
}

func TestPublish_UnencodableValue(t *testing.T) {
	p := NewProducerWithWriter(&fakeWriter{}, "t")
	require.Error(t, p.Publish(context.Background(), Event{Key: "k", Value: make(chan int)}))
}

func TestNewProducer_WriterIsAsync(t *testing.T) {
	p := NewProducer(config.KafkaConfig{Brokers: []string{"127.0.0.1:9092"}, Topic: "hackrx.runs"})

	w, ok := p.writer.(*kafka.Writer)
	require.True(t, ok)
	require.True(t, w.Async)
	require.NotNil(t, w.Completion)

	// Delivery errors arrive through the callback, not through Publish.
	w.Completion([]kafka.Message{{Value: []byte("{}")}}, errors.New("broker down"))
	w.Completion(nil, nil)
}
