package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProducer struct {
	failKeys map[string]bool
	written  []kafka.Message
}

func (p *fakeProducer) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		if p.failKeys[string(m.Key)] {
			return errors.New("broker not available")
		}
		p.written = append(p.written, m)
	}
	return nil
}

type fakeStore struct {
	pending []Event
	sent    []int64
	failed  map[int64]string
	leased  string
}

func (s *fakeStore) LockBatch(_ context.Context, relayID string, batchSize int, _ time.Duration) ([]Event, error) {
	s.leased = relayID
	n := min(batchSize, len(s.pending))
	batch := s.pending[:n]
	s.pending = s.pending[n:]
	return batch, nil
}

func (s *fakeStore) MarkSent(_ context.Context, ids []int64) error {
	s.sent = append(s.sent, ids...)
	return nil
}

func (s *fakeStore) MarkFailed(_ context.Context, id int64, errMsg string) error {
	if s.failed == nil {
		s.failed = map[int64]string{}
	}
	s.failed[id] = errMsg
	return nil
}

func TestRelayOnce_DispatchesAndMarks(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	producer := &fakeProducer{failKeys: map[string]bool{"o-2": true}}
	store := &fakeStore{pending: []Event{
		{ID: 1, AggregateID: "o-1", Type: "PaymentAccepted", Payload: []byte(`{}`), Traceparent: "00-abc-def-01", Headers: map[string]string{"source": "payment-service"}},
		{ID: 2, AggregateID: "o-2", Type: "PaymentRejected", Payload: []byte(`{}`)},
	}}
	relay := NewRelay(log, store, NewDispatcher(log, producer, "payment.events"), "relay-1")

	n, err := relay.RelayOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, n)
	assert.Equal(t, "relay-1", store.leased)
	assert.Equal(t, []int64{1}, store.sent)
	assert.Contains(t, store.failed[2], "broker not available")

	require.Len(t, producer.written, 1)
	msg := producer.written[0]
	assert.Equal(t, "payment.events", msg.Topic)
	assert.Equal(t, "o-1", string(msg.Key))

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "PaymentAccepted", headers["event_type"])
	assert.Equal(t, "00-abc-def-01", headers["traceparent"])
	assert.Equal(t, "payment-service", headers["source"])
}

func TestRelayOnce_EmptyBatch(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := &fakeStore{}
	relay := NewRelay(log, store, NewDispatcher(log, &fakeProducer{}, "payment.events"), "relay-1")

	n, err := relay.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, store.sent)
}
