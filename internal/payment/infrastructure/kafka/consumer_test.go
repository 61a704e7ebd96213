package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/payment-reconciliation/internal/payment/application"
	"github.com/dmehra2102/payment-reconciliation/pkg/tracing"
)

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []kafka.Message
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.pending) > 0 {
		msg := r.pending[0]
		r.pending = r.pending[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

type fakeWriter struct {
	written []kafka.Message
	err     error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.written = append(w.written, msgs...)
	return nil
}

type fakeBatch struct {
	seen   []application.Item
	failed func(application.Item) bool
}

func (b *fakeBatch) Process(_ context.Context, items []application.Item) []string {
	b.seen = append(b.seen, items...)
	out := []string{}
	for _, it := range items {
		if b.failed != nil && b.failed(it) {
			out = append(out, it.ID)
		}
	}
	return out
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func msg(offset int64, body string, headers ...kafka.Header) kafka.Message {
	return kafka.Message{Topic: "inventory.events", Partition: 0, Offset: offset, Key: []byte(body), Value: []byte(body), Headers: headers}
}

func TestFetchBatchStopsAtSize(t *testing.T) {
	r := &fakeReader{pending: []kafka.Message{msg(1, "a"), msg(2, "b"), msg(3, "c")}}
	c := newConsumer(discard(), r, &fakeWriter{}, "inventory.events", &fakeBatch{}, 2, time.Second)

	got, err := c.fetchBatch(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestFetchBatchStopsAtWait(t *testing.T) {
	r := &fakeReader{pending: []kafka.Message{msg(1, "a")}}
	c := newConsumer(discard(), r, &fakeWriter{}, "inventory.events", &fakeBatch{}, 10, 20*time.Millisecond)

	got, err := c.fetchBatch(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestHandleBatchRequeuesFailuresAndCommits(t *testing.T) {
	r := &fakeReader{}
	w := &fakeWriter{}
	b := &fakeBatch{failed: func(it application.Item) bool { return string(it.Body) == "b" }}
	c := newConsumer(discard(), r, w, "inventory.events", b, 10, time.Second)

	batch := []kafka.Message{
		msg(1, "a", kafka.Header{Key: "traceparent", Value: []byte("00-abc-def-01")}),
		msg(2, "b", kafka.Header{Key: RedeliveryHeader, Value: []byte("2")}),
	}
	require.NoError(t, c.handleBatch(context.Background(), batch))

	require.Len(t, b.seen, 2)
	assert.Equal(t, "inventory.events/0/1", b.seen[0].ID)
	assert.Equal(t, "00-abc-def-01", b.seen[0].Metadata["traceparent"])

	require.Len(t, w.written, 1)
	requeued := w.written[0]
	assert.Equal(t, "b", string(requeued.Value))
	assert.Equal(t, "inventory.events", requeued.Topic)
	assert.Equal(t, "3", tracing.KafkaHeaderMap(requeued.Headers)[RedeliveryHeader])

	assert.Len(t, r.committed, 2)
}

func TestHandleBatchLeavesOffsetsWhenRequeueFails(t *testing.T) {
	r := &fakeReader{}
	w := &fakeWriter{err: errors.New("broker down")}
	b := &fakeBatch{failed: func(application.Item) bool { return true }}
	c := newConsumer(discard(), r, w, "inventory.events", b, 10, time.Second)

	err := c.handleBatch(context.Background(), []kafka.Message{msg(1, "a")})
	require.Error(t, err)
	assert.Empty(t, r.committed)
}

func TestRunStopsOnCancel(t *testing.T) {
	r := &fakeReader{pending: []kafka.Message{msg(1, "a")}}
	b := &fakeBatch{}
	c := newConsumer(discard(), r, &fakeWriter{}, "inventory.events", b, 1, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return len(r.committed) == 1
	}, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestRedeliveryContinuesTrace(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "produce")
	defer span.End()
	original := msg(7, "a", tracing.InjectKafkaHeaders(ctx, nil)...)

	c := newConsumer(discard(), &fakeReader{}, &fakeWriter{}, "inventory.events", &fakeBatch{}, 1, time.Second)
	c.tracer = tp.Tracer("payment-consumer")
	requeued := c.redelivery(original)

	headers := tracing.KafkaHeaderMap(requeued.Headers)
	assert.Equal(t, "1", headers[RedeliveryHeader])
	require.NotEmpty(t, headers[tracing.TraceparentHeader])
	assert.NotEqual(t, tracing.Traceparent(ctx), headers[tracing.TraceparentHeader])

	requeuedCtx := tracing.ExtractKafkaHeaders(context.Background(), requeued.Headers)
	assert.Equal(t, span.SpanContext().TraceID(), trace.SpanContextFromContext(requeuedCtx).TraceID())
}

type ctxWriter struct{}

func (ctxWriter) WriteMessages(ctx context.Context, _ ...kafka.Message) error { return ctx.Err() }

type cancellingBatch struct {
	cancel context.CancelFunc
}

func (b cancellingBatch) Process(_ context.Context, items []application.Item) []string {
	b.cancel()
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}

func TestRunStopsCleanlyWhenCancelledMidBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &fakeReader{pending: []kafka.Message{msg(1, "a")}}
	c := newConsumer(discard(), r, ctxWriter{}, "inventory.events", cancellingBatch{cancel: cancel}, 1, time.Millisecond)

	assert.NoError(t, c.Run(ctx))
	assert.Empty(t, r.committed)
}
