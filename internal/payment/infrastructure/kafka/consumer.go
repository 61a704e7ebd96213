package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/payment-reconciliation/internal/payment/application"
	"github.com/dmehra2102/payment-reconciliation/pkg/tracing"
)

const RedeliveryHeader = "redelivery"

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type BatchProcessor interface {
	Process(ctx context.Context, items []application.Item) []string
}

// Consumer feeds stock allocated notifications to the batch controller.
// Items needing redelivery are produced again onto the inbound topic before
// the batch offsets are committed.
type Consumer struct {
	log     *slog.Logger
	reader  MessageReader
	requeue MessageWriter
	topic   string
	batch   BatchProcessor
	size    int
	wait    time.Duration
	tracer  trace.Tracer
}

func NewConsumer(log *slog.Logger, brokers []string, topic, group string, batch BatchProcessor, size int, wait time.Duration) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	})
	return newConsumer(log, r, NewWriter(brokers), topic, batch, size, wait)
}

func newConsumer(log *slog.Logger, reader MessageReader, requeue MessageWriter, topic string, batch BatchProcessor, size int, wait time.Duration) *Consumer {
	return &Consumer{
		log:     log,
		reader:  reader,
		requeue: requeue,
		topic:   topic,
		batch:   batch,
		size:    size,
		wait:    wait,
		tracer:  otel.Tracer("payment-consumer"),
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	if w, ok := c.requeue.(*kafka.Writer); ok {
		defer w.Close()
	}

	for {
		msgs, err := c.fetchBatch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := c.handleBatch(ctx, msgs); err != nil {
			// Offsets of the interrupted batch stay uncommitted.
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// fetchBatch blocks for the first message, then collects more until the
// batch is full or the wait elapses.
func (c *Consumer) fetchBatch(ctx context.Context) ([]kafka.Message, error) {
	first, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}
	msgs := []kafka.Message{first}

	waitCtx, cancel := context.WithTimeout(ctx, c.wait)
	defer cancel()
	for len(msgs) < c.size {
		msg, err := c.reader.FetchMessage(waitCtx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				break
			}
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func (c *Consumer) handleBatch(ctx context.Context, msgs []kafka.Message) error {
	ctx, span := c.tracer.Start(ctx, "ConsumeStockAllocatedBatch", trace.WithAttributes(attribute.Int("batch_size", len(msgs))))
	defer span.End()

	items := make([]application.Item, len(msgs))
	byID := make(map[string]kafka.Message, len(msgs))
	for i, msg := range msgs {
		id := messageID(msg)
		items[i] = application.Item{ID: id, Body: msg.Value, Metadata: tracing.KafkaHeaderMap(msg.Headers)}
		byID[id] = msg
	}

	failed := c.batch.Process(ctx, items)
	if len(failed) > 0 {
		retries := make([]kafka.Message, 0, len(failed))
		for _, id := range failed {
			retries = append(retries, c.redelivery(byID[id]))
		}
		if err := c.requeue.WriteMessages(ctx, retries...); err != nil {
			c.log.Error("requeue failed, leaving batch uncommitted", "count", len(retries), "err", err)
			return fmt.Errorf("requeue %d messages: %w", len(retries), err)
		}
		c.log.Info("messages requeued for redelivery", "count", len(retries))
	}

	if err := c.reader.CommitMessages(ctx, msgs...); err != nil {
		c.log.Error("commit failed", "err", err)
		return err
	}
	return nil
}

func messageID(msg kafka.Message) string {
	return fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
}

// redelivery copies msg for the inbound topic with an incremented redelivery
// count. Its trace headers point at a requeue span started from the trace
// context the message arrived with.
func (c *Consumer) redelivery(msg kafka.Message) kafka.Message {
	parent := tracing.ExtractKafkaHeaders(context.Background(), msg.Headers)
	ctx, span := c.tracer.Start(parent, "RequeueStockAllocated", trace.WithAttributes(attribute.String("item_id", messageID(msg))))
	defer span.End()

	count := 0
	headers := make([]kafka.Header, 0, len(msg.Headers)+2)
	for _, h := range msg.Headers {
		switch h.Key {
		case RedeliveryHeader:
			count, _ = strconv.Atoi(string(h.Value))
		case tracing.TraceparentHeader, "tracestate", "baggage":
		default:
			headers = append(headers, h)
		}
	}
	headers = append(headers, kafka.Header{Key: RedeliveryHeader, Value: []byte(strconv.Itoa(count + 1))})
	headers = tracing.InjectKafkaHeaders(ctx, headers)
	return kafka.Message{
		Topic:   c.topic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	}
}
