package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/payment-reconciliation/internal/payment/application"
)

var ErrDeliveriesClosed = errors.New("amqp delivery channel closed")

type Channel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error)
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp091.Table) (<-chan amqp091.Delivery, error)
}

type BatchProcessor interface {
	Process(ctx context.Context, items []application.Item) []string
}

// Consumer reads stock allocated notifications from a durable queue. Items
// needing redelivery are nacked with requeue, everything else is acked.
type Consumer struct {
	log    *slog.Logger
	ch     Channel
	queue  string
	batch  BatchProcessor
	size   int
	wait   time.Duration
	tracer trace.Tracer
}

// Dial opens a connection and channel to the broker.
func Dial(url string) (*amqp091.Connection, *amqp091.Channel, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	return conn, ch, nil
}

func NewConsumer(log *slog.Logger, ch Channel, queue string, batch BatchProcessor, size int, wait time.Duration) *Consumer {
	return &Consumer{
		log:    log,
		ch:     ch,
		queue:  queue,
		batch:  batch,
		size:   size,
		wait:   wait,
		tracer: otel.Tracer("payment-consumer"),
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ch.Qos(c.size, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	if _, err := c.ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", c.queue, err)
	}
	deliveries, err := c.ch.Consume(c.queue, "payment-service", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}
	c.log.Info("consuming", "queue", c.queue, "batch_size", c.size)

	for {
		batch, err := c.collect(ctx, deliveries)
		if len(batch) > 0 {
			c.handleBatch(ctx, batch)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// collect blocks for the first delivery, then gathers more until the batch is
// full or the wait elapses.
func (c *Consumer) collect(ctx context.Context, deliveries <-chan amqp091.Delivery) ([]amqp091.Delivery, error) {
	var batch []amqp091.Delivery
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case d, ok := <-deliveries:
		if !ok {
			return nil, ErrDeliveriesClosed
		}
		batch = append(batch, d)
	}

	timer := time.NewTimer(c.wait)
	defer timer.Stop()
	for len(batch) < c.size {
		select {
		case <-ctx.Done():
			return batch, ctx.Err()
		case <-timer.C:
			return batch, nil
		case d, ok := <-deliveries:
			if !ok {
				return batch, ErrDeliveriesClosed
			}
			batch = append(batch, d)
		}
	}
	return batch, nil
}

func (c *Consumer) handleBatch(ctx context.Context, deliveries []amqp091.Delivery) {
	ctx, span := c.tracer.Start(ctx, "ConsumeStockAllocatedBatch", trace.WithAttributes(attribute.Int("batch_size", len(deliveries))))
	defer span.End()

	items := make([]application.Item, len(deliveries))
	for i, d := range deliveries {
		items[i] = application.Item{ID: deliveryID(d), Body: d.Body, Metadata: headerMap(d.Headers)}
	}

	redeliver := make(map[string]bool)
	for _, id := range c.batch.Process(ctx, items) {
		redeliver[id] = true
	}

	for _, d := range deliveries {
		id := deliveryID(d)
		var err error
		if redeliver[id] {
			err = d.Nack(false, true)
		} else {
			err = d.Ack(false)
		}
		if err != nil {
			c.log.Error("settle delivery", "item_id", id, "redeliver", redeliver[id], "err", err)
		}
	}
}

func deliveryID(d amqp091.Delivery) string {
	return strconv.FormatUint(d.DeliveryTag, 10)
}

func headerMap(headers amqp091.Table) map[string]string {
	m := make(map[string]string, len(headers))
	for k, v := range headers {
		switch val := v.(type) {
		case string:
			m[k] = val
		case []byte:
			m[k] = string(val)
		}
	}
	return m
}
