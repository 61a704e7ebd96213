package application

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/dmehra2102/payment-reconciliation/internal/payment/domain"
)

// Item is one inbound notification of a batch. Metadata carries transport
// headers such as the W3C traceparent.
type Item struct {
	ID       string
	Body     []byte
	Metadata map[string]string
}

type ItemResult struct {
	ID  string
	Err error
}

type Reconciliation interface {
	Reconcile(ctx context.Context, o domain.Order) (domain.Record, error)
}

type BatchController struct {
	log        *slog.Logger
	reconciler Reconciliation
}

func NewBatchController(log *slog.Logger, reconciler Reconciliation) *BatchController {
	return &BatchController{log: log, reconciler: reconciler}
}

// Process reconciles every item independently and returns the identifiers of
// the items that must be delivered again, in input order.
func (b *BatchController) Process(ctx context.Context, items []Item) []string {
	results := make([]ItemResult, len(items))
	for i, item := range items {
		results[i] = ItemResult{ID: item.ID, Err: b.handle(ctx, item)}
	}
	return Redeliveries(results)
}

func (b *BatchController) handle(ctx context.Context, item Item) error {
	if len(item.Metadata) > 0 {
		ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(item.Metadata))
	}

	o, err := domain.ParseStockAllocated(item.Body)
	if err != nil {
		b.log.Warn("dropping malformed notification", "item_id", item.ID, "err", err)
		return err
	}

	rec, err := b.reconciler.Reconcile(ctx, o)
	if err != nil {
		if domain.Retryable(err) {
			b.log.Error("reconciliation failed, requesting redelivery",
				"item_id", item.ID, "order_id", o.OrderID, "kind", domain.Kind(err), "err", err)
		} else {
			b.log.Warn("reconciliation failed permanently",
				"item_id", item.ID, "order_id", o.OrderID, "kind", domain.Kind(err), "err", err)
		}
		return err
	}
	b.log.Info("payment reconciled", "item_id", item.ID, "order_id", o.OrderID, "payment_status", rec.Status)
	return nil
}

// Redeliveries folds item results into the identifiers needing redelivery.
func Redeliveries(results []ItemResult) []string {
	ids := make([]string, 0)
	for _, r := range results {
		if domain.Retryable(r.Err) {
			ids = append(ids, r.ID)
		}
	}
	return ids
}
