package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dmehra2102/payment-reconciliation/internal/payment/domain"
)

type EventPublisher struct {
	log   *slog.Logger
	store AnnouncementStore
}

func NewEventPublisher(log *slog.Logger, store AnnouncementStore) *EventPublisher {
	return &EventPublisher{log: log, store: store}
}

// Publish announces the settled outcome of rec once. Repeated announcements
// are absorbed.
func (p *EventPublisher) Publish(ctx context.Context, rec domain.Record) error {
	ev, err := domain.NewPaymentEvent(rec)
	if err != nil {
		return err
	}
	err = p.store.InsertIfAbsent(ctx, ev)
	switch {
	case err == nil:
		p.log.Info("payment event announced", "order_id", ev.OrderID, "event", ev.Kind)
		return nil
	case errors.Is(err, domain.ErrEventAlreadyPublished):
		p.log.Info("payment event already announced", "order_id", ev.OrderID, "event", ev.Kind)
		return nil
	default:
		return fmt.Errorf("announce %s: %w", ev.Key(), storeFault(err))
	}
}
