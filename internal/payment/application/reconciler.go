package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/payment-reconciliation/internal/payment/domain"
)

// Reconciler settles the payment of one order per stock allocated
// notification: read, submit, record, announce.
type Reconciler struct {
	log       *slog.Logger
	reader    *RecordReader
	submitter *Submitter
	writer    *RecordWriter
	publisher *EventPublisher
	tracer    trace.Tracer
}

func NewReconciler(log *slog.Logger, repo PaymentRepository, gateway PaymentGateway, announcements AnnouncementStore) *Reconciler {
	return &Reconciler{
		log:       log,
		reader:    NewRecordReader(repo),
		submitter: NewSubmitter(log, gateway),
		writer:    NewRecordWriter(log, repo),
		publisher: NewEventPublisher(log, announcements),
		tracer:    otel.Tracer("payment-reconciler"),
	}
}

// Reconcile returns the settled record of the order. A FAILED attempt is
// recorded first and then reported as an error wrapping
// domain.ErrPaymentFailed so the notification is delivered again.
func (r *Reconciler) Reconcile(ctx context.Context, o domain.Order) (domain.Record, error) {
	ctx, span := r.tracer.Start(ctx, "payment.reconcile", trace.WithAttributes(attribute.String("order_id", o.OrderID)))
	defer span.End()

	rec, err := r.reconcile(ctx, o)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, domain.Kind(err))
		return domain.Record{}, err
	}
	span.SetAttributes(
		attribute.String("payment_status", string(rec.Status)),
		attribute.Int("payment_retries", rec.Retries),
	)
	return rec, nil
}

func (r *Reconciler) reconcile(ctx context.Context, o domain.Order) (domain.Record, error) {
	get, err := domain.NewGetPaymentCommand(o.OrderID)
	if err != nil {
		return domain.Record{}, err
	}
	existing, err := r.reader.Get(ctx, get)
	if err != nil {
		return domain.Record{}, err
	}

	var te *domain.TerminalError
	out, err := r.submitter.Submit(ctx, o, existing)
	if err != nil {
		if !errors.As(err, &te) {
			return domain.Record{}, err
		}
		r.log.Info("payment already settled, skipping charge",
			"order_id", o.OrderID, "payment_status", te.Record.Status)
		return te.Record, r.publisher.Publish(ctx, te.Record)
	}

	settled, err := r.writer.Record(ctx, existing, o, out)
	if err != nil && !errors.As(err, &te) {
		return domain.Record{}, err
	}
	// On a lost race settled is the stored terminal record, not the outcome
	// computed here.

	switch settled.Status {
	case domain.StatusAccepted, domain.StatusRejected:
		if err := r.publisher.Publish(ctx, settled); err != nil {
			return domain.Record{}, err
		}
		return settled, nil
	default:
		r.log.Warn("payment attempt failed",
			"order_id", o.OrderID, "payment_retries", settled.Retries, "err", out.Err)
		if out.Err == nil {
			return domain.Record{}, fmt.Errorf("order %s: %w", o.OrderID, domain.ErrPaymentFailed)
		}
		return domain.Record{}, fmt.Errorf("order %s: %w", o.OrderID, out.Err)
	}
}
