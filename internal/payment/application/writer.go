package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmehra2102/payment-reconciliation/internal/payment/domain"
)

type RecordWriter struct {
	log  *slog.Logger
	repo PaymentRepository
	now  func() time.Time
}

func NewRecordWriter(log *slog.Logger, repo PaymentRepository) *RecordWriter {
	return &RecordWriter{
		log:  log,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Record persists the outcome of a submission on top of existing. When the
// payment is already settled, either locally or by a concurrent writer, it
// returns the durable record together with a *domain.TerminalError.
func (w *RecordWriter) Record(ctx context.Context, existing *domain.Record, o domain.Order, out Outcome) (domain.Record, error) {
	cmd, err := domain.NewRecordPaymentCommand(existing, o, out.PaymentID, out.Status)
	if err != nil {
		var te *domain.TerminalError
		if errors.As(err, &te) {
			return te.Record, err
		}
		return domain.Record{}, err
	}

	rec, pre := w.next(cmd)
	if err := w.repo.ConditionalPut(ctx, rec, pre); err != nil {
		var te *domain.TerminalError
		if errors.As(err, &te) {
			w.log.Info("payment settled by a concurrent writer",
				"order_id", o.OrderID, "payment_status", te.Record.Status)
			return te.Record, err
		}
		return domain.Record{}, fmt.Errorf("record payment %s: %w", o.OrderID, storeFault(err))
	}
	return rec, nil
}

func (w *RecordWriter) next(cmd domain.RecordPaymentCommand) (domain.Record, domain.Precondition) {
	now := w.now()
	paymentID := cmd.PaymentID

	if cmd.Existing == nil {
		if paymentID == "" {
			paymentID = domain.ErrorPaymentID(cmd.Order.OrderID)
		}
		return domain.Record{
			Order:     cmd.Order,
			PaymentID: paymentID,
			Status:    cmd.Status,
			Retries:   0,
			CreatedAt: now,
			UpdatedAt: now,
		}, domain.ExpectAbsent()
	}

	prev := *cmd.Existing
	if paymentID == "" {
		paymentID = prev.PaymentID
	}
	if paymentID == "" {
		paymentID = domain.ErrorPaymentID(prev.OrderID)
	}
	return domain.Record{
		Order:     prev.Order,
		PaymentID: paymentID,
		Status:    cmd.Status,
		Retries:   prev.Retries + 1,
		CreatedAt: prev.CreatedAt,
		UpdatedAt: now,
	}, domain.ExpectVersion(prev)
}
