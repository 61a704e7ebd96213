package application

import (
	"context"

	"github.com/dmehra2102/payment-reconciliation/internal/payment/domain"
)

type PaymentRepository interface {
	// Get returns the stored record for orderID; found is false when none exists.
	Get(ctx context.Context, orderID string) (rec domain.Record, found bool, err error)
	// ConditionalPut stores rec only when the stored record satisfies pre.
	// A terminal stored record is reported as *domain.TerminalError, any other
	// mismatch as domain.ErrConcurrentUpdate.
	ConditionalPut(ctx context.Context, rec domain.Record, pre domain.Precondition) error
}

type AnnouncementStore interface {
	// InsertIfAbsent stores ev under ev.Key() and schedules its publication.
	// It returns domain.ErrEventAlreadyPublished when the key already exists.
	InsertIfAbsent(ctx context.Context, ev domain.PaymentEvent) error
}

type ChargeResult struct {
	PaymentID string
	Status    domain.Status
}

type PaymentGateway interface {
	Charge(ctx context.Context, cmd domain.SubmitPaymentCommand) (ChargeResult, error)
}
