package domain

import (
	"fmt"
	"time"
)

type EventKind string

const (
	KindPaymentAccepted EventKind = "PaymentAccepted"
	KindPaymentRejected EventKind = "PaymentRejected"
)

// PaymentEvent announces the final outcome of a payment. At most one event of
// each kind exists per order.
type PaymentEvent struct {
	Kind EventKind `json:"-"`
	Order
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func NewPaymentEvent(rec Record) (PaymentEvent, error) {
	var kind EventKind
	switch rec.Status {
	case StatusAccepted:
		kind = KindPaymentAccepted
	case StatusRejected:
		kind = KindPaymentRejected
	default:
		return PaymentEvent{}, fmt.Errorf("%w: no event for payment status %q", ErrInvalidArguments, rec.Status)
	}
	return PaymentEvent{
		Kind:      kind,
		Order:     rec.Order,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}

// Key identifies the announcement for deduplication.
func (e PaymentEvent) Key() string {
	return e.OrderID + ":" + string(e.Kind)
}
