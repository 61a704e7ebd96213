package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArguments, fmt.Sprintf(format, args...))
}

// Validate checks the order facts carried by every payment command.
func (o Order) Validate() error {
	var errs []error
	if strings.TrimSpace(o.OrderID) == "" {
		errs = append(errs, invalid("orderId is required"))
	}
	if strings.TrimSpace(o.SKU) == "" {
		errs = append(errs, invalid("sku is required"))
	}
	if o.Units <= 0 {
		errs = append(errs, invalid("units must be positive, got %d", o.Units))
	}
	if o.Price.IsNegative() {
		errs = append(errs, invalid("price must not be negative, got %s", o.Price))
	}
	if strings.TrimSpace(o.UserID) == "" {
		errs = append(errs, invalid("userId is required"))
	}
	return errors.Join(errs...)
}

type GetPaymentCommand struct {
	OrderID string
}

func NewGetPaymentCommand(orderID string) (GetPaymentCommand, error) {
	if strings.TrimSpace(orderID) == "" {
		return GetPaymentCommand{}, invalid("orderId is required")
	}
	return GetPaymentCommand{OrderID: orderID}, nil
}

type SubmitPaymentCommand struct {
	Order
}

// NewSubmitPaymentCommand refuses to build a charge for an order whose
// existing payment is already settled.
func NewSubmitPaymentCommand(o Order, existing *Record) (SubmitPaymentCommand, error) {
	if err := o.Validate(); err != nil {
		return SubmitPaymentCommand{}, err
	}
	if existing != nil && existing.Status.Terminal() {
		return SubmitPaymentCommand{}, AlreadyTerminal(*existing)
	}
	return SubmitPaymentCommand{Order: o}, nil
}

type RecordPaymentCommand struct {
	Existing  *Record
	Order     Order
	PaymentID string
	Status    Status
}

func NewRecordPaymentCommand(existing *Record, o Order, paymentID string, status Status) (RecordPaymentCommand, error) {
	if err := o.Validate(); err != nil {
		return RecordPaymentCommand{}, err
	}
	if !status.Valid() {
		return RecordPaymentCommand{}, invalid("unknown payment status %q", status)
	}
	if existing != nil {
		if existing.OrderID != o.OrderID {
			return RecordPaymentCommand{}, invalid("existing record belongs to order %s, not %s", existing.OrderID, o.OrderID)
		}
		if existing.Status.Terminal() {
			return RecordPaymentCommand{}, AlreadyTerminal(*existing)
		}
	}
	return RecordPaymentCommand{
		Existing:  existing,
		Order:     o,
		PaymentID: paymentID,
		Status:    status,
	}, nil
}

// ParseStockAllocated decodes and validates a stock allocated notification.
func ParseStockAllocated(body []byte) (Order, error) {
	var o Order
	if err := json.Unmarshal(body, &o); err != nil {
		return Order{}, invalid("malformed stock allocated notification: %v", err)
	}
	if err := o.Validate(); err != nil {
		return Order{}, err
	}
	return o, nil
}
