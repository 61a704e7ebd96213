package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidArguments       = errors.New("invalid arguments")
	ErrPaymentAlreadyAccepted = errors.New("payment already accepted")
	ErrPaymentAlreadyRejected = errors.New("payment already rejected")
	ErrPaymentFailed          = errors.New("payment failed")
	ErrEventAlreadyPublished  = errors.New("event already published")
	ErrConcurrentUpdate       = errors.New("payment record changed concurrently")
	ErrStoreUnavailable       = errors.New("store unavailable")
)

// TerminalError reports that the payment of an order is already settled.
// Record holds the durable terminal record when it is known.
type TerminalError struct {
	Record Record
}

func AlreadyTerminal(rec Record) error {
	return &TerminalError{Record: rec}
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("order %s: %v", e.Record.OrderID, e.Unwrap())
}

func (e *TerminalError) Unwrap() error {
	if e.Record.Status == StatusRejected {
		return ErrPaymentAlreadyRejected
	}
	return ErrPaymentAlreadyAccepted
}

// IsTerminal reports whether err carries the already-accepted or
// already-rejected signal.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrPaymentAlreadyAccepted) || errors.Is(err, ErrPaymentAlreadyRejected)
}

// Retryable reports whether the notification that produced err should be
// delivered again. Unclassified faults are assumed transient.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrInvalidArguments),
		errors.Is(err, ErrEventAlreadyPublished),
		IsTerminal(err):
		return false
	default:
		return true
	}
}

func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidArguments):
		return "invalid_arguments"
	case errors.Is(err, ErrPaymentAlreadyAccepted):
		return "already_accepted"
	case errors.Is(err, ErrPaymentAlreadyRejected):
		return "already_rejected"
	case errors.Is(err, ErrEventAlreadyPublished):
		return "duplicate_event"
	case errors.Is(err, ErrPaymentFailed):
		return "payment_failed"
	case errors.Is(err, ErrConcurrentUpdate):
		return "concurrent_update"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
