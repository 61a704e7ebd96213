package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dmehra2102/payment-reconciliation/internal/payment/domain"
)

// Outcome is the normalized result of a submission. Err is set, wrapping
// domain.ErrPaymentFailed, exactly when Status is FAILED.
type Outcome struct {
	PaymentID string
	Status    domain.Status
	Err       error
}

type Submitter struct {
	log     *slog.Logger
	gateway PaymentGateway
}

func NewSubmitter(log *slog.Logger, gateway PaymentGateway) *Submitter {
	return &Submitter{log: log, gateway: gateway}
}

// Submit decides whether the gateway is charged for o given the existing
// record and folds the reply into an Outcome. A settled existing record is
// reported as *domain.TerminalError without contacting the gateway.
func (s *Submitter) Submit(ctx context.Context, o domain.Order, existing *domain.Record) (Outcome, error) {
	var priorID string
	if existing != nil {
		priorID = existing.PaymentID
		if existing.Retries >= domain.RetryLimit {
			s.log.Warn("retry limit reached, rejecting payment",
				"order_id", o.OrderID, "payment_retries", existing.Retries)
			return Outcome{PaymentID: priorID, Status: domain.StatusRejected}, nil
		}
	}

	cmd, err := domain.NewSubmitPaymentCommand(o, existing)
	if err != nil {
		return Outcome{}, err
	}

	res, err := s.gateway.Charge(ctx, cmd)
	switch {
	case err == nil:
	case domain.IsTerminal(err):
		// Another worker settled the charge first.
		status := domain.StatusAccepted
		if errors.Is(err, domain.ErrPaymentAlreadyRejected) {
			status = domain.StatusRejected
		}
		paymentID := priorID
		var te *domain.TerminalError
		if errors.As(err, &te) && te.Record.PaymentID != "" {
			paymentID = te.Record.PaymentID
		}
		s.log.Info("gateway reports payment already settled",
			"order_id", o.OrderID, "payment_status", status, "payment_id", paymentID)
		return Outcome{PaymentID: paymentID, Status: status}, nil
	default:
		return failed(priorID, err), nil
	}

	switch res.Status {
	case domain.StatusAccepted, domain.StatusRejected:
		if res.PaymentID == "" {
			return failed(priorID, fmt.Errorf("gateway reply for %s has no payment id", o.OrderID)), nil
		}
		return Outcome{PaymentID: res.PaymentID, Status: res.Status}, nil
	default:
		return failed(priorID, fmt.Errorf("unexpected gateway status %q", res.Status)), nil
	}
}

func failed(paymentID string, cause error) Outcome {
	return Outcome{
		PaymentID: paymentID,
		Status:    domain.StatusFailed,
		Err:       fmt.Errorf("%w: %w", domain.ErrPaymentFailed, cause),
	}
}
