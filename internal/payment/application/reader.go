package application

import (
	"context"
	"fmt"

	"github.com/dmehra2102/payment-reconciliation/internal/payment/domain"
)

type RecordReader struct {
	repo PaymentRepository
}

func NewRecordReader(repo PaymentRepository) *RecordReader {
	return &RecordReader{repo: repo}
}

// Get returns nil when the order has no payment record yet.
func (r *RecordReader) Get(ctx context.Context, cmd domain.GetPaymentCommand) (*domain.Record, error) {
	rec, found, err := r.repo.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, fmt.Errorf("read payment %s: %w", cmd.OrderID, storeFault(err))
	}
	if !found {
		return nil, nil
	}
	return &rec, nil
}

// storeFault marks unclassified repository errors as store faults.
func storeFault(err error) error {
	if domain.Kind(err) != "internal" {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
}
