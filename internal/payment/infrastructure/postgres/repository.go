package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/payment-reconciliation/internal/payment/domain"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) Get(ctx context.Context, orderID string) (domain.Record, bool, error) {
	var (
		rec   domain.Record
		price string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT order_id, sku, units, price::text, user_id, payment_id, payment_status, payment_retries, created_at, updated_at
		FROM payments WHERE order_id=$1`, orderID).
		Scan(&rec.OrderID, &rec.SKU, &rec.Units, &price, &rec.UserID, &rec.PaymentID, &rec.Status, &rec.Retries, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Record{}, false, nil
	}
	if err != nil {
		return domain.Record{}, false, err
	}
	if rec.Price, err = decimal.NewFromString(price); err != nil {
		return domain.Record{}, false, err
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec, true, nil
}

// ConditionalPut issues a single conditional statement; when it affects no
// row the stored record is read back to report why.
func (r *Repository) ConditionalPut(ctx context.Context, rec domain.Record, pre domain.Precondition) error {
	var (
		query string
		args  []any
	)
	if !pre.Exists {
		query = `INSERT INTO payments (order_id, sku, units, price, user_id, payment_id, payment_status, payment_retries, created_at, updated_at)
			VALUES ($1,$2,$3,$4::numeric,$5,$6,$7,$8,$9,$10)
			ON CONFLICT (order_id) DO NOTHING`
		args = []any{rec.OrderID, rec.SKU, rec.Units, rec.Price.String(), rec.UserID, rec.PaymentID, rec.Status, rec.Retries, rec.CreatedAt, rec.UpdatedAt}
	} else {
		query = `UPDATE payments
			SET payment_id=$2, payment_status=$3, payment_retries=$4, updated_at=$5
			WHERE order_id=$1 AND payment_retries=$6 AND payment_status NOT IN ('ACCEPTED','REJECTED')`
		args = []any{rec.OrderID, rec.PaymentID, rec.Status, rec.Retries, rec.UpdatedAt, pre.Retries}
	}

	ct, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}

	current, found, err := r.Get(ctx, rec.OrderID)
	if err != nil {
		return err
	}
	var stored *domain.Record
	if found {
		stored = &current
	}
	if err := pre.Check(stored); err != nil {
		return err
	}
	// The row moved between the write and the read back.
	return domain.ErrConcurrentUpdate
}
