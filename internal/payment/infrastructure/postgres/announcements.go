package postgres

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/payment-reconciliation/internal/payment/domain"
	"github.com/dmehra2102/payment-reconciliation/pkg/tracing"
)

// AnnouncementStore records each payment event once and enqueues it on the
// outbox in the same transaction.
type AnnouncementStore struct {
	log     *slog.Logger
	pool    *pgxpool.Pool
	headers map[string]string
}

func NewAnnouncementStore(log *slog.Logger, pool *pgxpool.Pool, headers map[string]string) *AnnouncementStore {
	return &AnnouncementStore{log: log, pool: pool, headers: headers}
}

func (s *AnnouncementStore) InsertIfAbsent(ctx context.Context, ev domain.PaymentEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	ct, err := tx.Exec(ctx, `INSERT INTO payment_announcements (order_id, kind, payload) VALUES ($1,$2,$3) ON CONFLICT (order_id, kind) DO NOTHING`,
		ev.OrderID, string(ev.Kind), payload)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrEventAlreadyPublished
	}

	_, err = tx.Exec(ctx, `INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, headers, traceparent, status) VALUES ($1,$2,$3,$4,$5,$6,'pending')`,
		"payment", ev.OrderID, string(ev.Kind), payload, s.headers, tracing.Traceparent(ctx))
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}
