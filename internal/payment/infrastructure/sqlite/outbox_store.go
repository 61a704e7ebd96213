package sqlite

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/dmehra2102/payment-reconciliation/pkg/outbox"
)

type OutboxStore struct {
	store       *Store
	maxAttempts int
}

func NewOutboxStore(store *Store, maxAttempts int) *OutboxStore {
	return &OutboxStore{store: store, maxAttempts: maxAttempts}
}

// LockBatch leases pending and lease-expired events. SQLite serialises
// writers, so the transaction alone keeps relays apart.
func (s *OutboxStore) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]outbox.Event, error) {
	now := s.store.now()
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, type, payload, headers, traceparent, created_at, retry_count
		FROM outbox
		WHERE status = 'pending' OR (status = 'in_progress' AND lease_until < ?)
		ORDER BY id
		LIMIT ?`, now.UnixMilli(), batchSize)
	if err != nil {
		return nil, err
	}

	var events []outbox.Event
	for rows.Next() {
		var (
			ev                 outbox.Event
			headers, createdAt string
		)
		if err := rows.Scan(&ev.ID, &ev.AggregateType, &ev.AggregateID, &ev.Type, &ev.Payload, &headers, &ev.Traceparent, &createdAt, &ev.RetryCount); err != nil {
			rows.Close()
			return nil, err
		}
		if err := json.Unmarshal([]byte(headers), &ev.Headers); err != nil {
			rows.Close()
			return nil, err
		}
		if ev.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			rows.Close()
			return nil, err
		}
		ev.Status = outbox.StatusInProgress
		ev.RelayID = relayID
		events = append(events, ev)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, tx.Commit()
	}

	ids := make([]any, 0, len(events)+2)
	ids = append(ids, relayID, now.Add(lease).UnixMilli())
	for _, ev := range events {
		ids = append(ids, ev.ID)
	}
	_, err = tx.ExecContext(ctx, `UPDATE outbox SET status = 'in_progress', relay_id = ?, lease_until = ? WHERE id IN (`+placeholders(len(events))+`)`, ids...)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *OutboxStore) MarkSent(ctx context.Context, ids []int64) error {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.store.db.ExecContext(ctx, `UPDATE outbox SET status = 'sent', lease_until = NULL WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	return err
}

func (s *OutboxStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := s.store.db.ExecContext(ctx, `
		UPDATE outbox
		SET status = CASE WHEN retry_count + 1 >= ? THEN 'failed' ELSE 'pending' END,
			last_error = ?, retry_count = retry_count + 1, lease_until = NULL
		WHERE id = ?`, s.maxAttempts, errMsg, id)
	return err
}

// Status reports the outbox status of an event.
func (s *OutboxStore) Status(ctx context.Context, id int64) (outbox.Status, error) {
	var st string
	err := s.store.db.QueryRowContext(ctx, `SELECT status FROM outbox WHERE id = ?`, id).Scan(&st)
	return outbox.Status(st), err
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
