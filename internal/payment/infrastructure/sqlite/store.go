// Package sqlite keeps payment records, announcements and the outbox in a
// single SQLite database. It suits single-node deployments and tests; the
// database handle must be limited to one open connection.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/dmehra2102/payment-reconciliation/internal/payment/domain"
	"github.com/dmehra2102/payment-reconciliation/pkg/tracing"
)

const schema = `
CREATE TABLE IF NOT EXISTS payments (
	order_id        TEXT PRIMARY KEY,
	sku             TEXT NOT NULL,
	units           INTEGER NOT NULL,
	price           TEXT NOT NULL,
	user_id         TEXT NOT NULL,
	payment_id      TEXT NOT NULL,
	payment_status  TEXT NOT NULL,
	payment_retries INTEGER NOT NULL DEFAULT 0,
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS payment_announcements (
	order_id   TEXT NOT NULL,
	kind       TEXT NOT NULL,
	payload    BLOB NOT NULL,
	created_at TEXT NOT NULL,
	PRIMARY KEY (order_id, kind)
);
CREATE TABLE IF NOT EXISTS outbox (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	aggregate_type TEXT NOT NULL,
	aggregate_id   TEXT NOT NULL,
	type           TEXT NOT NULL,
	payload        BLOB NOT NULL,
	headers        TEXT NOT NULL DEFAULT '{}',
	traceparent    TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT 'pending',
	relay_id       TEXT,
	lease_until    INTEGER,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	last_error     TEXT,
	created_at     TEXT NOT NULL
);
`

// Open opens (creating if needed) the database at path; ":memory:" is accepted.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}

type Store struct {
	log     *slog.Logger
	db      *sql.DB
	headers map[string]string
	now     func() time.Time
}

func NewStore(log *slog.Logger, db *sql.DB, headers map[string]string) *Store {
	return &Store{
		log:     log,
		db:      db,
		headers: headers,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Get(ctx context.Context, orderID string) (domain.Record, bool, error) {
	var (
		rec                         domain.Record
		price, createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT order_id, sku, units, price, user_id, payment_id, payment_status, payment_retries, created_at, updated_at
		FROM payments WHERE order_id = ?`, orderID).
		Scan(&rec.OrderID, &rec.SKU, &rec.Units, &price, &rec.UserID, &rec.PaymentID, &rec.Status, &rec.Retries, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Record{}, false, nil
	}
	if err != nil {
		return domain.Record{}, false, err
	}
	if rec.Price, err = decimal.NewFromString(price); err != nil {
		return domain.Record{}, false, err
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return domain.Record{}, false, err
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return domain.Record{}, false, err
	}
	return rec, true, nil
}

func (s *Store) ConditionalPut(ctx context.Context, rec domain.Record, pre domain.Precondition) error {
	var (
		res sql.Result
		err error
	)
	if !pre.Exists {
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO payments (order_id, sku, units, price, user_id, payment_id, payment_status, payment_retries, created_at, updated_at)
			VALUES (?,?,?,?,?,?,?,?,?,?)
			ON CONFLICT (order_id) DO NOTHING`,
			rec.OrderID, rec.SKU, rec.Units, rec.Price.String(), rec.UserID, rec.PaymentID, string(rec.Status), rec.Retries,
			rec.CreatedAt.Format(time.RFC3339Nano), rec.UpdatedAt.Format(time.RFC3339Nano))
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE payments
			SET payment_id = ?, payment_status = ?, payment_retries = ?, updated_at = ?
			WHERE order_id = ? AND payment_retries = ? AND payment_status NOT IN ('ACCEPTED','REJECTED')`,
			rec.PaymentID, string(rec.Status), rec.Retries, rec.UpdatedAt.Format(time.RFC3339Nano), rec.OrderID, pre.Retries)
	}
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 1 {
		return nil
	}

	current, found, err := s.Get(ctx, rec.OrderID)
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
	return domain.ErrConcurrentUpdate
}

func (s *Store) InsertIfAbsent(ctx context.Context, ev domain.PaymentEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	headers, err := json.Marshal(s.headers)
	if err != nil {
		return err
	}
	now := s.now().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, `INSERT INTO payment_announcements (order_id, kind, payload, created_at) VALUES (?,?,?,?) ON CONFLICT (order_id, kind) DO NOTHING`,
		ev.OrderID, string(ev.Kind), payload, now)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return domain.ErrEventAlreadyPublished
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, headers, traceparent, status, created_at) VALUES (?,?,?,?,?,?,'pending',?)`,
		"payment", ev.OrderID, string(ev.Kind), payload, string(headers), tracing.Traceparent(ctx), now)
	if err != nil {
		return err
	}
	return tx.Commit()
}
