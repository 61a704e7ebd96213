package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/payment-reconciliation/internal/payment/application"
	pg "github.com/dmehra2102/payment-reconciliation/internal/payment/infrastructure/postgres"
	"github.com/dmehra2102/payment-reconciliation/internal/payment/infrastructure/sqlite"
	"github.com/dmehra2102/payment-reconciliation/pkg/config"
	"github.com/dmehra2102/payment-reconciliation/pkg/outbox"
)

type stores struct {
	payments      application.PaymentRepository
	announcements application.AnnouncementStore
	outbox        outbox.Store
	close         func()
}

func openStores(ctx context.Context, log *slog.Logger, cfg config.Config, migrate bool) (stores, error) {
	headers := map[string]string{"source": cfg.ServiceName}

	switch cfg.StoreDriver {
	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return stores{}, fmt.Errorf("open sqlite %s: %w", cfg.SQLitePath, err)
		}
		if migrate {
			if err := sqlite.Migrate(ctx, db); err != nil {
				_ = db.Close()
				return stores{}, err
			}
		}
		store := sqlite.NewStore(log, db, headers)
		return stores{
			payments:      store,
			announcements: store,
			outbox:        sqlite.NewOutboxStore(store, cfg.OutboxTries),
			close:         func() { _ = db.Close() },
		}, nil

	default:
		pool, err := pgxpool.New(ctx, cfg.PGURL)
		if err != nil {
			return stores{}, fmt.Errorf("pg connect: %w", err)
		}
		if migrate {
			if err := pg.Migrate(ctx, pool); err != nil {
				pool.Close()
				return stores{}, err
			}
		}
		return stores{
			payments:      pg.NewRepository(log, pool),
			announcements: pg.NewAnnouncementStore(log, pool, headers),
			outbox:        pg.NewOutboxStore(log, pool, cfg.OutboxTries),
			close:         pool.Close,
		}, nil
	}
}
