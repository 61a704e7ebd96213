package main

import (
	"context"

	"github.com/dmehra2102/payment-reconciliation/pkg/config"
	"github.com/dmehra2102/payment-reconciliation/pkg/logging"
)

func runMigrate(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logging.New(cfg.LogLevel)

	s, err := openStores(ctx, log, cfg, true)
	if err != nil {
		return err
	}
	defer s.close()

	log.Info("migrations applied", "driver", cfg.StoreDriver)
	return nil
}
