package main

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	paymentgrpc "github.com/dmehra2102/payment-reconciliation/internal/payment/infrastructure/grpc"
	"github.com/dmehra2102/payment-reconciliation/pkg/config"
	"github.com/dmehra2102/payment-reconciliation/pkg/idempotency"
	"github.com/dmehra2102/payment-reconciliation/pkg/logging"
	"github.com/dmehra2102/payment-reconciliation/pkg/shutdown"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:     "payment-gateway",
		Short:   "Simulated payment gateway served over gRPC",
		Version: Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a config file (env vars override it)")
	return rootCmd
}

func run(parent context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logging.New(cfg.LogLevel)

	ctx, cancel := shutdown.WithSignals(parent, log)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error("redis ping failed", "addr", cfg.RedisAddr, "err", err)
		return err
	}

	sim := paymentgrpc.NewSimulator(log, idempotency.NewStore(rdb, cfg.GatewayMemory), cfg.GatewayLimit, cfg.GatewayFailureRate)
	srv, err := paymentgrpc.Run(cfg.GatewayGRPCAddr, sim)
	if err != nil {
		log.Error("grpc listen failed", "addr", cfg.GatewayGRPCAddr, "err", err)
		return err
	}
	log.Info("payment gateway listening", "addr", cfg.GatewayGRPCAddr,
		"limit", cfg.GatewayLimit, "failure_rate", cfg.GatewayFailureRate)

	<-ctx.Done()
	srv.GracefulStop()
	log.Info("payment-gateway shutdown complete")
	return nil
}
