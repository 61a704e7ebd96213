package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/dmehra2102/payment-reconciliation/internal/payment/application"
	paymentamqp "github.com/dmehra2102/payment-reconciliation/internal/payment/infrastructure/amqp"
	paymentgrpc "github.com/dmehra2102/payment-reconciliation/internal/payment/infrastructure/grpc"
	paymenthttp "github.com/dmehra2102/payment-reconciliation/internal/payment/infrastructure/http"
	paymentkafka "github.com/dmehra2102/payment-reconciliation/internal/payment/infrastructure/kafka"
	"github.com/dmehra2102/payment-reconciliation/pkg/config"
	"github.com/dmehra2102/payment-reconciliation/pkg/logging"
	"github.com/dmehra2102/payment-reconciliation/pkg/outbox"
	"github.com/dmehra2102/payment-reconciliation/pkg/shutdown"
	"github.com/dmehra2102/payment-reconciliation/pkg/tracing"
)

func runServe(parent context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logging.New(cfg.LogLevel)

	ctx, cancel := shutdown.WithSignals(parent, log)
	defer cancel()

	tp, err := tracing.Init(ctx, cfg.ServiceName, cfg.OTelURL, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		return err
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	// sqlite is a local single-file store, so serve creates its tables itself.
	s, err := openStores(ctx, log, cfg, cfg.StoreDriver == config.DriverSQLite)
	if err != nil {
		log.Error("store init failed", "driver", cfg.StoreDriver, "err", err)
		return err
	}
	defer s.close()

	gateway, err := paymentgrpc.NewGatewayClient(log, cfg.GatewayAddr, 5*time.Second)
	if err != nil {
		log.Error("gateway client init failed", "addr", cfg.GatewayAddr, "err", err)
		return err
	}
	defer gateway.Close()

	reconciler := application.NewReconciler(log, s.payments, gateway, s.announcements)
	batch := application.NewBatchController(log, reconciler)

	writer := paymentkafka.NewWriter(cfg.KafkaAddr)
	defer writer.Close()
	dispatch := outbox.NewDispatcher(log, writer, cfg.OutTopic)
	relay := outbox.NewRelay(log, s.outbox, dispatch, cfg.ServiceName+"-relay")

	handler := paymenthttp.NewHandler(log, application.NewRecordReader(s.payments), batch)
	r := chi.NewRouter()
	r.Mount("/", handler.Routes())
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return relay.Run(gctx) })

	switch cfg.Transport {
	case config.TransportAMQP:
		conn, ch, err := paymentamqp.Dial(cfg.AMQPURL)
		if err != nil {
			log.Error("amqp connect failed", "err", err)
			cancel()
			_ = g.Wait()
			return err
		}
		defer conn.Close()
		consumer := paymentamqp.NewConsumer(log, ch, cfg.AMQPQueue, batch, cfg.BatchSize, cfg.BatchWait)
		g.Go(func() error { return consumer.Run(gctx) })
	default:
		consumer := paymentkafka.NewConsumer(log, cfg.KafkaAddr, cfg.InTopic, cfg.GroupID, batch, cfg.BatchSize, cfg.BatchWait)
		g.Go(func() error { return consumer.Run(gctx) })
	}

	g.Go(func() error {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("payment-service stopped with error", "err", err)
		return err
	}
	log.Info("payment-service shutdown complete")
	return nil
}
