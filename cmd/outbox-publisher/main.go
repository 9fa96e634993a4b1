package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/saga-coordinator/pkg/config"
	"github.com/angelmondragon/saga-coordinator/pkg/db"
	"github.com/angelmondragon/saga-coordinator/pkg/logger"
	"github.com/angelmondragon/saga-coordinator/pkg/metrics"
	"github.com/angelmondragon/saga-coordinator/pkg/migrate"
	"github.com/angelmondragon/saga-coordinator/pkg/outbox"
	"github.com/angelmondragon/saga-coordinator/pkg/pubsub"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "outbox-publisher"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "outbox-publisher"
	logg = logger.ForService("outbox-publisher", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithField(ctx, "serviceKind", cfg.Service.Kind)

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "outbox publisher shutting down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, pubsubClient.Close()) }()

	topics, err := outbox.NewTopicRegistry(cfg.PubSub)
	if err != nil {
		return err
	}

	service, err := NewService(ServiceParams{
		Config:     cfg,
		Logger:     logg,
		Metrics:    metrics.NewSagaMetrics(prometheus.DefaultRegisterer),
		DB:         dbClient,
		PubSub:     pubsubClient,
		Publishers: pubsubClient,
		Repository: outbox.NewRepository(dbClient.DB()),
		Topics:     topics,
	})
	if err != nil {
		return err
	}

	logg.Info(ctx, "starting outbox publisher")
	g, gctx := errgroup.WithContext(ctx)
	runCtx, stopMetrics := context.WithCancel(gctx)
	g.Go(func() error {
		defer stopMetrics()
		return service.Run(runCtx)
	})
	g.Go(func() error {
		return metrics.Serve(runCtx, cfg.App.MetricsAddr, prometheus.DefaultGatherer, logg)
	})
	return g.Wait()
}
