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

	"github.com/angelmondragon/saga-coordinator/internal/sagas"
	"github.com/angelmondragon/saga-coordinator/pkg/config"
	"github.com/angelmondragon/saga-coordinator/pkg/db"
	"github.com/angelmondragon/saga-coordinator/pkg/idempotency"
	"github.com/angelmondragon/saga-coordinator/pkg/invoke"
	"github.com/angelmondragon/saga-coordinator/pkg/logger"
	"github.com/angelmondragon/saga-coordinator/pkg/metrics"
	"github.com/angelmondragon/saga-coordinator/pkg/migrate"
	"github.com/angelmondragon/saga-coordinator/pkg/pubsub"
	"github.com/angelmondragon/saga-coordinator/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "worker"

	logg = logger.ForService("worker", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithField(ctx, "serviceKind", cfg.Service.Kind)

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "worker shutting down gracefully")
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

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	guard, err := idempotency.NewManager(redisClient, cfg.Eventing.InboundIdempotencyTTL)
	if err != nil {
		return err
	}

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, pubsubClient.Close()) }()

	sagaMetrics := metrics.NewSagaMetrics(prometheus.DefaultRegisterer)
	stack, err := invoke.NewStack(ctx, cfg, logg, sagaMetrics)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, stack.Close()) }()

	orchestrator, err := sagas.NewOrchestrator(sagas.NewRepository(dbClient.DB()), stack.Client, logg, sagaMetrics)
	if err != nil {
		return err
	}
	ingestor, err := sagas.NewIngestor(orchestrator, guard, logg)
	if err != nil {
		return err
	}

	statusConsumer, err := sagas.NewStatusConsumer(ingestor, pubsubClient.StatusSubscription(), logg)
	if err != nil {
		return err
	}
	consumers := []consumer{statusConsumer}
	for flow := range pubsub.InitSubscriptions(cfg.PubSub) {
		c, err := sagas.NewInitConsumer(ingestor, flow, pubsubClient.InitSubscription(flow), logg)
		if err != nil {
			return err
		}
		consumers = append(consumers, c)
	}

	service, err := NewService(ServiceParams{
		Config:    cfg,
		Logger:    logg,
		DB:        dbClient,
		Redis:     redisClient,
		PubSub:    pubsubClient,
		Consumers: consumers,
	})
	if err != nil {
		return err
	}

	logg.Info(ctx, "starting worker")
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
