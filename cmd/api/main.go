package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/angelmondragon/saga-coordinator/api/controllers"
	"github.com/angelmondragon/saga-coordinator/api/routes"
	"github.com/angelmondragon/saga-coordinator/internal/business"
	"github.com/angelmondragon/saga-coordinator/internal/sagas"
	"github.com/angelmondragon/saga-coordinator/pkg/config"
	"github.com/angelmondragon/saga-coordinator/pkg/db"
	"github.com/angelmondragon/saga-coordinator/pkg/idempotency"
	"github.com/angelmondragon/saga-coordinator/pkg/invoke"
	"github.com/angelmondragon/saga-coordinator/pkg/logger"
	"github.com/angelmondragon/saga-coordinator/pkg/metrics"
	"github.com/angelmondragon/saga-coordinator/pkg/migrate"
	"github.com/angelmondragon/saga-coordinator/pkg/outbox"
	"github.com/angelmondragon/saga-coordinator/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.ForService("api", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
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

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	sagaMetrics := metrics.NewSagaMetrics(registry)

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

	writer, err := outbox.NewWriter(dbClient, outbox.NewEventRepository(dbClient.DB()), outbox.NewRepository(dbClient.DB()), logg)
	if err != nil {
		return err
	}
	businessService, err := business.NewService(writer, cfg.PubSub.InitTopic)
	if err != nil {
		return err
	}

	readiness := map[string]controllers.Pinger{
		"database": dbClient,
		"redis":    redisClient,
	}
	if stack.Resolver != nil {
		readiness["discovery"] = stack.Resolver
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithField(ctx, "addr", addr)

	server := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
		Handler: routes.NewRouter(
			cfg,
			logg,
			readiness,
			orchestrator,
			ingestor,
			businessService,
			redisClient,
			promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		),
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logg.Info(ctx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
