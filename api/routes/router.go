package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/saga-coordinator/api/controllers"
	"github.com/angelmondragon/saga-coordinator/api/middleware"
	"github.com/angelmondragon/saga-coordinator/internal/business"
	"github.com/angelmondragon/saga-coordinator/internal/sagas"
	"github.com/angelmondragon/saga-coordinator/pkg/config"
	"github.com/angelmondragon/saga-coordinator/pkg/enums"
	"github.com/angelmondragon/saga-coordinator/pkg/logger"
	"github.com/angelmondragon/saga-coordinator/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	readiness map[string]controllers.Pinger,
	orchestrator *sagas.Orchestrator,
	ingestor *sagas.Ingestor,
	businessService business.Service,
	idempotencyStore redis.ResponseStore,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSAllowedOrigins),
		middleware.Idempotency(idempotencyStore, logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api/saga", func(r chi.Router) {
		r.Post("/init", controllers.SagaInit(orchestrator, logg))
		r.Get("/{transactionId}", controllers.SagaGet(orchestrator, logg))

		r.Post("/status-handler", controllers.SagaStatusHandler(ingestor, logg))
		r.Post("/init-handler", controllers.SagaInitHandler(ingestor, enums.SagaFlowGeneric, logg))
		r.Post("/buy-in/init-handler", controllers.SagaInitHandler(ingestor, enums.SagaFlowBuyIn, logg))
		r.Post("/cash-out/init-handler", controllers.SagaInitHandler(ingestor, enums.SagaFlowCashOut, logg))
	})

	r.Route("/api/business", func(r chi.Router) {
		r.Post("/buy-in", controllers.BusinessBuyIn(businessService, logg))
		r.Post("/cash-out", controllers.BusinessCashOut(businessService, logg))
	})

	if !cfg.App.IsProd() {
		r.Post("/api/test/trigger-via-eventstore", controllers.TriggerViaEventStore(businessService, logg))
	}

	return r
}
