package runtime

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/architeacher/svc-event-bus/internal/adapters"
	"github.com/architeacher/svc-event-bus/internal/adapters/middleware"
	"github.com/architeacher/svc-event-bus/internal/config"
	"github.com/architeacher/svc-event-bus/internal/infrastructure"
	"github.com/architeacher/svc-event-bus/internal/ports"
	"github.com/architeacher/svc-event-bus/internal/usecases"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/vault/api"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type (
	Applications struct {
		Relay      *usecases.OutboxRelayApplication
		Subscriber *usecases.SubscriberApplication
		Ops        *usecases.OpsApplication
	}

	ApplicationWorkers struct {
		OutboxProcessor ports.BackgroundProcessor
		Consumers       []ports.MessageHandler
	}

	TracerShutdownFunc func(ctx context.Context) error

	InfrastructureDeps struct {
		OpsServer           *http.Server
		SecretStorageClient *api.Client
		StorageClient       *infrastructure.Storage
		QueueClient         infrastructure.Queue
		CacheClient         *infrastructure.KeydbClient
		Metrics             infrastructure.Metrics
	}

	Repos struct {
		SecretStorageRepo ports.SecretsRepository
		Transactor        ports.Transactor
		TaskRepo          ports.TaskRepository
		WebhookRepo       ports.WebhookRepository
		OutboxRepo        ports.OutboxRepository
		SubscriptionCache ports.SubscriptionCache
		DeliveryGuard     ports.DeliveryGuard
	}

	Dependencies struct {
		Apps    Applications
		Workers ApplicationWorkers

		cfg          *config.ServiceConfig
		configLoader *config.Loader

		logger infrastructure.Logger

		Infra InfrastructureDeps
		Repos Repos

		tracerShutdownFunc TracerShutdownFunc
		secretVersion      uint
	}
)

func initializeDependencies(ctx context.Context, opts ...DependencyOption) (*Dependencies, error) {
	cfg, err := config.Init()
	if err != nil {
		return nil, fmt.Errorf("unable to load service configuration: %w", err)
	}

	appLogger := infrastructure.New(cfg.Logging)

	appLogger.Info().Msg("initializing dependencies...")

	deps := &Dependencies{
		cfg:    cfg,
		logger: appLogger,
	}

	options := append(defaultOptions(ctx), opts...)

	for _, opt := range options {
		if err := opt(deps); err != nil {
			return nil, fmt.Errorf("failed to apply dependency option: %w", err)
		}
	}

	deps.logger.Info().Msg("dependencies initialized successfully")

	return deps, nil
}

// initOpsServer builds the server for health checks and the metrics scrape.
func initOpsServer(
	cfg *config.ServiceConfig,
	logger infrastructure.Logger,
	metrics infrastructure.Metrics,
	opsHandler *adapters.OpsHandler,
) *http.Server {
	router := chi.NewRouter()

	router.Use(
		chimiddleware.RequestID,
		chimiddleware.RealIP,
		chimiddleware.Recoverer,
	)

	if cfg.Telemetry.Metrics.Enabled {
		router.Use(middleware.NewMetricsMiddleware(metrics).Middleware)
	}

	if cfg.Logging.AccessLog.Enabled {
		router.Use(
			middleware.NewHealthCheckFilter(cfg.Logging.AccessLog.LogHealthChecks).Middleware,
			middleware.NewAccessLogger(logger.Logger).Middleware,
		)
	}

	router.Get("/healthz", opsHandler.LivenessCheck)
	router.Get("/livez", opsHandler.LivenessCheck)
	router.Get("/readyz", opsHandler.ReadinessCheck)
	router.Method(http.MethodGet, "/metrics", metrics.Handler())

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.OpsServer.Host, strconv.Itoa(cfg.OpsServer.Port)),
		Handler:      otelhttp.NewHandler(router, "ops"),
		ReadTimeout:  cfg.OpsServer.ReadTimeout,
		WriteTimeout: cfg.OpsServer.WriteTimeout,
		IdleTimeout:  cfg.OpsServer.IdleTimeout,
	}

	logger.Info().Str("addr", server.Addr).Msg("ops server created")

	return server
}
