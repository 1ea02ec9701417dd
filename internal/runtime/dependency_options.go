package runtime

import (
	"context"
	"fmt"

	"github.com/architeacher/svc-event-bus/internal/adapters"
	"github.com/architeacher/svc-event-bus/internal/adapters/outbox"
	"github.com/architeacher/svc-event-bus/internal/adapters/queue"
	"github.com/architeacher/svc-event-bus/internal/adapters/repos"
	"github.com/architeacher/svc-event-bus/internal/config"
	"github.com/architeacher/svc-event-bus/internal/infrastructure"
	"github.com/architeacher/svc-event-bus/internal/ports"
	"github.com/architeacher/svc-event-bus/internal/service"
	"github.com/architeacher/svc-event-bus/internal/shared/backoff"
	"github.com/architeacher/svc-event-bus/internal/usecases"
	"github.com/hashicorp/vault/api"
	"go.opentelemetry.io/otel"
)

type (
	DependencyOption func(*Dependencies) error
)

func defaultOptions(ctx context.Context) []DependencyOption {
	return []DependencyOption{
		WithSecretStorage(),
		WithSecretStorageRepo(),
		WithConfigLoader(ctx),
		WithMetrics(ctx),
		WithTracing(ctx),
	}
}

// WithSecretStorage initializes the Vault client using ENV config.
func WithSecretStorage() DependencyOption {
	return func(d *Dependencies) error {
		cfg := d.cfg.SecretStorage

		vaultConfig := api.DefaultConfig()
		vaultConfig.Address = cfg.Address
		vaultConfig.Timeout = cfg.Timeout

		if cfg.TLSSkipVerify {
			if err := vaultConfig.ConfigureTLS(&api.TLSConfig{Insecure: true}); err != nil {
				return fmt.Errorf("failed to configure TLS: %w", err)
			}
		}

		client, err := api.NewClient(vaultConfig)
		if err != nil {
			return fmt.Errorf("failed to create Vault client: %w", err)
		}

		if cfg.Namespace != "" {
			client.SetNamespace(cfg.Namespace)
		}

		d.Infra.SecretStorageClient = client

		return nil
	}
}

func WithSecretStorageRepo() DependencyOption {
	return func(d *Dependencies) error {
		d.Repos.SecretStorageRepo = repos.NewVaultRepository(d.Infra.SecretStorageClient)

		return nil
	}
}

func WithConfigLoader(ctx context.Context) DependencyOption {
	return func(d *Dependencies) error {
		d.configLoader = config.NewLoader(d.cfg, d.Repos.SecretStorageRepo, d.secretVersion)

		if !d.cfg.SecretStorage.Enabled {
			d.logger.Info().Msg("secret storage is disabled, skipping vault configuration loading")

			return nil
		}

		version, err := d.configLoader.Load(ctx, d.Repos.SecretStorageRepo, d.cfg)
		if err != nil {
			return fmt.Errorf("unable to load service configuration: %w", err)
		}

		d.secretVersion = version

		return nil
	}
}

func WithStorage(ctx context.Context) DependencyOption {
	return func(d *Dependencies) error {
		storage, err := infrastructure.NewStorage(d.cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}

		db, err := storage.GetDB()
		if err != nil {
			return fmt.Errorf("failed to get database connection: %w", err)
		}

		if d.cfg.Storage.MigrateOnStart {
			if err := infrastructure.Migrate(ctx, db, d.logger); err != nil {
				return err
			}
		}

		d.Infra.StorageClient = storage

		return nil
	}
}

// WithCache keeps the client even when the first ping fails; callers treat cache errors as soft
// and the client reconnects on its own.
func WithCache(ctx context.Context) DependencyOption {
	return func(d *Dependencies) error {
		cacheClient := infrastructure.NewKeyDBClient(d.cfg.Cache, d.logger)

		cacheCtx, cancel := context.WithTimeout(ctx, d.cfg.Cache.DialTimeout)
		defer cancel()

		if err := cacheClient.Ping(cacheCtx); err != nil {
			d.logger.Warn().Err(err).Msg("cache is unreachable, continuing in degraded mode")
		} else {
			d.logger.Info().Msg("cache connection established")
		}

		d.Infra.CacheClient = cacheClient

		return nil
	}
}

func WithDataRepos() DependencyOption {
	return func(d *Dependencies) error {
		db, err := d.Infra.StorageClient.GetDB()
		if err != nil {
			return fmt.Errorf("failed to get database connection: %w", err)
		}

		d.Repos.Transactor = repos.NewTransactor(db)
		d.Repos.TaskRepo = repos.NewTaskRepository(db)
		d.Repos.WebhookRepo = repos.NewWebhookRepository(db)
		d.Repos.OutboxRepo = repos.NewOutboxRepository(db)

		if d.Infra.CacheClient != nil {
			d.Repos.SubscriptionCache = repos.NewSubscriptionCacheRepository(d.Infra.CacheClient, d.cfg.Webhook.SubscriptionTTL)
			d.Repos.DeliveryGuard = repos.NewDeliveryGuardRepository(d.Infra.CacheClient)
		}

		return nil
	}
}

func WithMetrics(ctx context.Context) DependencyOption {
	return func(d *Dependencies) error {
		metrics, err := infrastructure.NewMetrics(ctx, *d.cfg, d.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize metrics: %w", err)
		}

		d.Infra.Metrics = metrics

		return nil
	}
}

func WithTracing(ctx context.Context) DependencyOption {
	return func(d *Dependencies) error {
		if !d.cfg.Telemetry.Traces.Enabled {
			d.tracerShutdownFunc = func(_ context.Context) error {
				return nil
			}

			return nil
		}

		tracerShutdownFunc, err := infrastructure.InitGlobalTracer(ctx, d.cfg.Telemetry, d.cfg.AppConfig)
		if err != nil {
			d.logger.Error().Err(err).Msg("failed to initialize global tracer")

			return err
		}

		d.tracerShutdownFunc = tracerShutdownFunc

		return nil
	}
}

// WithQueue connects to the broker; connecting provisions the topology.
func WithQueue(ctx context.Context) DependencyOption {
	return func(d *Dependencies) error {
		queueClient, err := infrastructure.NewQueue(
			ctx,
			d.cfg.Queue,
			d.logger,
			backoff.NewExponentialStrategy(d.cfg.Backoff),
		)
		if err != nil {
			return fmt.Errorf("failed to initialize queue: %w", err)
		}

		d.Infra.QueueClient = queueClient

		return nil
	}
}

// WithOpsServer wires the health endpoints against whatever backing services are present.
func WithOpsServer() DependencyOption {
	return func(d *Dependencies) error {
		if !d.cfg.OpsServer.Enabled {
			d.logger.Info().Msg("ops server is disabled")

			return nil
		}

		var checkerOpts []adapters.HealthCheckerOption

		if d.Infra.StorageClient != nil {
			checkerOpts = append(checkerOpts, adapters.WithStorage(d.Infra.StorageClient))
		}

		if d.Infra.CacheClient != nil {
			checkerOpts = append(checkerOpts, adapters.WithCache(d.Infra.CacheClient))
		}

		if d.Infra.QueueClient != nil && d.cfg.Queue.Enabled {
			checkerOpts = append(checkerOpts, adapters.WithQueue(d.Infra.QueueClient))
		}

		d.Apps.Ops = usecases.NewOpsApplication(
			service.NewHealthService(adapters.NewHealthChecker(checkerOpts...)),
			d.logger,
			otel.GetTracerProvider(),
			adapters.NewMetricsAdapter(d.Infra.Metrics),
		)

		opsHandler := adapters.NewOpsHandler(d.Apps.Ops, d.cfg.AppConfig.ServiceVersion, d.logger)
		d.Infra.OpsServer = initOpsServer(d.cfg, d.logger, d.Infra.Metrics, opsHandler)

		return nil
	}
}

func WithPublisher(ctx context.Context) DependencyOption {
	return func(d *Dependencies) error {
		for _, opt := range []DependencyOption{WithStorage(ctx), WithDataRepos(), WithQueue(ctx)} {
			if err := opt(d); err != nil {
				return err
			}
		}

		publisherService := service.NewPublisherService(
			d.Repos.OutboxRepo,
			d.Infra.QueueClient,
			backoff.NewExponentialStrategy(d.cfg.Backoff),
			d.logger,
			d.Infra.Metrics,
		)

		d.Apps.Relay = usecases.NewOutboxRelayApplication(
			publisherService,
			d.logger,
			otel.GetTracerProvider(),
			adapters.NewMetricsAdapter(d.Infra.Metrics),
		)

		d.Workers.OutboxProcessor = outbox.NewProcessor(
			d.Apps.Relay,
			d.cfg.Outbox,
			d.logger,
		)

		return WithOpsServer()(d)
	}
}

func WithSubscriber(ctx context.Context) DependencyOption {
	return func(d *Dependencies) error {
		for _, opt := range []DependencyOption{WithStorage(ctx), WithCache(ctx), WithDataRepos(), WithQueue(ctx)} {
			if err := opt(d); err != nil {
				return err
			}
		}

		sender, err := adapters.NewWebhookSender(d.cfg.Webhook, d.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize webhook sender: %w", err)
		}

		var secretsRepo ports.SecretsRepository
		if d.cfg.SecretStorage.Enabled {
			secretsRepo = d.Repos.SecretStorageRepo
		}

		signer := infrastructure.NewPasetoSigningService(d.cfg.Webhook.Signing, secretsRepo, d.logger)

		taskResultService := service.NewTaskResultService(
			d.Repos.Transactor,
			d.Repos.TaskRepo,
			d.Repos.OutboxRepo,
			d.cfg.Task,
			d.cfg.Outbox,
			d.logger,
			d.Infra.Metrics,
		)

		webhookEventService := service.NewWebhookEventService(
			d.Repos.WebhookRepo,
			d.Repos.SubscriptionCache,
			d.Infra.QueueClient,
			d.logger,
			d.Infra.Metrics,
		)

		webhookDeliveryService := service.NewWebhookDeliveryService(
			d.Repos.WebhookRepo,
			d.Repos.DeliveryGuard,
			signer,
			sender,
			d.Infra.QueueClient,
			backoff.NewExponentialStrategy(webhookRetryBackoff(d.cfg.Webhook)),
			d.cfg.Webhook,
			d.logger,
			d.Infra.Metrics,
		)

		d.Apps.Subscriber = usecases.NewSubscriberApplication(
			taskResultService,
			webhookEventService,
			webhookDeliveryService,
			d.logger,
			otel.GetTracerProvider(),
			adapters.NewMetricsAdapter(d.Infra.Metrics),
		)

		validate := queue.NewValidator()

		d.Workers.Consumers = []ports.MessageHandler{
			queue.NewTaskResultWorker(d.Apps.Subscriber, validate, d.logger, d.Infra.Metrics),
			queue.NewWebhookEventWorker(d.Apps.Subscriber, validate, d.logger, d.Infra.Metrics),
			queue.NewWebhookDeliveryWorker(d.Apps.Subscriber, validate, d.logger, d.Infra.Metrics),
		}

		return WithOpsServer()(d)
	}
}

func webhookRetryBackoff(cfg config.WebhookConfig) config.BackoffConfig {
	return config.BackoffConfig{
		BaseDelay:  cfg.RetryBaseDelay,
		Multiplier: cfg.RetryMultiplier,
		MaxDelay:   cfg.RetryMaxDelay,
	}
}
