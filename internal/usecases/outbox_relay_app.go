package usecases

import (
	"github.com/architeacher/svc-event-bus/internal/infrastructure"
	"github.com/architeacher/svc-event-bus/internal/service"
	"github.com/architeacher/svc-event-bus/internal/shared/decorator"
	"github.com/architeacher/svc-event-bus/internal/usecases/commands"
	"github.com/architeacher/svc-event-bus/internal/usecases/queries"
	otelTrace "go.opentelemetry.io/otel/trace"
)

type (
	// OutboxRelayApplication moves committed outbox rows onto the broker. The publisher process
	// drives it from the outbox processor.
	OutboxRelayApplication struct {
		Commands OutboxRelayCommands
		Queries  OutboxRelayQueries
	}

	OutboxRelayCommands struct {
		PublishOutboxEventHandler commands.PublishOutboxEventHandler
	}

	OutboxRelayQueries struct {
		FetchOutboxBatchHandler queries.FetchOutboxBatchQueryHandler
	}
)

func NewOutboxRelayApplication(
	publisherService service.PublisherService,
	logger infrastructure.Logger,
	tracerProvider otelTrace.TracerProvider,
	metricsClient decorator.MetricsClient,
) *OutboxRelayApplication {
	return &OutboxRelayApplication{
		Commands: OutboxRelayCommands{
			PublishOutboxEventHandler: commands.NewPublishOutboxEventHandler(
				publisherService, logger, tracerProvider, metricsClient,
			),
		},
		Queries: OutboxRelayQueries{
			FetchOutboxBatchHandler: queries.NewFetchOutboxBatchQueryHandler(
				publisherService, logger, tracerProvider, metricsClient,
			),
		},
	}
}
