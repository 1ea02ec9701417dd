package commands

import (
	"context"
	"errors"

	"github.com/architeacher/svc-event-bus/internal/domain"
	"github.com/architeacher/svc-event-bus/internal/infrastructure"
	"github.com/architeacher/svc-event-bus/internal/service"
	"github.com/architeacher/svc-event-bus/internal/shared/decorator"
	"go.opentelemetry.io/otel/trace"
)

type (
	PublishOutboxEventCommand struct {
		Event *domain.OutboxEvent
	}

	PublishOutboxEventHandler decorator.CommandHandler[PublishOutboxEventCommand, *domain.PublishOutboxEventResult]

	publishOutboxEventHandler struct {
		publisherService service.PublisherService
	}
)

func NewPublishOutboxEventHandler(
	publisherService service.PublisherService,
	logger infrastructure.Logger,
	tracerProvider trace.TracerProvider,
	metricsClient decorator.MetricsClient,
) PublishOutboxEventHandler {
	return decorator.ApplyCommandDecorators[PublishOutboxEventCommand, *domain.PublishOutboxEventResult](
		publishOutboxEventHandler{
			publisherService: publisherService,
		},
		logger,
		tracerProvider,
		metricsClient,
	)
}

func (h publishOutboxEventHandler) Handle(
	ctx context.Context,
	cmd PublishOutboxEventCommand,
) (*domain.PublishOutboxEventResult, error) {
	if cmd.Event == nil {
		return nil, errors.New("outbox event is required")
	}

	return h.publisherService.PublishEvent(ctx, cmd.Event)
}
