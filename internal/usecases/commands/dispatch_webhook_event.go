package commands

import (
	"context"

	"github.com/architeacher/svc-event-bus/internal/domain"
	"github.com/architeacher/svc-event-bus/internal/infrastructure"
	"github.com/architeacher/svc-event-bus/internal/service"
	"github.com/architeacher/svc-event-bus/internal/shared/decorator"
	"go.opentelemetry.io/otel/trace"
)

type (
	DispatchWebhookEventCommand struct {
		Event domain.WebhookEventMessage
	}

	DispatchWebhookEventHandler decorator.CommandHandler[DispatchWebhookEventCommand, *domain.DispatchResult]

	dispatchWebhookEventHandler struct {
		webhookEventService service.WebhookEventService
	}
)

func NewDispatchWebhookEventHandler(
	webhookEventService service.WebhookEventService,
	logger infrastructure.Logger,
	tracerProvider trace.TracerProvider,
	metricsClient decorator.MetricsClient,
) DispatchWebhookEventHandler {
	return decorator.ApplyCommandDecorators[DispatchWebhookEventCommand, *domain.DispatchResult](
		dispatchWebhookEventHandler{
			webhookEventService: webhookEventService,
		},
		logger,
		tracerProvider,
		metricsClient,
	)
}

func (h dispatchWebhookEventHandler) Handle(
	ctx context.Context,
	cmd DispatchWebhookEventCommand,
) (*domain.DispatchResult, error) {
	return h.webhookEventService.DispatchEvent(ctx, cmd.Event)
}
