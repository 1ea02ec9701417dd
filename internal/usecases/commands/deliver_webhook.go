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
	DeliverWebhookCommand struct {
		Trigger domain.WebhookTriggerMessage
	}

	DeliverWebhookHandler decorator.CommandHandler[DeliverWebhookCommand, *domain.DeliveryResult]

	deliverWebhookHandler struct {
		webhookDeliveryService service.WebhookDeliveryService
	}
)

func NewDeliverWebhookHandler(
	webhookDeliveryService service.WebhookDeliveryService,
	logger infrastructure.Logger,
	tracerProvider trace.TracerProvider,
	metricsClient decorator.MetricsClient,
) DeliverWebhookHandler {
	return decorator.ApplyCommandDecorators[DeliverWebhookCommand, *domain.DeliveryResult](
		deliverWebhookHandler{
			webhookDeliveryService: webhookDeliveryService,
		},
		logger,
		tracerProvider,
		metricsClient,
	)
}

func (h deliverWebhookHandler) Handle(
	ctx context.Context,
	cmd DeliverWebhookCommand,
) (*domain.DeliveryResult, error) {
	return h.webhookDeliveryService.DeliverWebhook(ctx, cmd.Trigger)
}
