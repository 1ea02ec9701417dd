package usecases

import (
	"github.com/architeacher/svc-event-bus/internal/infrastructure"
	"github.com/architeacher/svc-event-bus/internal/service"
	"github.com/architeacher/svc-event-bus/internal/shared/decorator"
	"github.com/architeacher/svc-event-bus/internal/usecases/commands"
	otelTrace "go.opentelemetry.io/otel/trace"
)

type (
	SubscriberApplication struct {
		Commands SubscriberCommands
	}

	SubscriberCommands struct {
		ProcessTaskResultHandler    commands.ProcessTaskResultHandler
		DispatchWebhookEventHandler commands.DispatchWebhookEventHandler
		DeliverWebhookHandler       commands.DeliverWebhookHandler
	}
)

func NewSubscriberApplication(
	taskResultService service.TaskResultService,
	webhookEventService service.WebhookEventService,
	webhookDeliveryService service.WebhookDeliveryService,
	logger infrastructure.Logger,
	tracerProvider otelTrace.TracerProvider,
	metricsClient decorator.MetricsClient,
) *SubscriberApplication {
	return &SubscriberApplication{
		Commands: SubscriberCommands{
			ProcessTaskResultHandler: commands.NewProcessTaskResultHandler(
				taskResultService, logger, tracerProvider, metricsClient,
			),
			DispatchWebhookEventHandler: commands.NewDispatchWebhookEventHandler(
				webhookEventService, logger, tracerProvider, metricsClient,
			),
			DeliverWebhookHandler: commands.NewDeliverWebhookHandler(
				webhookDeliveryService, logger, tracerProvider, metricsClient,
			),
		},
	}
}
