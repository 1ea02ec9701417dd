package queue

import (
	"context"

	"github.com/architeacher/svc-event-bus/internal/domain"
	"github.com/architeacher/svc-event-bus/internal/infrastructure"
	"github.com/architeacher/svc-event-bus/internal/ports"
	"github.com/architeacher/svc-event-bus/internal/usecases"
	"github.com/architeacher/svc-event-bus/internal/usecases/commands"
	"github.com/architeacher/svc-event-bus/pkg/queue"
	"github.com/go-playground/validator/v10"
)

var _ ports.MessageHandler = (*WebhookEventWorker)(nil)

// WebhookEventWorker fans platform events out to the subscribed webhooks.
type WebhookEventWorker struct {
	worker
	app *usecases.SubscriberApplication
}

func NewWebhookEventWorker(
	app *usecases.SubscriberApplication,
	validate *validator.Validate,
	logger infrastructure.Logger,
	metrics infrastructure.Metrics,
) *WebhookEventWorker {
	return &WebhookEventWorker{
		worker: worker{
			queue:    queue.QueueEvents,
			validate: validate,
			logger:   logger,
			metrics:  metrics,
		},
		app: app,
	}
}

func (w *WebhookEventWorker) ProcessMessage(ctx context.Context, msg *queue.Message, settler ports.MessageSettler) error {
	var payload domain.WebhookEventMessage

	return w.process(ctx, msg, settler, &payload, func(ctx context.Context) error {
		_, err := w.app.Commands.DispatchWebhookEventHandler.Handle(ctx, commands.DispatchWebhookEventCommand{
			Event: payload,
		})

		return err
	})
}
