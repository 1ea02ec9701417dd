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

var _ ports.MessageHandler = (*WebhookDeliveryWorker)(nil)

// WebhookDeliveryWorker performs one delivery attempt per trigger.
type WebhookDeliveryWorker struct {
	worker
	app *usecases.SubscriberApplication
}

func NewWebhookDeliveryWorker(
	app *usecases.SubscriberApplication,
	validate *validator.Validate,
	logger infrastructure.Logger,
	metrics infrastructure.Metrics,
) *WebhookDeliveryWorker {
	return &WebhookDeliveryWorker{
		worker: worker{
			queue:    queue.QueueWebhooks,
			validate: validate,
			logger:   logger,
			metrics:  metrics,
		},
		app: app,
	}
}

func (w *WebhookDeliveryWorker) ProcessMessage(ctx context.Context, msg *queue.Message, settler ports.MessageSettler) error {
	var payload domain.WebhookTriggerMessage

	return w.process(ctx, msg, settler, &payload, func(ctx context.Context) error {
		result, err := w.app.Commands.DeliverWebhookHandler.Handle(ctx, commands.DeliverWebhookCommand{
			Trigger: payload,
		})
		if err != nil {
			return err
		}

		if result.Duplicate {
			w.logger.Debug().
				Str("delivery_id", payload.DeliveryID).
				Int("attempt", payload.Attempt).
				Msg("delivery attempt already handled")
		}

		return nil
	})
}
