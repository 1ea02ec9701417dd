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

var _ ports.MessageHandler = (*TaskResultWorker)(nil)

// TaskResultWorker consumes task results reported by the processing workers.
type TaskResultWorker struct {
	worker
	app *usecases.SubscriberApplication
}

func NewTaskResultWorker(
	app *usecases.SubscriberApplication,
	validate *validator.Validate,
	logger infrastructure.Logger,
	metrics infrastructure.Metrics,
) *TaskResultWorker {
	return &TaskResultWorker{
		worker: worker{
			queue:    queue.QueueTask,
			validate: validate,
			logger:   logger,
			metrics:  metrics,
		},
		app: app,
	}
}

func (w *TaskResultWorker) ProcessMessage(ctx context.Context, msg *queue.Message, settler ports.MessageSettler) error {
	var payload domain.TaskResultMessage

	return w.process(ctx, msg, settler, &payload, func(ctx context.Context) error {
		_, err := w.app.Commands.ProcessTaskResultHandler.Handle(ctx, commands.ProcessTaskResultCommand{
			Message: payload,
		})

		return err
	})
}
