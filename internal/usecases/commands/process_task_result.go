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
	ProcessTaskResultCommand struct {
		Message domain.TaskResultMessage
	}

	ProcessTaskResultHandler decorator.CommandHandler[ProcessTaskResultCommand, *domain.TaskResultOutcome]

	processTaskResultHandler struct {
		taskResultService service.TaskResultService
	}
)

func NewProcessTaskResultHandler(
	taskResultService service.TaskResultService,
	logger infrastructure.Logger,
	tracerProvider trace.TracerProvider,
	metricsClient decorator.MetricsClient,
) ProcessTaskResultHandler {
	return decorator.ApplyCommandDecorators[ProcessTaskResultCommand, *domain.TaskResultOutcome](
		processTaskResultHandler{
			taskResultService: taskResultService,
		},
		logger,
		tracerProvider,
		metricsClient,
	)
}

func (h processTaskResultHandler) Handle(
	ctx context.Context,
	cmd ProcessTaskResultCommand,
) (*domain.TaskResultOutcome, error) {
	return h.taskResultService.ProcessTaskResult(ctx, cmd.Message)
}
