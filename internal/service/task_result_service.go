package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/architeacher/svc-event-bus/internal/config"
	"github.com/architeacher/svc-event-bus/internal/domain"
	"github.com/architeacher/svc-event-bus/internal/infrastructure"
	"github.com/architeacher/svc-event-bus/internal/ports"
	"github.com/architeacher/svc-event-bus/pkg/queue"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type (
	TaskResultService interface {
		ProcessTaskResult(ctx context.Context, msg domain.TaskResultMessage) (*domain.TaskResultOutcome, error)
	}

	taskResultService struct {
		transactor   ports.Transactor
		taskRepo     ports.TaskRepository
		outboxRepo   ports.OutboxRepository
		taskConfig   config.TaskConfig
		outboxConfig config.OutboxConfig
		logger       infrastructure.Logger
		metrics      infrastructure.Metrics
		now          func() time.Time
	}
)

func NewTaskResultService(
	transactor ports.Transactor,
	taskRepo ports.TaskRepository,
	outboxRepo ports.OutboxRepository,
	taskConfig config.TaskConfig,
	outboxConfig config.OutboxConfig,
	logger infrastructure.Logger,
	metrics infrastructure.Metrics,
) TaskResultService {
	return taskResultService{
		transactor:   transactor,
		taskRepo:     taskRepo,
		outboxRepo:   outboxRepo,
		taskConfig:   taskConfig,
		outboxConfig: outboxConfig,
		logger:       logger,
		metrics:      metrics,
		now:          time.Now,
	}
}

// ProcessTaskResult applies a worker's result to the task. The new status, the retry trigger
// and the task event are committed together and relayed by the outbox publisher.
func (s taskResultService) ProcessTaskResult(ctx context.Context, msg domain.TaskResultMessage) (*domain.TaskResultOutcome, error) {
	taskID, err := uuid.Parse(msg.Task.ID)
	if err != nil {
		return nil, domain.NewInvalidMessageError(queue.TaskResultKey(msg.Task.Type, msg.Task.ID).String(), err)
	}

	task, err := s.taskRepo.Find(ctx, taskID)
	if err != nil {
		return nil, err
	}

	var (
		now         = s.now()
		retried     = false
		errMessage  string
		unretriable bool
	)

	if msg.Error != nil {
		errMessage, unretriable = msg.Error.Message, msg.Error.Unretriable
	}

	switch {
	case msg.Status == domain.TaskResultSuccess:
		err = task.Complete(msg.Output, now)

	case !unretriable && task.CanRetry(s.taskConfig.MaxRetries):
		err = task.ScheduleRetry(errMessage, now)
		retried = true

	default:
		err = task.Fail(errMessage, now)
	}

	if err != nil {
		var transitionErr *domain.InvalidStateTransitionError
		if errors.As(err, &transitionErr) {
			return nil, errors.Join(domain.ErrTaskAlreadyTerminated, err)
		}

		return nil, err
	}

	events, err := s.outboxEvents(task, retried)
	if err != nil {
		return nil, err
	}

	err = s.transactor.WithinTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.taskRepo.UpdateStatusInTx(ctx, tx, task); err != nil {
			return err
		}

		for _, event := range events {
			if err := s.outboxRepo.SaveInTx(ctx, tx, event); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist result of task %s: %w", taskID, err)
	}

	s.metrics.RecordTaskResult(ctx, string(task.Status.Phase))

	s.logger.Info().
		Str("task_id", taskID.String()).
		Str("task_type", task.Type).
		Str("phase", string(task.Status.Phase)).
		Int("retries", task.Status.Retries).
		Bool("retried", retried).
		Msg("task result processed")

	return &domain.TaskResultOutcome{
		TaskID:  taskID,
		Phase:   task.Status.Phase,
		Retried: retried,
	}, nil
}

func (s taskResultService) outboxEvents(task *domain.Task, retried bool) ([]*domain.OutboxEvent, error) {
	event := task.Status.Phase.EventKey()
	priority := domain.PriorityNormal
	if task.Status.Phase.IsTerminal() {
		priority = domain.PriorityHigh
	}

	snapshot, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task %s: %w", task.ID, err)
	}

	webhookEvent, err := domain.NewOutboxEvent(
		domain.AggregateTask,
		task.ID,
		domain.OutboxEventWebhookEvent,
		string(queue.ExchangeWebhooks),
		queue.EventKey(event.String()).String(),
		priority,
		s.outboxConfig.GetMaxRetriesForPriority(string(priority)),
		domain.WebhookEventMessage{
			ID:        uuid.NewString(),
			Event:     event,
			UserID:    task.UserID,
			Payload:   snapshot,
			Timestamp: task.Status.UpdatedAt,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build task event: %w", err)
	}

	events := []*domain.OutboxEvent{webhookEvent}

	if !retried {
		return events, nil
	}

	trigger, err := domain.NewOutboxEvent(
		domain.AggregateTask,
		task.ID,
		domain.OutboxEventTaskTrigger,
		string(queue.ExchangeTask),
		queue.TaskTriggerKey(task.Type, task.ID.String()).String(),
		domain.PriorityHigh,
		s.outboxConfig.GetMaxRetriesForPriority(config.PriorityHigh),
		task.TriggerMessage(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build task trigger: %w", err)
	}

	return append(events, trigger), nil
}
