//go:generate go tool github.com/maxbrunsfeld/counterfeiter/v6 -generate

package ports

import (
	"context"
	"time"

	"github.com/architeacher/svc-event-bus/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

//counterfeiter:generate -o ../mocks/task_repository.go . TaskRepository
//counterfeiter:generate -o ../mocks/webhook_repository.go . WebhookRepository
//counterfeiter:generate -o ../mocks/outbox_repository.go . OutboxRepository
//counterfeiter:generate -o ../mocks/transactor.go . Transactor

type (
	// Transactor runs fn inside a database transaction, committing when it returns nil.
	Transactor interface {
		WithinTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
	}

	TaskRepository interface {
		Find(ctx context.Context, taskID uuid.UUID) (*domain.Task, error)

		// UpdateStatusInTx persists the task status and output within a transaction.
		UpdateStatusInTx(ctx context.Context, tx *sqlx.Tx, task *domain.Task) error
	}

	WebhookRepository interface {
		Find(ctx context.Context, webhookID uuid.UUID) (*domain.Webhook, error)

		// FindSubscribed lists the enabled webhooks of userID subscribed to event.
		FindSubscribed(ctx context.Context, userID string, event domain.EventKey) ([]*domain.Webhook, error)

		UpdateStatus(ctx context.Context, webhook *domain.Webhook) error
	}

	// OutboxRepository handles outbox events for reliable message delivery.
	OutboxRepository interface {
		SaveInTx(ctx context.Context, tx *sqlx.Tx, event *domain.OutboxEvent) error

		// FindPending finds pending outbox events ordered by priority and creation time.
		FindPending(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)

		// FindRetryable finds failed events that are ready for retry.
		FindRetryable(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)

		// ClaimForProcessing atomically claims an event for processing.
		ClaimForProcessing(ctx context.Context, eventID uuid.UUID) (*domain.OutboxEvent, error)

		MarkPublished(ctx context.Context, eventID uuid.UUID) error

		MarkFailed(ctx context.Context, eventID uuid.UUID, errorDetails string, nextRetryAt *time.Time) error

		// MarkPermanentlyFailed clears the retry schedule after max retries.
		MarkPermanentlyFailed(ctx context.Context, eventID uuid.UUID, errorDetails string) error
	}
)
