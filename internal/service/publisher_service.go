package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/architeacher/svc-event-bus/internal/domain"
	"github.com/architeacher/svc-event-bus/internal/infrastructure"
	"github.com/architeacher/svc-event-bus/internal/ports"
	"github.com/architeacher/svc-event-bus/internal/shared/backoff"
	"github.com/architeacher/svc-event-bus/pkg/queue"
)

type (
	PublisherService interface {
		FetchPendingEvents(ctx context.Context, batchSize int) ([]*domain.OutboxEvent, error)
		FetchRetryableEvents(ctx context.Context, batchSize int) ([]*domain.OutboxEvent, error)
		PublishEvent(ctx context.Context, event *domain.OutboxEvent) (*domain.PublishOutboxEventResult, error)
	}

	publisherService struct {
		outboxRepo      ports.OutboxRepository
		publisher       ports.EventPublisher
		backoffStrategy backoff.Strategy
		logger          infrastructure.Logger
		metrics         infrastructure.Metrics
	}
)

func NewPublisherService(
	outboxRepo ports.OutboxRepository,
	publisher ports.EventPublisher,
	backoffStrategy backoff.Strategy,
	logger infrastructure.Logger,
	metrics infrastructure.Metrics,
) PublisherService {
	return publisherService{
		outboxRepo:      outboxRepo,
		publisher:       publisher,
		backoffStrategy: backoffStrategy,
		logger:          logger,
		metrics:         metrics,
	}
}

func (s publisherService) FetchPendingEvents(ctx context.Context, batchSize int) ([]*domain.OutboxEvent, error) {
	return s.outboxRepo.FindPending(ctx, batchSize)
}

func (s publisherService) FetchRetryableEvents(ctx context.Context, batchSize int) ([]*domain.OutboxEvent, error) {
	return s.outboxRepo.FindRetryable(ctx, batchSize)
}

// PublishEvent claims the event and relays it to the broker. Failures are recorded on the event
// and reported in the result; the returned error is reserved for bookkeeping failures.
func (s publisherService) PublishEvent(ctx context.Context, event *domain.OutboxEvent) (*domain.PublishOutboxEventResult, error) {
	claimedEvent, err := s.outboxRepo.ClaimForProcessing(ctx, event.ID)
	if err != nil {
		s.logger.Debug().
			Err(err).
			Str("event_id", event.ID.String()).
			Msg("failed to claim event for processing")

		return &domain.PublishOutboxEventResult{
			Published: false,
			Error:     fmt.Sprintf("failed to claim event: %v", err),
		}, nil
	}

	exchange := queue.ExchangeName(claimedEvent.Exchange)

	if err := s.relay(ctx, claimedEvent); err != nil {
		s.metrics.RecordMessagePublished(ctx, claimedEvent.Exchange, false)

		if handleErr := s.handlePublishFailure(ctx, claimedEvent, err); handleErr != nil {
			s.logger.Error().
				Err(handleErr).
				Str("event_id", claimedEvent.ID.String()).
				Msg("failed to handle publish failure")

			return nil, handleErr
		}

		return &domain.PublishOutboxEventResult{
			Published: false,
			Error:     fmt.Sprintf("failed to publish to %s: %v", exchange, err),
		}, nil
	}

	s.metrics.RecordMessagePublished(ctx, claimedEvent.Exchange, true)

	if err := s.outboxRepo.MarkPublished(ctx, claimedEvent.ID); err != nil {
		return nil, fmt.Errorf("failed to mark event %s as published: %w", claimedEvent.ID, err)
	}

	s.metrics.RecordOutboxEvent(ctx, true, string(claimedEvent.Priority))

	s.logger.Debug().
		Str("event_id", claimedEvent.ID.String()).
		Str("event_type", string(claimedEvent.EventType)).
		Str("routing_key", claimedEvent.RoutingKey).
		Msg("successfully published outbox event")

	return &domain.PublishOutboxEventResult{Published: true}, nil
}

func (s publisherService) relay(ctx context.Context, event *domain.OutboxEvent) error {
	key := queue.RoutingKey(event.RoutingKey)
	payload := json.RawMessage(event.Payload)

	if event.IsDelayed() {
		if queue.ExchangeName(event.Exchange) != queue.ExchangeWebhooks {
			return fmt.Errorf("delayed delivery is only supported on the %s exchange", queue.ExchangeWebhooks)
		}

		return s.publisher.DelayedPublishWebhook(ctx, key, payload, event.Delay)
	}

	return s.publisher.Publish(ctx, queue.ExchangeName(event.Exchange), key, payload)
}

func (s publisherService) handlePublishFailure(ctx context.Context, event *domain.OutboxEvent, publishErr error) error {
	errorDetails := publishErr.Error()

	s.metrics.RecordOutboxEvent(ctx, false, string(event.Priority))

	if event.RetryCount >= event.MaxRetries {
		if err := s.outboxRepo.MarkPermanentlyFailed(ctx, event.ID, errorDetails); err != nil {
			return fmt.Errorf("failed to mark event as permanently failed: %w", err)
		}

		s.logger.Warn().
			Err(&domain.MaxRetriesExceededError{
				EventID:    event.ID.String(),
				RetryCount: event.RetryCount,
				MaxRetries: event.MaxRetries,
			}).
			Str("event_id", event.ID.String()).
			Msg("event permanently failed after max retries")

		return nil
	}

	nextRetryAt := time.Now().Add(s.backoffStrategy.Backoff(event.RetryCount))

	if err := s.outboxRepo.MarkFailed(ctx, event.ID, errorDetails, &nextRetryAt); err != nil {
		return fmt.Errorf("failed to mark event as failed: %w", err)
	}

	s.logger.Debug().
		Err(publishErr).
		Str("event_id", event.ID.String()).
		Int("retry_count", event.RetryCount+1).
		Time("next_retry_at", nextRetryAt).
		Msg("event scheduled for retry")

	return nil
}
