package service

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/architeacher/svc-event-bus/internal/domain"
	"github.com/architeacher/svc-event-bus/internal/infrastructure"
	"github.com/architeacher/svc-event-bus/internal/ports"
	"github.com/architeacher/svc-event-bus/pkg/queue"
	"golang.org/x/sync/errgroup"
)

const maxConcurrentFanOut = 8

type (
	WebhookEventService interface {
		DispatchEvent(ctx context.Context, msg domain.WebhookEventMessage) (*domain.DispatchResult, error)
	}

	webhookEventService struct {
		webhookRepo ports.WebhookRepository
		cache       ports.SubscriptionCache
		publisher   ports.EventPublisher
		logger      infrastructure.Logger
		metrics     infrastructure.Metrics
	}
)

func NewWebhookEventService(
	webhookRepo ports.WebhookRepository,
	cache ports.SubscriptionCache,
	publisher ports.EventPublisher,
	logger infrastructure.Logger,
	metrics infrastructure.Metrics,
) WebhookEventService {
	return webhookEventService{
		webhookRepo: webhookRepo,
		cache:       cache,
		publisher:   publisher,
		logger:      logger,
		metrics:     metrics,
	}
}

// DispatchEvent publishes one trigger per subscribed webhook. Delivery ids are derived from the
// event and webhook, so a redelivered event produces the same triggers.
func (s webhookEventService) DispatchEvent(ctx context.Context, msg domain.WebhookEventMessage) (*domain.DispatchResult, error) {
	webhooks, err := s.subscribedWebhooks(ctx, msg.UserID, msg.Event)
	if err != nil {
		return nil, err
	}

	result := &domain.DispatchResult{}

	var published atomic.Int32

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(maxConcurrentFanOut)

	for _, webhook := range webhooks {
		if !webhook.SubscribesTo(msg.Event) {
			continue
		}

		result.Matched++

		trigger := domain.WebhookTriggerMessage{
			DeliveryID: domain.NewDeliveryID(msg.ID, webhook.ID),
			WebhookID:  webhook.ID.String(),
			Attempt:    1,
			Event:      msg,
		}

		group.Go(func() error {
			err := s.publisher.PublishWebhook(groupCtx, queue.WebhookKey(trigger.WebhookID), trigger)
			s.metrics.RecordMessagePublished(groupCtx, string(queue.ExchangeWebhooks), err == nil)

			if err != nil {
				return fmt.Errorf("failed to publish trigger for webhook %s: %w", trigger.WebhookID, err)
			}

			published.Add(1)

			return nil
		})
	}

	err = group.Wait()
	result.Published = int(published.Load())

	if err != nil {
		return result, err
	}

	s.logger.Debug().
		Str("event_id", msg.ID).
		Str("event", msg.Event.String()).
		Str("user_id", msg.UserID).
		Int("matched", result.Matched).
		Msg("webhook event dispatched")

	return result, nil
}

// subscribedWebhooks reads through the cache. The cache is an optimisation, so its failures
// only fall back to the repository.
func (s webhookEventService) subscribedWebhooks(ctx context.Context, userID string, event domain.EventKey) ([]*domain.Webhook, error) {
	webhooks, ok, err := s.cache.Get(ctx, userID, event)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to read subscription cache")
	}

	if ok {
		return webhooks, nil
	}

	webhooks, err = s.webhookRepo.FindSubscribed(ctx, userID, event)
	if err != nil {
		return nil, fmt.Errorf("failed to find webhooks subscribed to %s: %w", event, err)
	}

	if err := s.cache.Set(ctx, userID, event, webhooks); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to populate subscription cache")
	}

	return webhooks, nil
}
