package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/architeacher/svc-event-bus/internal/config"
	"github.com/architeacher/svc-event-bus/internal/domain"
	"github.com/architeacher/svc-event-bus/internal/infrastructure"
	"github.com/architeacher/svc-event-bus/internal/ports"
	"github.com/architeacher/svc-event-bus/internal/shared/backoff"
	"github.com/architeacher/svc-event-bus/pkg/queue"
	"github.com/google/uuid"
)

type (
	WebhookDeliveryService interface {
		DeliverWebhook(ctx context.Context, trigger domain.WebhookTriggerMessage) (*domain.DeliveryResult, error)
	}

	webhookDeliveryService struct {
		webhookRepo     ports.WebhookRepository
		guard           ports.DeliveryGuard
		signer          ports.PayloadSigner
		sender          ports.WebhookSender
		publisher       ports.EventPublisher
		backoffStrategy backoff.Strategy
		config          config.WebhookConfig
		logger          infrastructure.Logger
		metrics         infrastructure.Metrics
		now             func() time.Time
	}
)

func NewWebhookDeliveryService(
	webhookRepo ports.WebhookRepository,
	guard ports.DeliveryGuard,
	signer ports.PayloadSigner,
	sender ports.WebhookSender,
	publisher ports.EventPublisher,
	backoffStrategy backoff.Strategy,
	cfg config.WebhookConfig,
	logger infrastructure.Logger,
	metrics infrastructure.Metrics,
) WebhookDeliveryService {
	return webhookDeliveryService{
		webhookRepo:     webhookRepo,
		guard:           guard,
		signer:          signer,
		sender:          sender,
		publisher:       publisher,
		backoffStrategy: backoffStrategy,
		config:          cfg,
		logger:          logger,
		metrics:         metrics,
		now:             time.Now,
	}
}

// DeliverWebhook sends one attempt of a trigger. A retryable failure schedules the next attempt
// through a delay queue and still counts as handled; an error means the trigger must be redelivered.
func (s webhookDeliveryService) DeliverWebhook(ctx context.Context, trigger domain.WebhookTriggerMessage) (*domain.DeliveryResult, error) {
	webhookID, err := uuid.Parse(trigger.WebhookID)
	if err != nil {
		return nil, domain.NewInvalidMessageError(queue.WebhookKey(trigger.WebhookID).String(), err)
	}

	webhook, err := s.webhookRepo.Find(ctx, webhookID)
	if err != nil {
		return nil, err
	}

	if webhook.Disabled {
		s.logger.Info().
			Str("webhook_id", trigger.WebhookID).
			Str("delivery_id", trigger.DeliveryID).
			Msg("skipping delivery to disabled webhook")

		return &domain.DeliveryResult{}, nil
	}

	guardKey := trigger.DeliveryID + ":" + strconv.Itoa(trigger.Attempt)

	acquired, err := s.guard.Acquire(ctx, guardKey, s.config.DeliveryIDTTL)
	if err != nil {
		s.logger.Warn().Err(err).Str("delivery_id", guardKey).Msg("delivery guard unavailable, delivering anyway")
	} else if !acquired {
		s.logger.Info().
			Str("webhook_id", trigger.WebhookID).
			Str("delivery_id", guardKey).
			Msg("duplicate webhook delivery skipped")

		return &domain.DeliveryResult{Duplicate: true}, nil
	}

	result, err := s.deliver(ctx, webhook, trigger)
	if err != nil {
		if releaseErr := s.guard.Release(ctx, guardKey); releaseErr != nil {
			s.logger.Warn().Err(releaseErr).Str("delivery_id", guardKey).Msg("failed to release delivery guard")
		}

		return nil, err
	}

	return result, nil
}

func (s webhookDeliveryService) deliver(
	ctx context.Context,
	webhook *domain.Webhook,
	trigger domain.WebhookTriggerMessage,
) (*domain.DeliveryResult, error) {
	now := s.now()

	body, err := json.Marshal(domain.NewWebhookPayload(webhook, trigger, now))
	if err != nil {
		return nil, fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	signature, err := s.signer.Sign(ctx, ports.SignatureClaims{
		WebhookID:  trigger.WebhookID,
		DeliveryID: trigger.DeliveryID,
		Event:      trigger.Event.Event.String(),
	}, body)
	if err != nil {
		return nil, fmt.Errorf("failed to sign webhook payload: %w", err)
	}

	resp, sendErr := s.sender.Send(ctx, ports.WebhookRequest{
		WebhookID:  trigger.WebhookID,
		DeliveryID: trigger.DeliveryID,
		URL:        webhook.URL,
		Event:      trigger.Event.Event,
		Body:       body,
		Signature:  signature,
	})

	result := &domain.DeliveryResult{}

	var duration time.Duration
	if resp != nil {
		result.StatusCode = resp.StatusCode
		duration = resp.Duration
	}

	s.metrics.RecordWebhookDelivery(ctx, sendErr == nil, result.StatusCode, duration)

	if sendErr == nil {
		result.Delivered = true
		webhook.RecordSuccess(now)
		s.recordStatus(ctx, webhook)

		s.logger.Info().
			Str("webhook_id", trigger.WebhookID).
			Str("delivery_id", trigger.DeliveryID).
			Int("attempt", trigger.Attempt).
			Int("status_code", result.StatusCode).
			Msg("webhook delivered")

		return result, nil
	}

	// Local throttling says nothing about the endpoint.
	if !errors.Is(sendErr, domain.ErrRateLimitExceeded) && !errors.Is(sendErr, domain.ErrCircuitBreakerOpen) {
		responseBody := ""
		if resp != nil {
			responseBody = resp.Body
		}

		webhook.RecordFailure(now, result.StatusCode, responseBody, sendErr.Error())
		s.recordStatus(ctx, webhook)
	}

	if !domain.IsRetryableDelivery(sendErr) || trigger.Attempt >= s.config.MaxAttempts {
		s.logger.Warn().
			Err(sendErr).
			Str("webhook_id", trigger.WebhookID).
			Str("delivery_id", trigger.DeliveryID).
			Int("attempt", trigger.Attempt).
			Msg("webhook delivery abandoned")

		return result, nil
	}

	delay := s.backoffStrategy.Backoff(trigger.Attempt - 1)
	next := trigger.NextAttempt()

	if err := s.publisher.DelayedPublishWebhook(ctx, queue.WebhookKey(trigger.WebhookID), next, delay); err != nil {
		return nil, fmt.Errorf("failed to schedule retry of delivery %s: %w", trigger.DeliveryID, err)
	}

	result.RetryScheduled = true
	result.RetryDelay = delay

	s.logger.Info().
		Err(sendErr).
		Str("webhook_id", trigger.WebhookID).
		Str("delivery_id", trigger.DeliveryID).
		Int("next_attempt", next.Attempt).
		Dur("delay", delay).
		Msg("webhook delivery failed, retry scheduled")

	return result, nil
}

func (s webhookDeliveryService) recordStatus(ctx context.Context, webhook *domain.Webhook) {
	if err := s.webhookRepo.UpdateStatus(ctx, webhook); err != nil {
		s.logger.Warn().Err(err).Str("webhook_id", webhook.ID.String()).Msg("failed to record webhook status")
	}
}
