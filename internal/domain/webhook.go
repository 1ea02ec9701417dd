package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

type (
	Webhook struct {
		ID        uuid.UUID     `json:"id"`
		UserID    string        `json:"userId"`
		Name      string        `json:"name"`
		URL       string        `json:"url"`
		Events    []EventKey    `json:"events"`
		Disabled  bool          `json:"disabled,omitempty"`
		Status    WebhookStatus `json:"status"`
		CreatedAt time.Time     `json:"createdAt"`
	}

	WebhookStatus struct {
		LastFailure     *WebhookFailure `json:"lastFailure,omitempty"`
		LastTriggeredAt *time.Time      `json:"lastTriggeredAt,omitempty"`
	}

	WebhookFailure struct {
		Timestamp  time.Time `json:"timestamp"`
		StatusCode int       `json:"statusCode,omitempty"`
		Response   string    `json:"response,omitempty"`
		Error      string    `json:"error,omitempty"`
	}

	// WebhookTriggerMessage is published under webhooks.<id>, once per subscribed webhook and attempt.
	WebhookTriggerMessage struct {
		DeliveryID string              `json:"deliveryId" validate:"required,uuid"`
		WebhookID  string              `json:"webhookId" validate:"required,uuid"`
		Attempt    int                 `json:"attempt" validate:"min=1"`
		Event      WebhookEventMessage `json:"event" validate:"required"`
	}

	// WebhookPayload is the body POSTed to the subscriber endpoint.
	WebhookPayload struct {
		ID        string              `json:"id"`
		WebhookID string              `json:"webhookId"`
		CreatedAt int64               `json:"createdAt"`
		Timestamp int64               `json:"timestamp"`
		Event     EventKey            `json:"event"`
		UserID    string              `json:"userId"`
		Payload   WebhookEventMessage `json:"payload"`
	}

	// WebhookResponse is what the endpoint answered.
	WebhookResponse struct {
		StatusCode int
		Body       string
		Duration   time.Duration
	}

	DispatchResult struct {
		Matched   int
		Published int
	}

	DeliveryResult struct {
		Delivered      bool
		Duplicate      bool
		StatusCode     int
		RetryScheduled bool
		RetryDelay     time.Duration
	}
)

func (w *Webhook) SubscribesTo(event EventKey) bool {
	if w.Disabled {
		return false
	}

	return slices.Contains(w.Events, event) || slices.Contains(w.Events, EventWildcard)
}

func (w *Webhook) RecordSuccess(now time.Time) {
	w.Status.LastTriggeredAt = &now
}

func (w *Webhook) RecordFailure(now time.Time, statusCode int, response, errMsg string) {
	w.Status.LastTriggeredAt = &now
	w.Status.LastFailure = &WebhookFailure{
		Timestamp:  now,
		StatusCode: statusCode,
		Response:   response,
		Error:      errMsg,
	}
}

// NextAttempt returns the trigger for the following retry.
func (m WebhookTriggerMessage) NextAttempt() WebhookTriggerMessage {
	next := m
	next.Attempt++

	return next
}

func NewWebhookPayload(webhook *Webhook, trigger WebhookTriggerMessage, now time.Time) WebhookPayload {
	return WebhookPayload{
		ID:        trigger.DeliveryID,
		WebhookID: webhook.ID.String(),
		CreatedAt: trigger.Event.Timestamp.UnixMilli(),
		Timestamp: now.UnixMilli(),
		Event:     trigger.Event.Event,
		UserID:    webhook.UserID,
		Payload:   trigger.Event,
	}
}

// DeliveryNamespace is the UUID V5 namespace for webhook deliveries.
// Generated via: uuid_generate_v5('6ba7b811-9dad-11d1-80b4-00c04fd430c8', 'svc-event-bus:delivery')
var DeliveryNamespace = uuid.MustParse("3cb522ef-d2da-5d71-8b90-f747c13e8b65")

// NewDeliveryID is stable for an event and webhook pair, so a redelivered event fans out to the same deliveries.
func NewDeliveryID(eventID string, webhookID uuid.UUID) string {
	return uuid.NewSHA1(DeliveryNamespace, []byte(eventID+"::"+webhookID.String())).String()
}
