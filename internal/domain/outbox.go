package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusProcessing OutboxStatus = "processing"
	OutboxStatusPublished  OutboxStatus = "published"
	OutboxStatusFailed     OutboxStatus = "failed"

	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"

	OutboxEventTaskTrigger    OutboxEventType = "task.trigger"
	OutboxEventWebhookEvent   OutboxEventType = "webhook.event"
	OutboxEventWebhookTrigger OutboxEventType = "webhook.trigger"

	AggregateTask    = "task"
	AggregateWebhook = "webhook"
)

type (
	OutboxStatus    string
	Priority        string
	OutboxEventType string

	// OutboxEvent is a message stored alongside a state change and relayed to the broker afterwards.
	OutboxEvent struct {
		ID            uuid.UUID       `json:"id"`
		AggregateID   uuid.UUID       `json:"aggregate_id"`
		AggregateType string          `json:"aggregate_type"`
		EventType     OutboxEventType `json:"event_type"`
		Exchange      string          `json:"exchange"`
		RoutingKey    string          `json:"routing_key"`
		Delay         time.Duration   `json:"delay,omitempty"`
		Priority      Priority        `json:"priority"`
		RetryCount    int             `json:"retry_count"`
		MaxRetries    int             `json:"max_retries"`
		Status        OutboxStatus    `json:"status"`
		Payload       json.RawMessage `json:"payload"`
		ErrorDetails  *string         `json:"error_details,omitempty"`
		CreatedAt     time.Time       `json:"created_at"`
		StartedAt     *time.Time      `json:"started_at,omitempty"`
		PublishedAt   *time.Time      `json:"published_at,omitempty"`
		NextRetryAt   *time.Time      `json:"next_retry_at,omitempty"`
	}

	PublishOutboxEventResult struct {
		Published bool
		Error     string
	}
)

// NewOutboxEvent prepares a pending event carrying payload as JSON.
func NewOutboxEvent(
	aggregateType string,
	aggregateID uuid.UUID,
	eventType OutboxEventType,
	exchange, routingKey string,
	priority Priority,
	maxRetries int,
	payload any,
) (*OutboxEvent, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &OutboxEvent{
		ID:            uuid.New(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Exchange:      exchange,
		RoutingKey:    routingKey,
		Priority:      priority,
		MaxRetries:    maxRetries,
		Status:        OutboxStatusPending,
		Payload:       body,
		CreatedAt:     time.Now(),
	}, nil
}

func (e *OutboxEvent) MarkProcessing(startedAt time.Time) error {
	if e.Status != OutboxStatusPending && e.Status != OutboxStatusFailed {
		return &InvalidStateTransitionError{
			From: string(e.Status),
			To:   string(OutboxStatusProcessing),
		}
	}

	e.Status = OutboxStatusProcessing
	e.StartedAt = &startedAt

	return nil
}

func (e *OutboxEvent) MarkPublished(publishedAt time.Time) error {
	if e.Status != OutboxStatusProcessing {
		return &InvalidStateTransitionError{
			From: string(e.Status),
			To:   string(OutboxStatusPublished),
		}
	}

	e.Status = OutboxStatusPublished
	e.PublishedAt = &publishedAt
	e.ErrorDetails = nil
	e.NextRetryAt = nil

	return nil
}

func (e *OutboxEvent) MarkFailed(errorDetails string, nextRetryAt *time.Time) error {
	if e.RetryCount >= e.MaxRetries {
		return &MaxRetriesExceededError{
			EventID:    e.ID.String(),
			RetryCount: e.RetryCount,
			MaxRetries: e.MaxRetries,
		}
	}

	e.Status = OutboxStatusFailed
	e.ErrorDetails = &errorDetails
	e.NextRetryAt = nextRetryAt
	e.RetryCount++

	return nil
}

func (e *OutboxEvent) CanRetry() bool {
	return e.RetryCount < e.MaxRetries
}

// IsDelayed reports whether the event goes through a delay queue.
func (e *OutboxEvent) IsDelayed() bool {
	return e.Delay > 0
}
