package domain

import (
	"encoding/json"
	"time"
)

// EventKey names a platform event webhooks can subscribe to.
type EventKey string

const (
	EventTaskSpawned   EventKey = "task.spawned"
	EventTaskUpdated   EventKey = "task.updated"
	EventTaskCompleted EventKey = "task.completed"
	EventTaskFailed    EventKey = "task.failed"
	EventAssetCreated  EventKey = "asset.created"
	EventAssetReady    EventKey = "asset.ready"
	EventAssetFailed   EventKey = "asset.failed"
	EventAssetDeleted  EventKey = "asset.deleted"

	// EventWildcard subscribes a webhook to every event.
	EventWildcard EventKey = "*"
)

// KnownEvents lists every event the platform emits.
func KnownEvents() []EventKey {
	return []EventKey{
		EventTaskSpawned, EventTaskUpdated, EventTaskCompleted, EventTaskFailed,
		EventAssetCreated, EventAssetReady, EventAssetFailed, EventAssetDeleted,
	}
}

func (k EventKey) String() string {
	return string(k)
}

// WebhookEventMessage is published under events.<event> and fanned out to subscribed webhooks.
type WebhookEventMessage struct {
	ID        string          `json:"id" validate:"required,uuid"`
	Event     EventKey        `json:"event" validate:"required"`
	UserID    string          `json:"userId" validate:"required"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
