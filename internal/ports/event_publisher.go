//go:generate go tool github.com/maxbrunsfeld/counterfeiter/v6 -generate

package ports

import (
	"context"
	"time"

	"github.com/architeacher/svc-event-bus/pkg/queue"
)

//counterfeiter:generate -o ../mocks/event_publisher.go . EventPublisher

// EventPublisher is the publishing half of queue.Queue.
type EventPublisher interface {
	Publish(ctx context.Context, exchange queue.ExchangeName, key queue.RoutingKey, payload any) error
	PublishWebhook(ctx context.Context, key queue.RoutingKey, payload any) error
	DelayedPublishWebhook(ctx context.Context, key queue.RoutingKey, payload any, delay time.Duration) error
}

var _ EventPublisher = (queue.Queue)(nil)
