//go:generate go tool github.com/maxbrunsfeld/counterfeiter/v6 -generate

package ports

import (
	"context"
	"time"

	"github.com/architeacher/svc-event-bus/internal/domain"
)

//counterfeiter:generate -o ../mocks/subscription_cache.go . SubscriptionCache
//counterfeiter:generate -o ../mocks/delivery_guard.go . DeliveryGuard

type (
	// SubscriptionCache memoises the webhook fan-out list per user and event.
	SubscriptionCache interface {
		// Get reports ok=false on a miss.
		Get(ctx context.Context, userID string, event domain.EventKey) (webhooks []*domain.Webhook, ok bool, err error)
		Set(ctx context.Context, userID string, event domain.EventKey, webhooks []*domain.Webhook) error
		Invalidate(ctx context.Context, userID string) error
	}

	// DeliveryGuard makes webhook delivery idempotent across redeliveries.
	DeliveryGuard interface {
		// Acquire returns false when deliveryID was already claimed within ttl.
		Acquire(ctx context.Context, deliveryID string, ttl time.Duration) (bool, error)
		Release(ctx context.Context, deliveryID string) error
	}
)
