package repos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/architeacher/svc-event-bus/internal/domain"
	"github.com/architeacher/svc-event-bus/internal/infrastructure"
	"github.com/architeacher/svc-event-bus/internal/ports"
)

const (
	subscriptionKeyPrefix = "webhooks:subscriptions"
	deliveryKeyPrefix     = "webhooks:deliveries"
)

type (
	// KeyValueStore is the subset of the KeyDB client the cache repositories rely on.
	KeyValueStore interface {
		Get(ctx context.Context, key string) ([]byte, error)
		Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
		SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
		Del(ctx context.Context, keys ...string) error
	}

	SubscriptionCacheRepository struct {
		store KeyValueStore
		ttl   time.Duration
	}

	DeliveryGuardRepository struct {
		store KeyValueStore
	}
)

var (
	_ KeyValueStore           = (*infrastructure.KeydbClient)(nil)
	_ ports.SubscriptionCache = (*SubscriptionCacheRepository)(nil)
	_ ports.DeliveryGuard     = (*DeliveryGuardRepository)(nil)
)

func NewSubscriptionCacheRepository(store KeyValueStore, ttl time.Duration) *SubscriptionCacheRepository {
	return &SubscriptionCacheRepository{
		store: store,
		ttl:   ttl,
	}
}

func (r *SubscriptionCacheRepository) Get(ctx context.Context, userID string, event domain.EventKey) ([]*domain.Webhook, bool, error) {
	data, err := r.store.Get(ctx, subscriptionKey(userID, event))
	if err != nil {
		if errors.Is(err, infrastructure.ErrCacheMiss) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("%w: %w", domain.ErrCacheUnavailable, err)
	}

	var webhooks []*domain.Webhook
	if err := json.Unmarshal(data, &webhooks); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cached subscriptions: %w", err)
	}

	return webhooks, true, nil
}

func (r *SubscriptionCacheRepository) Set(ctx context.Context, userID string, event domain.EventKey, webhooks []*domain.Webhook) error {
	if webhooks == nil {
		webhooks = []*domain.Webhook{}
	}

	data, err := json.Marshal(webhooks)
	if err != nil {
		return fmt.Errorf("failed to marshal subscriptions: %w", err)
	}

	if err := r.store.Set(ctx, subscriptionKey(userID, event), data, r.ttl); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCacheUnavailable, err)
	}

	return nil
}

func (r *SubscriptionCacheRepository) Invalidate(ctx context.Context, userID string) error {
	events := domain.KnownEvents()

	keys := make([]string, 0, len(events))
	for _, event := range events {
		keys = append(keys, subscriptionKey(userID, event))
	}

	if err := r.store.Del(ctx, keys...); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCacheUnavailable, err)
	}

	return nil
}

func NewDeliveryGuardRepository(store KeyValueStore) *DeliveryGuardRepository {
	return &DeliveryGuardRepository{store: store}
}

func (r *DeliveryGuardRepository) Acquire(ctx context.Context, deliveryID string, ttl time.Duration) (bool, error) {
	acquired, err := r.store.SetNX(ctx, deliveryKey(deliveryID), []byte(time.Now().UTC().Format(time.RFC3339Nano)), ttl)
	if err != nil {
		return false, fmt.Errorf("%w: %w", domain.ErrCacheUnavailable, err)
	}

	return acquired, nil
}

// Release lets a later redelivery or retry attempt the delivery again.
func (r *DeliveryGuardRepository) Release(ctx context.Context, deliveryID string) error {
	if err := r.store.Del(ctx, deliveryKey(deliveryID)); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCacheUnavailable, err)
	}

	return nil
}

func subscriptionKey(userID string, event domain.EventKey) string {
	return fmt.Sprintf("%s:%s:%s", subscriptionKeyPrefix, userID, event)
}

func deliveryKey(deliveryID string) string {
	return deliveryKeyPrefix + ":" + deliveryID
}
