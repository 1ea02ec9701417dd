package service

import (
	"context"
	"sync"
	"time"

	"github.com/architeacher/svc-event-bus/internal/domain"
	"github.com/architeacher/svc-event-bus/internal/infrastructure"
	"github.com/architeacher/svc-event-bus/internal/ports"
	"github.com/architeacher/svc-event-bus/pkg/queue"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"
)

type (
	mockTransactor struct {
		mock.Mock
	}

	mockTaskRepository struct {
		mock.Mock
	}

	mockWebhookRepository struct {
		mock.Mock
	}

	mockOutboxRepository struct {
		mock.Mock
	}

	mockEventPublisher struct {
		mock.Mock
	}

	mockSubscriptionCache struct {
		mock.Mock
	}

	mockDeliveryGuard struct {
		mock.Mock
	}

	mockPayloadSigner struct {
		mock.Mock
	}

	mockWebhookSender struct {
		mock.Mock
	}

	// fixedBackoff returns base * (retries+1) so assertions stay deterministic.
	fixedBackoff struct {
		base time.Duration
	}

	countingMetrics struct {
		infrastructure.NoOpMetrics
		mu         sync.Mutex
		deliveries []bool
		published  []bool
		outbox     []bool
		taskPhases []string
	}
)

var (
	_ ports.Transactor        = (*mockTransactor)(nil)
	_ ports.TaskRepository    = (*mockTaskRepository)(nil)
	_ ports.WebhookRepository = (*mockWebhookRepository)(nil)
	_ ports.OutboxRepository  = (*mockOutboxRepository)(nil)
	_ ports.EventPublisher    = (*mockEventPublisher)(nil)
	_ ports.SubscriptionCache = (*mockSubscriptionCache)(nil)
	_ ports.DeliveryGuard     = (*mockDeliveryGuard)(nil)
	_ ports.PayloadSigner     = (*mockPayloadSigner)(nil)
	_ ports.WebhookSender     = (*mockWebhookSender)(nil)
)

// WithinTx runs fn with a nil transaction; repositories are mocked and never touch it.
func (m *mockTransactor) WithinTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	if err := m.Called(ctx).Error(0); err != nil {
		return err
	}

	return fn(nil)
}

func (m *mockTaskRepository) Find(ctx context.Context, taskID uuid.UUID) (*domain.Task, error) {
	args := m.Called(ctx, taskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*domain.Task), args.Error(1)
}

func (m *mockTaskRepository) UpdateStatusInTx(ctx context.Context, tx *sqlx.Tx, task *domain.Task) error {
	return m.Called(ctx, tx, task).Error(0)
}

func (m *mockWebhookRepository) Find(ctx context.Context, webhookID uuid.UUID) (*domain.Webhook, error) {
	args := m.Called(ctx, webhookID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*domain.Webhook), args.Error(1)
}

func (m *mockWebhookRepository) FindSubscribed(ctx context.Context, userID string, event domain.EventKey) ([]*domain.Webhook, error) {
	args := m.Called(ctx, userID, event)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*domain.Webhook), args.Error(1)
}

func (m *mockWebhookRepository) UpdateStatus(ctx context.Context, webhook *domain.Webhook) error {
	return m.Called(ctx, webhook).Error(0)
}

func (m *mockOutboxRepository) SaveInTx(ctx context.Context, tx *sqlx.Tx, event *domain.OutboxEvent) error {
	return m.Called(ctx, tx, event).Error(0)
}

func (m *mockOutboxRepository) FindPending(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*domain.OutboxEvent), args.Error(1)
}

func (m *mockOutboxRepository) FindRetryable(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*domain.OutboxEvent), args.Error(1)
}

func (m *mockOutboxRepository) ClaimForProcessing(ctx context.Context, eventID uuid.UUID) (*domain.OutboxEvent, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*domain.OutboxEvent), args.Error(1)
}

func (m *mockOutboxRepository) MarkPublished(ctx context.Context, eventID uuid.UUID) error {
	return m.Called(ctx, eventID).Error(0)
}

func (m *mockOutboxRepository) MarkFailed(ctx context.Context, eventID uuid.UUID, errorDetails string, nextRetryAt *time.Time) error {
	return m.Called(ctx, eventID, errorDetails, nextRetryAt).Error(0)
}

func (m *mockOutboxRepository) MarkPermanentlyFailed(ctx context.Context, eventID uuid.UUID, errorDetails string) error {
	return m.Called(ctx, eventID, errorDetails).Error(0)
}

func (m *mockEventPublisher) Publish(ctx context.Context, exchange queue.ExchangeName, key queue.RoutingKey, payload any) error {
	return m.Called(ctx, exchange, key, payload).Error(0)
}

func (m *mockEventPublisher) PublishWebhook(ctx context.Context, key queue.RoutingKey, payload any) error {
	return m.Called(ctx, key, payload).Error(0)
}

func (m *mockEventPublisher) DelayedPublishWebhook(ctx context.Context, key queue.RoutingKey, payload any, delay time.Duration) error {
	return m.Called(ctx, key, payload, delay).Error(0)
}

func (m *mockSubscriptionCache) Get(ctx context.Context, userID string, event domain.EventKey) ([]*domain.Webhook, bool, error) {
	args := m.Called(ctx, userID, event)

	webhooks, _ := args.Get(0).([]*domain.Webhook)

	return webhooks, args.Bool(1), args.Error(2)
}

func (m *mockSubscriptionCache) Set(ctx context.Context, userID string, event domain.EventKey, webhooks []*domain.Webhook) error {
	return m.Called(ctx, userID, event, webhooks).Error(0)
}

func (m *mockSubscriptionCache) Invalidate(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *mockDeliveryGuard) Acquire(ctx context.Context, deliveryID string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, deliveryID, ttl)

	return args.Bool(0), args.Error(1)
}

func (m *mockDeliveryGuard) Release(ctx context.Context, deliveryID string) error {
	return m.Called(ctx, deliveryID).Error(0)
}

func (m *mockPayloadSigner) Sign(ctx context.Context, claims ports.SignatureClaims, body []byte) (string, error) {
	args := m.Called(ctx, claims, body)

	return args.String(0), args.Error(1)
}

func (m *mockWebhookSender) Send(ctx context.Context, req ports.WebhookRequest) (*domain.WebhookResponse, error) {
	args := m.Called(ctx, req)

	resp, _ := args.Get(0).(*domain.WebhookResponse)

	return resp, args.Error(1)
}

func (b fixedBackoff) Backoff(retries int) time.Duration {
	return b.base * time.Duration(retries+1)
}

func (m *countingMetrics) RecordWebhookDelivery(_ context.Context, success bool, _ int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deliveries = append(m.deliveries, success)
}

func (m *countingMetrics) RecordMessagePublished(_ context.Context, _ string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.published = append(m.published, success)
}

func (m *countingMetrics) RecordOutboxEvent(_ context.Context, success bool, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.outbox = append(m.outbox, success)
}

func (m *countingMetrics) RecordTaskResult(_ context.Context, phase string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.taskPhases = append(m.taskPhases, phase)
}
