package queries

import (
	"context"
	"fmt"

	"github.com/architeacher/svc-event-bus/internal/domain"
	"github.com/architeacher/svc-event-bus/internal/infrastructure"
	"github.com/architeacher/svc-event-bus/internal/service"
	"github.com/architeacher/svc-event-bus/internal/shared/decorator"
	"go.opentelemetry.io/otel/trace"
)

// OutboxBatch names the slice of the outbox a relay pass picks up.
type OutboxBatch string

const (
	// OutboxBatchPending holds events never handed to the broker.
	OutboxBatchPending OutboxBatch = "pending"
	// OutboxBatchRetryable holds failed events whose backoff has elapsed.
	OutboxBatchRetryable OutboxBatch = "retryable"
)

type (
	FetchOutboxBatchQuery struct {
		Batch OutboxBatch
		Limit int
	}

	FetchOutboxBatchQueryHandler decorator.QueryHandler[FetchOutboxBatchQuery, []*domain.OutboxEvent]

	fetchOutboxBatchQueryHandler struct {
		publisherService service.PublisherService
	}
)

func NewFetchOutboxBatchQueryHandler(
	publisherService service.PublisherService,
	logger infrastructure.Logger,
	tracerProvider trace.TracerProvider,
	metricsClient decorator.MetricsClient,
) FetchOutboxBatchQueryHandler {
	return decorator.ApplyQueryDecorators[FetchOutboxBatchQuery, []*domain.OutboxEvent](
		fetchOutboxBatchQueryHandler{publisherService: publisherService},
		logger,
		tracerProvider,
		metricsClient,
	)
}

func (h fetchOutboxBatchQueryHandler) Execute(
	ctx context.Context,
	query FetchOutboxBatchQuery,
) ([]*domain.OutboxEvent, error) {
	switch query.Batch {
	case OutboxBatchPending:
		return h.publisherService.FetchPendingEvents(ctx, query.Limit)
	case OutboxBatchRetryable:
		return h.publisherService.FetchRetryableEvents(ctx, query.Limit)
	default:
		return nil, fmt.Errorf("unknown outbox batch %q", query.Batch)
	}
}
