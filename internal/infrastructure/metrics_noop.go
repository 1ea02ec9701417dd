package infrastructure

import (
	"context"
	"net/http"
	"time"
)

type NoOpMetrics struct{}

var _ Metrics = (*NoOpMetrics)(nil)

func (n *NoOpMetrics) RecordHTTPRequest(_ context.Context, _, _ string, _ int, _ time.Duration, _, _ int64) {
}

func (n *NoOpMetrics) RecordMessagePublished(_ context.Context, _ string, _ bool) {
}

func (n *NoOpMetrics) RecordMessageConsumed(_ context.Context, _, _ string, _ time.Duration) {
}

func (n *NoOpMetrics) RecordWebhookDelivery(_ context.Context, _ bool, _ int, _ time.Duration) {
}

func (n *NoOpMetrics) RecordTaskResult(_ context.Context, _ string) {
}

func (n *NoOpMetrics) RecordOutboxEvent(_ context.Context, _ bool, _ string) {
}

func (n *NoOpMetrics) RecordHandlerExecution(_ context.Context, _ string, _ time.Duration, _ bool) {
}

// Handler keeps /metrics mounted when metrics are disabled.
func (n *NoOpMetrics) Handler() http.Handler {
	return http.NotFoundHandler()
}

func (n *NoOpMetrics) Shutdown(_ context.Context) error {
	return nil
}
