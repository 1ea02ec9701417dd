package adapters

import (
	"context"
	"strings"
	"time"

	"github.com/architeacher/svc-event-bus/internal/infrastructure"
	"github.com/architeacher/svc-event-bus/internal/shared/decorator"
)

type MetricsAdapter struct {
	metrics infrastructure.Metrics
}

func NewMetricsAdapter(metrics infrastructure.Metrics) decorator.MetricsClient {
	return &MetricsAdapter{
		metrics: metrics,
	}
}

// Inc expects keys produced by decorator.MetricKey with the handler duration in milliseconds as value.
func (m *MetricsAdapter) Inc(key string, value int) {
	parts := strings.Split(key, ".")
	if len(parts) != 3 {
		return
	}

	handler := parts[0] + "." + parts[1]
	success := parts[2] == decorator.OutcomeSuccess

	m.metrics.RecordHandlerExecution(context.Background(), handler, time.Duration(value)*time.Millisecond, success)
}
