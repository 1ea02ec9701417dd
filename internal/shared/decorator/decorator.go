// Package decorator wraps command and query handlers with logging, tracing and metrics.
package decorator

import (
	"context"
	"fmt"
	"strings"

	"github.com/architeacher/svc-event-bus/internal/infrastructure"
	"go.opentelemetry.io/otel/trace"
)

type (
	CommandHandler[C any, R any] interface {
		Handle(ctx context.Context, cmd C) (R, error)
	}

	QueryHandler[Q any, R any] interface {
		Execute(ctx context.Context, query Q) (R, error)
	}

	MetricsClient interface {
		Inc(key string, value int)
	}
)

// ApplyCommandDecorators wraps handler so that tracing is outermost and metrics innermost.
func ApplyCommandDecorators[C any, R any](
	handler CommandHandler[C, R],
	logger infrastructure.Logger,
	tracerProvider trace.TracerProvider,
	metricsClient MetricsClient,
) CommandHandler[C, R] {
	return commandTracingDecorator[C, R]{
		base: commandLoggingDecorator[C, R]{
			base: commandMetricsDecorator[C, R]{
				base:   handler,
				client: metricsClient,
			},
			logger: logger,
		},
		tracer: tracerProvider.Tracer(tracerName),
	}
}

func ApplyQueryDecorators[Q any, R any](
	handler QueryHandler[Q, R],
	logger infrastructure.Logger,
	tracerProvider trace.TracerProvider,
	metricsClient MetricsClient,
) QueryHandler[Q, R] {
	return queryTracingDecorator[Q, R]{
		base: queryLoggingDecorator[Q, R]{
			base: queryMetricsDecorator[Q, R]{
				base:   handler,
				client: metricsClient,
			},
			logger: logger,
		},
		tracer: tracerProvider.Tracer(tracerName),
	}
}

// generateActionName turns commands.PublishOutboxEventCommand into PublishOutboxEventCommand.
func generateActionName(handler any) string {
	name := fmt.Sprintf("%T", handler)

	if idx := strings.LastIndex(name, "."); idx >= 0 {
		return name[idx+1:]
	}

	return name
}
