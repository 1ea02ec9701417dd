package queries

import (
	"context"

	"github.com/architeacher/svc-event-bus/internal/domain"
	"github.com/architeacher/svc-event-bus/internal/infrastructure"
	"github.com/architeacher/svc-event-bus/internal/service"
	"github.com/architeacher/svc-event-bus/internal/shared/decorator"
	"go.opentelemetry.io/otel/trace"
)

type (
	FetchLivenessReportQuery struct{}

	FetchLivenessReportQueryHandler decorator.QueryHandler[FetchLivenessReportQuery, *domain.LivenessResult]

	fetchLivenessReportQueryHandler struct {
		healthService service.HealthService
	}
)

func NewFetchLivenessReportQueryHandler(
	healthService service.HealthService,
	logger infrastructure.Logger,
	tracerProvider trace.TracerProvider,
	metricsClient decorator.MetricsClient,
) FetchLivenessReportQueryHandler {
	return decorator.ApplyQueryDecorators[FetchLivenessReportQuery, *domain.LivenessResult](
		fetchLivenessReportQueryHandler{
			healthService: healthService,
		},
		logger,
		tracerProvider,
		metricsClient,
	)
}

func (h fetchLivenessReportQueryHandler) Execute(ctx context.Context, _ FetchLivenessReportQuery) (*domain.LivenessResult, error) {
	return h.healthService.FetchLivenessReport(ctx)
}
