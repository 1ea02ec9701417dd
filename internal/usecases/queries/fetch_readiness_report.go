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
	FetchReadinessReportQuery struct{}

	FetchReadinessReportQueryHandler decorator.QueryHandler[FetchReadinessReportQuery, *domain.ReadinessResult]

	fetchReadinessReportQueryHandler struct {
		healthService service.HealthService
	}
)

func NewFetchReadinessReportQueryHandler(
	healthService service.HealthService,
	logger infrastructure.Logger,
	tracerProvider trace.TracerProvider,
	metricsClient decorator.MetricsClient,
) FetchReadinessReportQueryHandler {
	return decorator.ApplyQueryDecorators[FetchReadinessReportQuery, *domain.ReadinessResult](
		fetchReadinessReportQueryHandler{
			healthService: healthService,
		},
		logger,
		tracerProvider,
		metricsClient,
	)
}

func (h fetchReadinessReportQueryHandler) Execute(ctx context.Context, _ FetchReadinessReportQuery) (*domain.ReadinessResult, error) {
	return h.healthService.FetchReadinessReport(ctx)
}
