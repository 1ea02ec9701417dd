package usecases

import (
	"github.com/architeacher/svc-event-bus/internal/infrastructure"
	"github.com/architeacher/svc-event-bus/internal/service"
	"github.com/architeacher/svc-event-bus/internal/shared/decorator"
	"github.com/architeacher/svc-event-bus/internal/usecases/queries"
	otelTrace "go.opentelemetry.io/otel/trace"
)

type (
	// OpsApplication backs the health endpoints of the ops server.
	OpsApplication struct {
		Queries OpsQueries
	}

	OpsQueries struct {
		FetchReadinessReportQueryHandler queries.FetchReadinessReportQueryHandler
		FetchLivenessReportQueryHandler  queries.FetchLivenessReportQueryHandler
	}
)

func NewOpsApplication(
	healthService service.HealthService,
	logger infrastructure.Logger,
	tracerProvider otelTrace.TracerProvider,
	metricsClient decorator.MetricsClient,
) *OpsApplication {
	return &OpsApplication{
		Queries: OpsQueries{
			FetchReadinessReportQueryHandler: queries.NewFetchReadinessReportQueryHandler(
				healthService, logger, tracerProvider, metricsClient,
			),
			FetchLivenessReportQueryHandler: queries.NewFetchLivenessReportQueryHandler(
				healthService, logger, tracerProvider, metricsClient,
			),
		},
	}
}
