//go:generate go tool github.com/maxbrunsfeld/counterfeiter/v6 -generate

package infrastructure

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/architeacher/svc-event-bus/internal/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	metricsNamespace = "event_bus"
)

type (
	//counterfeiter:generate -o ../mocks/metrics.go . Metrics

	Metrics interface {
		RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration, requestSize, responseSize int64)
		RecordMessagePublished(ctx context.Context, exchange string, success bool)
		RecordMessageConsumed(ctx context.Context, queue, outcome string, duration time.Duration)
		RecordWebhookDelivery(ctx context.Context, success bool, statusCode int, duration time.Duration)
		RecordTaskResult(ctx context.Context, phase string)
		RecordOutboxEvent(ctx context.Context, success bool, priority string)
		RecordHandlerExecution(ctx context.Context, handler string, duration time.Duration, success bool)
		Handler() http.Handler
		Shutdown(ctx context.Context) error
	}

	OTELMetrics struct {
		meterProvider *sdkmetric.MeterProvider
		meter         metric.Meter
		logger        Logger

		httpRequestTotal        metric.Int64Counter
		httpRequestDuration     metric.Float64Histogram
		httpRequestSize         metric.Int64Histogram
		httpResponseSize        metric.Int64Histogram
		messagesPublishedTotal  metric.Int64Counter
		publishErrorsTotal      metric.Int64Counter
		messagesConsumedTotal   metric.Int64Counter
		messageHandlingDuration metric.Float64Histogram
		webhookDeliveriesTotal  metric.Int64Counter
		webhookDeliveryDuration metric.Float64Histogram
		taskResultsTotal        metric.Int64Counter
		outboxProcessedTotal    metric.Int64Counter
		outboxErrorTotal        metric.Int64Counter
		handlerDuration         metric.Float64Histogram
	}
)

func NewMetrics(ctx context.Context, cfg config.ServiceConfig, logger Logger) (Metrics, error) {
	if !cfg.Telemetry.Metrics.Enabled {
		logger.Info().Msg("metrics disabled, using NoOp implementation")

		return &NoOpMetrics{}, nil
	}

	return NewOTELMetrics(ctx, cfg, logger)
}

func NewOTELMetrics(ctx context.Context, cfg config.ServiceConfig, logger Logger) (*OTELMetrics, error) {
	endpoint := fmt.Sprintf("%s:%s", cfg.Telemetry.OtelGRPCHost, cfg.Telemetry.OtelGRPCPort)

	conn, err := grpc.NewClient(
		endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection to OTEL collector: %w", err)
	}

	exporter, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.AppConfig.ServiceName),
			semconv.ServiceVersionKey.String(cfg.AppConfig.ServiceVersion),
			semconv.ServiceInstanceIDKey.String(cfg.AppConfig.CommitSHA),
			semconv.DeploymentEnvironmentKey.String(cfg.AppConfig.Env),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(meterProvider)

	provider := &OTELMetrics{
		meterProvider: meterProvider,
		meter: meterProvider.Meter(
			metricsNamespace,
			metric.WithInstrumentationVersion(cfg.AppConfig.ServiceVersion),
		),
		logger: Logger{Logger: logger.With().Str("component", "metrics").Logger()},
	}

	if err := provider.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	provider.logger.Info().
		Str("otel_endpoint", endpoint).
		Msg("OTEL metrics provider initialized successfully")

	return provider, nil
}

type (
	counterSpec struct {
		target      *metric.Int64Counter
		name        string
		description string
		unit        string
	}

	histogramSpec struct {
		target      *metric.Float64Histogram
		name        string
		description string
	}
)

func (om *OTELMetrics) initializeMetrics() error {
	counters := []counterSpec{
		{&om.httpRequestTotal, "http_requests_total", "Total number of HTTP requests", "{request}"},
		{&om.messagesPublishedTotal, "messages_published_total", "Total number of messages confirmed by the broker", "{message}"},
		{&om.publishErrorsTotal, "publish_errors_total", "Total number of failed publishes", "{error}"},
		{&om.messagesConsumedTotal, "messages_consumed_total", "Total number of consumed messages by outcome", "{message}"},
		{&om.webhookDeliveriesTotal, "webhook_deliveries_total", "Total number of webhook delivery attempts", "{delivery}"},
		{&om.taskResultsTotal, "task_results_total", "Total number of processed task results", "{result}"},
		{&om.outboxProcessedTotal, "outbox_processed_total", "Total number of outbox events processed", "{event}"},
		{&om.outboxErrorTotal, "outbox_errors_total", "Total number of outbox processing errors", "{error}"},
	}

	for _, instrument := range counters {
		counter, err := om.meter.Int64Counter(
			instrument.name,
			metric.WithDescription(instrument.description),
			metric.WithUnit(instrument.unit),
		)
		if err != nil {
			return fmt.Errorf("failed to create %s counter: %w", instrument.name, err)
		}

		*instrument.target = counter
	}

	histograms := []histogramSpec{
		{&om.httpRequestDuration, "http_request_duration_seconds", "HTTP request duration in seconds"},
		{&om.messageHandlingDuration, "message_handling_duration_seconds", "Time spent handling a consumed message in seconds"},
		{&om.webhookDeliveryDuration, "webhook_delivery_duration_seconds", "Webhook endpoint response time in seconds"},
		{&om.handlerDuration, "handler_duration_seconds", "Command and query handler duration in seconds"},
	}

	for _, instrument := range histograms {
		histogram, err := om.meter.Float64Histogram(
			instrument.name,
			metric.WithDescription(instrument.description),
			metric.WithUnit("s"),
		)
		if err != nil {
			return fmt.Errorf("failed to create %s histogram: %w", instrument.name, err)
		}

		*instrument.target = histogram
	}

	var err error

	om.httpRequestSize, err = om.meter.Int64Histogram(
		"http_request_size_bytes",
		metric.WithDescription("HTTP request size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_request_size_bytes histogram: %w", err)
	}

	om.httpResponseSize, err = om.meter.Int64Histogram(
		"http_response_size_bytes",
		metric.WithDescription("HTTP response size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_response_size_bytes histogram: %w", err)
	}

	return nil
}

func (om *OTELMetrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration, requestSize, responseSize int64) {
	attrs := metric.WithAttributes(
		HTTPMethodAttr(method),
		HTTPPathAttr(path),
		HTTPStatusCodeAttr(statusCode),
	)

	om.httpRequestTotal.Add(ctx, 1, attrs)
	om.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
	om.httpResponseSize.Record(ctx, responseSize, attrs)
	om.httpRequestSize.Record(ctx, requestSize,
		metric.WithAttributes(
			HTTPMethodAttr(method),
			HTTPPathAttr(path),
		),
	)
}

func (om *OTELMetrics) RecordMessagePublished(ctx context.Context, exchange string, success bool) {
	if success {
		om.messagesPublishedTotal.Add(ctx, 1, metric.WithAttributes(ExchangeAttr(exchange)))

		return
	}

	om.publishErrorsTotal.Add(ctx, 1, metric.WithAttributes(ExchangeAttr(exchange)))
}

func (om *OTELMetrics) RecordMessageConsumed(ctx context.Context, queue, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(QueueAttr(queue), OutcomeAttr(outcome))

	om.messagesConsumedTotal.Add(ctx, 1, attrs)
	om.messageHandlingDuration.Record(ctx, duration.Seconds(), attrs)
}

func (om *OTELMetrics) RecordWebhookDelivery(ctx context.Context, success bool, statusCode int, duration time.Duration) {
	attrs := metric.WithAttributes(StatusAttr(successStatus(success)), HTTPStatusCodeAttr(statusCode))

	om.webhookDeliveriesTotal.Add(ctx, 1, attrs)
	om.webhookDeliveryDuration.Record(ctx, duration.Seconds(), attrs)
}

func (om *OTELMetrics) RecordTaskResult(ctx context.Context, phase string) {
	om.taskResultsTotal.Add(ctx, 1, metric.WithAttributes(PhaseAttr(phase)))
}

func (om *OTELMetrics) RecordOutboxEvent(ctx context.Context, success bool, priority string) {
	if success {
		om.outboxProcessedTotal.Add(ctx, 1, metric.WithAttributes(PriorityAttr(priority)))

		return
	}

	om.outboxErrorTotal.Add(ctx, 1, metric.WithAttributes(PriorityAttr(priority)))
}

func (om *OTELMetrics) RecordHandlerExecution(ctx context.Context, handler string, duration time.Duration, success bool) {
	om.handlerDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			HandlerAttr(handler),
			StatusAttr(successStatus(success)),
		),
	)
}

func (om *OTELMetrics) Handler() http.Handler {
	return promhttp.Handler()
}

func (om *OTELMetrics) Shutdown(ctx context.Context) error {
	if err := om.meterProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown meter provider: %w", err)
	}

	return nil
}

func successStatus(success bool) string {
	if success {
		return "success"
	}

	return "error"
}
