package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/architeacher/svc-event-bus/internal/config"
	"github.com/architeacher/svc-event-bus/internal/domain"
	"github.com/architeacher/svc-event-bus/internal/infrastructure"
	"github.com/architeacher/svc-event-bus/internal/ports"
	"github.com/architeacher/svc-event-bus/internal/usecases"
	"github.com/architeacher/svc-event-bus/internal/usecases/commands"
	"github.com/architeacher/svc-event-bus/internal/usecases/queries"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultBatchSize    = 10
)

var _ ports.BackgroundProcessor = (*Processor)(nil)

// Processor relays pending and retryable outbox events to the broker on every tick.
type Processor struct {
	app          *usecases.OutboxRelayApplication
	pollInterval time.Duration
	batchSize    int
	logger       infrastructure.Logger
}

func NewProcessor(
	app *usecases.OutboxRelayApplication,
	cfg config.OutboxConfig,
	logger infrastructure.Logger,
) *Processor {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	return &Processor{
		app:          app,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		logger:       logger,
	}
}

func (p *Processor) Start(ctx context.Context) error {
	p.logger.Info().
		Dur("poll_interval", p.pollInterval).
		Int("batch_size", p.batchSize).
		Msg("starting outbox processor")

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("outbox processor shutting down")

			return ctx.Err()

		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick runs a single relay pass over pending and retryable events.
func (p *Processor) Tick(ctx context.Context) {
	var wg sync.WaitGroup

	for _, batch := range []queries.OutboxBatch{queries.OutboxBatchPending, queries.OutboxBatchRetryable} {
		wg.Go(func() {
			events, err := p.app.Queries.FetchOutboxBatchHandler.Execute(ctx, queries.FetchOutboxBatchQuery{
				Batch: batch,
				Limit: p.batchSize,
			})
			if err != nil {
				p.logger.Error().Err(err).Str("batch", string(batch)).Msg("failed to fetch outbox events")

				return
			}

			p.publish(ctx, batch, events)
		})
	}

	wg.Wait()
}

func (p *Processor) publish(ctx context.Context, batch queries.OutboxBatch, events []*domain.OutboxEvent) {
	if len(events) == 0 {
		return
	}

	p.logger.Debug().Int("count", len(events)).Str("batch", string(batch)).Msg("processing outbox events")

	var wg sync.WaitGroup

	for _, event := range events {
		wg.Go(func() {
			result, err := p.app.Commands.PublishOutboxEventHandler.Handle(ctx, commands.PublishOutboxEventCommand{
				Event: event,
			})
			if err != nil {
				p.logger.Error().
					Err(err).
					Str("event_id", event.ID.String()).
					Str("batch", string(batch)).
					Msg("failed to process outbox event")

				return
			}

			if !result.Published {
				p.logger.Debug().
					Str("event_id", event.ID.String()).
					Str("reason", result.Error).
					Msg("outbox event not published")
			}
		})
	}

	wg.Wait()
}
