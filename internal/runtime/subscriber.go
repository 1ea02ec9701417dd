package runtime

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/architeacher/svc-event-bus/internal/ports"
	"github.com/architeacher/svc-event-bus/pkg/queue"
)

// SubscriberCtx runs the task result, webhook event and webhook delivery consumers.
type SubscriberCtx struct {
	deps *Dependencies

	shutdownChannel chan os.Signal

	backgroundActorCtx      context.Context
	backgroundActorStopFunc context.CancelFunc
}

func NewSubscriber(opts ...SubscriberOption) *SubscriberCtx {
	sCtx := &SubscriberCtx{
		shutdownChannel: make(chan os.Signal, 1),
	}

	for _, opt := range opts {
		opt(sCtx)
	}

	return sCtx
}

func (c *SubscriberCtx) Run() {
	c.build()
	c.start()
	c.deps.monitorConfigChanges(c.backgroundActorCtx)
	c.shutdownHook()
	c.shutdown()
}

func (c *SubscriberCtx) build() {
	c.backgroundActorCtx, c.backgroundActorStopFunc = context.WithCancel(context.Background())

	deps, err := initializeDependencies(c.backgroundActorCtx, WithSubscriber(c.backgroundActorCtx))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	c.deps = deps
}

func (c *SubscriberCtx) start() {
	c.deps.startOpsServer()

	if err := startConsumers(c.backgroundActorCtx, c.deps.Infra.QueueClient, c.deps.Workers.Consumers, c.onConsumerError); err != nil {
		c.deps.logger.Error().Err(err).Msg("failed to start consumers")
		c.backgroundActorStopFunc()

		return
	}

	c.deps.logger.Info().Int("consumers", len(c.deps.Workers.Consumers)).Msg("subscriber service started")
}

func (c *SubscriberCtx) onConsumerError(err error) {
	c.deps.logger.Error().Err(err).Msg("consumer error")
}

func (c *SubscriberCtx) shutdownHook() {
	signal.Notify(c.shutdownChannel, syscall.SIGINT, syscall.SIGTERM)
}

func (c *SubscriberCtx) shutdown() {
	select {
	case <-c.backgroundActorCtx.Done():
	case <-c.shutdownChannel:
		defer close(c.shutdownChannel)
	}

	c.deps.logger.Info().Msg("received shutdown signal")

	c.backgroundActorStopFunc()

	c.deps.cleanup()

	c.deps.logger.Info().Msg("subscriber service stopped")
}

// startConsumers registers every handler on its queue; registration is non-blocking and the first
// failure aborts the whole start.
func startConsumers(
	ctx context.Context,
	consumer queue.Queue,
	handlers []ports.MessageHandler,
	onError func(error),
) error {
	var g errgroup.Group

	for _, handler := range handlers {
		g.Go(func() error {
			err := consumer.Consume(
				ctx,
				handler.QueueName(),
				func(ctx context.Context, msg *queue.Message, ctrl *queue.MsgController) error {
					return handler.ProcessMessage(ctx, msg, ctrl)
				},
				queue.WithErrorHandler(onError),
				queue.WithConsumerTag(fmt.Sprintf("eventbus-%s", handler.QueueName())),
			)
			if err != nil {
				return fmt.Errorf("failed to consume %s: %w", handler.QueueName(), err)
			}

			return nil
		})
	}

	return g.Wait()
}
