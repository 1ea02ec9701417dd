package queue

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Consume subscribes handler to the queue registered under the logical name and returns once the
// subscription is registered. Deliveries are handed to a fixed pool of workers sized by the
// prefetch limit. The subscription is restored after every reconnect and stops when ctx ends or
// the queue is closed. Handlers must settle every message; nothing is acknowledged automatically.
func (q *RabbitMQQueue) Consume(
	ctx context.Context, queue QueueName, handler MessageHandler, opts ...ConsumerOption,
) error {
	if handler == nil {
		return consumeSetupError("handler is required")
	}

	name, ok := q.topology.queueName(queue)
	if !ok {
		return consumeSetupError(fmt.Sprintf("unknown queue %q", queue))
	}

	if q.closed.Load() {
		return ErrClosed
	}

	options := defaultConsumerOptions()
	for _, opt := range opts {
		opt(&options)
	}

	if options.tag == "" {
		options.tag = fmt.Sprintf("%s.%s", name, uuid.NewString())
	}

	prefetch := q.topology.prefetch()
	inbox := make(chan amqp.Delivery, prefetch)
	setupKey := fmt.Sprintf("consume:%s:%s", name, options.tag)

	subscribe := func(ch amqpChannel) error {
		deliveries, err := ch.Consume(name, options.tag, false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("consume %s: %w", name, err)
		}

		q.wg.Go(func() {
			q.pump(ctx, deliveries, inbox)
		})

		return nil
	}

	if err := q.channel.addSetup(setupKey, subscribe); err != nil {
		q.logger.Error().Err(err).Str("queue", name).Msg("failed to start consumer")

		return fmt.Errorf("RabbitMQ | consume | %s: %w", name, err)
	}

	ctrl := &MsgController{queue: name, logger: q.logger}

	for range prefetch {
		q.wg.Go(func() {
			q.work(ctx, inbox, handler, ctrl, options)
		})
	}

	q.wg.Go(func() {
		select {
		case <-q.done:
		case <-ctx.Done():
			if err := q.channel.cancel(options.tag); err != nil {
				q.logger.Warn().Err(err).Str("queue", name).Msg("failed to cancel consumer")
			}

			q.channel.removeSetup(setupKey)
		}
	})

	q.logger.Info().
		Str("queue", name).
		Str("consumer", options.tag).
		Int("prefetch", prefetch).
		Msg("consumer started")

	return nil
}

func (q *RabbitMQQueue) pump(ctx context.Context, deliveries <-chan amqp.Delivery, inbox chan<- amqp.Delivery) {
	for d := range deliveries {
		select {
		case inbox <- d:
		case <-ctx.Done():
			return
		case <-q.done:
			return
		}
	}
}

func (q *RabbitMQQueue) work(
	ctx context.Context,
	inbox <-chan amqp.Delivery,
	handler MessageHandler,
	ctrl *MsgController,
	options consumerOptions,
) {
	for {
		select {
		case <-q.done:
			return
		case <-ctx.Done():
			return
		case d := <-inbox:
			msg := newMessage(d)

			if err := handler(ctx, msg, ctrl); err != nil {
				q.logger.Error().
					Err(err).
					Str("queue", ctrl.queue).
					Str("routing_key", msg.RoutingKey.String()).
					Str("message_id", msg.MessageID).
					Msg("message handler failed")

				options.errHandler(err)
			}
		}
	}
}
