package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	delayedNameFormat  = "delayed_webhook_%dms"
	delayedBindingKey  = "#"
	delayedExpiryGrace = 15 * time.Second
)

// delayedName rounds delay to the millisecond and derives the name shared by the delay queue and
// its exchange.
func delayedName(delay time.Duration) (string, int64) {
	ms := delay.Round(time.Millisecond).Milliseconds()
	if ms < 0 {
		ms = 0
	}

	return fmt.Sprintf(delayedNameFormat, ms), ms
}

func delayedSetup(name string, ms int64, deadLetterExchange string) setupFunc {
	return func(ch amqpChannel) error {
		if err := ch.ExchangeDeclare(name, amqp.ExchangeTopic, true, true, false, false, nil); err != nil {
			return fmt.Errorf("declare delay exchange %s: %w", name, err)
		}

		args := amqp.Table{
			amqp.QueueMessageTTLArg: ms,
			amqp.QueueTTLArg:        ms + delayedExpiryGrace.Milliseconds(),
			deadLetterExchangeArg:   deadLetterExchange,
		}

		if _, err := ch.QueueDeclare(name, true, false, false, false, args); err != nil {
			return fmt.Errorf("declare delay queue %s: %w", name, err)
		}

		if err := ch.QueueBind(name, delayedBindingKey, name, false, nil); err != nil {
			return fmt.Errorf("bind delay queue %s: %w", name, err)
		}

		return nil
	}
}

// DelayedPublishWebhook delivers payload to the webhooks exchange under key no earlier than delay.
// The message waits in a per-delay queue whose expired messages are dead-lettered to the webhooks
// exchange with their original routing key.
func (q *RabbitMQQueue) DelayedPublishWebhook(
	ctx context.Context, key RoutingKey, payload any, delay time.Duration,
) error {
	if q.closed.Load() {
		return ErrClosed
	}

	target, err := q.topology.exchangeName(ExchangeWebhooks)
	if err != nil {
		return err
	}

	name, ms := delayedName(delay)
	setupKey := "delayed:" + name

	if err := q.channel.addSetup(setupKey, delayedSetup(name, ms, target)); err != nil {
		q.logger.Error().
			Err(err).
			Str("exchange", name).
			Str("routing_key", key.String()).
			Msg("failed to set up delayed queue")

		return fmt.Errorf("RabbitMQ | delayed publish | %s: %w", name, err)
	}

	defer q.channel.removeSetup(setupKey)

	q.logger.Info().
		Str("exchange", name).
		Str("routing_key", key.String()).
		Str("delay_seconds", strconv.FormatFloat(float64(ms)/1000, 'f', -1, 64)).
		Msg("emitting delayed message")

	return q.publish(ctx, name, key, payload)
}
