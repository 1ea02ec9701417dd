package queue

import (
	"context"
	"time"
)

// NoopQueue satisfies Queue without a broker. Publishes are logged and dropped.
type NoopQueue struct {
	logger Logger
}

var _ Queue = (*NoopQueue)(nil)

func NewNoopQueue(logger Logger) *NoopQueue {
	if logger == nil {
		logger = nopLogger{}
	}

	return &NoopQueue{logger: logger}
}

func (n *NoopQueue) Publish(_ context.Context, exchange ExchangeName, key RoutingKey, _ any) error {
	n.logger.Warn().
		Str("exchange", string(exchange)).
		Str("routing_key", key.String()).
		Msg("publish to noop queue")

	return nil
}

func (n *NoopQueue) PublishWebhook(ctx context.Context, key RoutingKey, payload any) error {
	return n.Publish(ctx, ExchangeWebhooks, key, payload)
}

func (n *NoopQueue) DelayedPublishWebhook(_ context.Context, key RoutingKey, _ any, delay time.Duration) error {
	n.logger.Warn().
		Str("routing_key", key.String()).
		Str("delay", delay.String()).
		Msg("delayed publish to noop queue")

	return nil
}

func (n *NoopQueue) Consume(_ context.Context, _ QueueName, handler MessageHandler, _ ...ConsumerOption) error {
	if handler == nil {
		return consumeSetupError("handler is required")
	}

	return nil
}

func (n *NoopQueue) Ack(*Message) error {
	return nil
}

func (n *NoopQueue) Nack(*Message) error {
	return nil
}

// IsConnected always reports true.
func (n *NoopQueue) IsConnected() bool {
	return true
}

func (n *NoopQueue) Close() error {
	return nil
}
