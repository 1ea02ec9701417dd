package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Queue is the publish and consume contract shared by the broker-backed and the no-op implementations.
type Queue interface {
	Publish(ctx context.Context, exchange ExchangeName, key RoutingKey, payload any) error
	PublishWebhook(ctx context.Context, key RoutingKey, payload any) error
	DelayedPublishWebhook(ctx context.Context, key RoutingKey, payload any, delay time.Duration) error

	Consume(ctx context.Context, queue QueueName, handler MessageHandler, opts ...ConsumerOption) error
	Ack(msg *Message) error
	Nack(msg *Message) error

	IsConnected() bool
	Close() error
}

// MessageHandler processes a delivered message. It must settle the message through ctrl.
type MessageHandler func(ctx context.Context, msg *Message, ctrl *MsgController) error

// RabbitMQQueue implements the Queue interface using RabbitMQ
type RabbitMQQueue struct {
	config   Config
	options  connectionOptions
	topology Topology
	logger   Logger

	channel *ChannelWrapper

	mutex  sync.Mutex
	conn   amqpConnection
	state  atomic.Int32
	closed atomic.Bool
	done   chan struct{}
	wg     sync.WaitGroup
}

var _ Queue = (*RabbitMQQueue)(nil)

// NewRabbitMQQueue creates a queue that is not connected yet. The topology is registered as the
// first setup step, so it is provisioned by Connect and after every reconnect.
func NewRabbitMQQueue(config Config, opts ...ConnectionOption) *RabbitMQQueue {
	options := defaultConnectionOptions()
	for _, opt := range opts {
		opt(&options)
	}

	topology := DefaultTopology()
	if options.topology != nil {
		topology = *options.topology
	}

	q := &RabbitMQQueue{
		config:   config,
		options:  options,
		topology: topology,
		logger:   options.logger,
		channel:  newChannelWrapper(options.logger, options.maxInflight),
		done:     make(chan struct{}),
	}

	_ = q.channel.addSetup(topologySetupKey, topology.setup)

	return q
}

// Connect creates a queue and connects it.
func Connect(ctx context.Context, config Config, opts ...ConnectionOption) (*RabbitMQQueue, error) {
	q := NewRabbitMQQueue(config, opts...)
	if err := q.Connect(ctx); err != nil {
		return nil, err
	}

	return q, nil
}

// Publish sends payload as JSON to the exchange registered under the logical name and waits for the
// broker confirmation.
func (q *RabbitMQQueue) Publish(ctx context.Context, exchange ExchangeName, key RoutingKey, payload any) error {
	name, err := q.topology.exchangeName(exchange)
	if err != nil {
		q.logger.Error().Err(err).Str("routing_key", key.String()).Msg("failed to publish message")

		return err
	}

	return q.publish(ctx, name, key, payload)
}

// PublishWebhook publishes to the webhooks exchange.
func (q *RabbitMQQueue) PublishWebhook(ctx context.Context, key RoutingKey, payload any) error {
	return q.Publish(ctx, ExchangeWebhooks, key, payload)
}

func (q *RabbitMQQueue) publish(ctx context.Context, exchange string, key RoutingKey, payload any) error {
	if q.closed.Load() {
		return ErrClosed
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("could not marshal message: %w", err)
	}

	q.logger.Info().
		Str("exchange", exchange).
		Str("routing_key", key.String()).
		Str("payload", string(body)).
		Msg("publishing message")

	ctx, cancel := context.WithTimeout(ctx, q.options.publishingTimeout)
	defer cancel()

	err = q.channel.publish(ctx, exchange, key.String(), amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		err = ErrPublishTimeout
	} else if !errors.Is(err, ErrPublishRejected) && !errors.Is(err, ErrClosed) {
		err = fmt.Errorf("RabbitMQ | publish | %s %s: %w", exchange, key, err)
	}

	q.logger.Error().
		Err(err).
		Str("exchange", exchange).
		Str("routing_key", key.String()).
		Msg("failed to publish message")

	return err
}

// Ack positively acknowledges msg.
func (q *RabbitMQQueue) Ack(msg *Message) error {
	return msg.ack()
}

// Nack negatively acknowledges msg and asks the broker to requeue it.
func (q *RabbitMQQueue) Nack(msg *Message) error {
	return msg.nack(true)
}
