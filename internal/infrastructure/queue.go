package infrastructure

import (
	"context"
	"fmt"

	"github.com/architeacher/svc-event-bus/internal/config"
	"github.com/architeacher/svc-event-bus/pkg/queue"
)

// Queue is the broker contract shared by the RabbitMQ and the no-op implementations.
type Queue = queue.Queue

// NewQueue picks the queue implementation once at start. A disabled queue yields the no-op variant,
// otherwise it dials RabbitMQ and provisions the topology before returning.
func NewQueue(ctx context.Context, cfg config.QueueConfig, logger Logger, reconnect queue.BackoffStrategy) (Queue, error) {
	adapter := queue.NewLoggerAdapter(logger.Logger)

	if !cfg.Enabled {
		logger.Warn().Msg("RabbitMQ is disabled, messages will be dropped")

		return queue.NewNoopQueue(adapter), nil
	}

	q, err := queue.Connect(ctx, QueueConfig(cfg), QueueOptions(cfg, adapter, reconnect)...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	return q, nil
}

// QueueConfig maps the service configuration onto the connection settings.
func QueueConfig(cfg config.QueueConfig) queue.Config {
	return queue.Config{
		URL:      cfg.URL,
		Scheme:   cfg.Scheme,
		Username: cfg.Username,
		Password: cfg.Password,
		Host:     cfg.Host,
		Port:     cfg.Port,
		Vhost:    cfg.VirtualHost,
	}
}

func QueueOptions(cfg config.QueueConfig, logger queue.Logger, reconnect queue.BackoffStrategy) []queue.ConnectionOption {
	opts := []queue.ConnectionOption{
		queue.WithLogger(logger),
		queue.WithConnectionTimeout(cfg.ConnectTimeout),
		queue.WithHeartbeat(cfg.Heartbeat),
		queue.WithPublishingTimeout(cfg.PublishingTimeout),
		queue.WithMaxInflight(cfg.MaxInflight),
		queue.WithConnectionName(cfg.ConnectionName),
	}

	if reconnect != nil {
		opts = append(opts, queue.WithReconnectBackoff(reconnect))
	} else {
		opts = append(opts, queue.WithReconnectDelay(cfg.ReconnectDelay))
	}

	return opts
}
