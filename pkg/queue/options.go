package queue

import (
	"time"
)

const (
	publishingTimeout = 10 * time.Second
	reconnectDelay    = 5 * time.Second
	connectionTimeout = 30 * time.Second
	heartbeat         = 10 * time.Second
	defaultPrefetch   = 2
	defaultInflight   = 1000
)

// BackoffStrategy computes the delay before the next reconnection attempt.
type BackoffStrategy interface {
	Backoff(retries int) time.Duration
}

type constantBackoff time.Duration

func (b constantBackoff) Backoff(_ int) time.Duration {
	return time.Duration(b)
}

type connectionOptions struct {
	logger            Logger
	timeout           time.Duration
	heartbeat         time.Duration
	backoff           BackoffStrategy
	publishingTimeout time.Duration
	maxInflight       int
	connectionName    string
	topology          *Topology
	dial              dialer
}

type ConnectionOption func(options *connectionOptions)

func defaultConnectionOptions() connectionOptions {
	return connectionOptions{
		logger:            nopLogger{},
		timeout:           connectionTimeout,
		heartbeat:         heartbeat,
		backoff:           constantBackoff(reconnectDelay),
		publishingTimeout: publishingTimeout,
		maxInflight:       defaultInflight,
		dial:              dialAMQP,
	}
}

// WithLogger returns a ConnectionOption which sets the logger when a connection is created.
func WithLogger(l Logger) ConnectionOption {
	return func(o *connectionOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithConnectionTimeout returns a ConnectionOption which sets the timeout used when dialing the broker.
func WithConnectionTimeout(timeout time.Duration) ConnectionOption {
	return func(o *connectionOptions) {
		o.timeout = timeout
	}
}

// WithHeartbeat returns a ConnectionOption which sets the AMQP heartbeat interval.
func WithHeartbeat(interval time.Duration) ConnectionOption {
	return func(o *connectionOptions) {
		o.heartbeat = interval
	}
}

// WithReconnectDelay returns a ConnectionOption which sets a constant delay between reconnection attempts.
func WithReconnectDelay(delay time.Duration) ConnectionOption {
	return func(o *connectionOptions) {
		o.backoff = constantBackoff(delay)
	}
}

// WithReconnectBackoff returns a ConnectionOption which computes reconnection delays with the given strategy.
func WithReconnectBackoff(strategy BackoffStrategy) ConnectionOption {
	return func(o *connectionOptions) {
		if strategy != nil {
			o.backoff = strategy
		}
	}
}

// WithPublishingTimeout returns a ConnectionOption which sets how long a publish waits for the broker confirmation.
func WithPublishingTimeout(d time.Duration) ConnectionOption {
	return func(o *connectionOptions) {
		o.publishingTimeout = d
	}
}

// WithMaxInflight returns a ConnectionOption which bounds the number of publishes awaiting a confirmation.
// Publishes beyond the bound fail with ErrPublishRejected.
func WithMaxInflight(n int) ConnectionOption {
	return func(o *connectionOptions) {
		if n > 0 {
			o.maxInflight = n
		}
	}
}

// WithConnectionName returns a ConnectionOption which names the connection in the broker management UI.
func WithConnectionName(name string) ConnectionOption {
	return func(o *connectionOptions) {
		o.connectionName = name
	}
}

// WithTopology returns a ConnectionOption which replaces the default topology.
func WithTopology(t Topology) ConnectionOption {
	return func(o *connectionOptions) {
		o.topology = &t
	}
}

func withDialer(d dialer) ConnectionOption {
	return func(o *connectionOptions) {
		o.dial = d
	}
}

type consumerOptions struct {
	errHandler func(error)
	tag        string
}

type ConsumerOption func(*consumerOptions)

// WithErrorHandler returns a ConsumerOption which sets a handler for errors returned by message handlers.
func WithErrorHandler(handler func(error)) ConsumerOption {
	return func(o *consumerOptions) {
		o.errHandler = handler
	}
}

// WithConsumerTag returns a ConsumerOption which sets the consumer tag used for the subscription.
func WithConsumerTag(tag string) ConsumerOption {
	return func(o *consumerOptions) {
		o.tag = tag
	}
}

func defaultConsumerOptions() consumerOptions {
	return consumerOptions{
		errHandler: func(_ error) {},
	}
}
