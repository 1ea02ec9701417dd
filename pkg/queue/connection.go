package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ConnectionState describes where the connection manager is in its lifecycle.
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("ConnectionState(%d)", int32(s))
	}
}

type amqpConnection interface {
	Channel() (amqpChannel, error)
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	IsClosed() bool
	Close() error
}

type dialer func(url string, cfg amqp.Config) (amqpConnection, error)

type connectionAdapter struct {
	*amqp.Connection
}

func (c connectionAdapter) Channel() (amqpChannel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}

	return ch, nil
}

func dialAMQP(url string, cfg amqp.Config) (amqpConnection, error) {
	conn, err := amqp.DialConfig(url, cfg)
	if err != nil {
		return nil, err
	}

	return connectionAdapter{Connection: conn}, nil
}

func (q *RabbitMQQueue) amqpConfig() amqp.Config {
	props := amqp.NewConnectionProperties()
	if q.options.connectionName != "" {
		props["connection_name"] = q.options.connectionName
	}

	return amqp.Config{
		Heartbeat:  q.options.heartbeat,
		Locale:     "en_US",
		Properties: props,
		Dial:       amqp.DefaultDial(q.options.timeout),
	}
}

// Connect dials the broker, opens the shared channel and provisions the topology. It returns once
// the first connection is usable; later disconnects are recovered in the background.
func (q *RabbitMQQueue) Connect(ctx context.Context) error {
	if q.closed.Load() {
		return ErrClosed
	}

	if !q.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return nil
	}

	conn, ch, err := q.open(ctx)
	if err != nil {
		q.setState(StateDisconnected)

		return err
	}

	q.mutex.Lock()
	q.conn = conn
	q.mutex.Unlock()

	q.setState(StateConnected)
	q.logger.Info().Str("connection_name", q.options.connectionName).Msg("connected to RabbitMQ")

	q.topology.decommission(conn, q.logger)

	q.wg.Go(func() {
		q.watch(conn, ch)
	})

	return nil
}

func (q *RabbitMQQueue) open(ctx context.Context) (amqpConnection, amqpChannel, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, &ConnectionError{Err: err}
	}

	conn, err := q.options.dial(getURL(q.config), q.amqpConfig())
	if err != nil {
		return nil, nil, &ConnectionError{Err: err}
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()

		return nil, nil, &ConnectionError{Err: err}
	}

	if err := q.channel.attach(ch); err != nil {
		_ = conn.Close()

		return nil, nil, fmt.Errorf("RabbitMQ | provision topology: %w", err)
	}

	return conn, ch, nil
}

// watch waits for the connection or the channel to close and reconnects until Close is called.
func (q *RabbitMQQueue) watch(conn amqpConnection, ch amqpChannel) {
	for {
		connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
		chanClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

		var reason *amqp.Error

		select {
		case <-q.done:
			return
		case reason = <-connClosed:
		case reason = <-chanClosed:
		}

		q.channel.detach()

		if q.closed.Load() {
			return
		}

		q.setState(StateReconnecting)

		event := q.logger.Warn()
		if reason != nil {
			event = event.Err(reason)
		}
		event.Msg("connection to RabbitMQ lost, reconnecting")

		_ = conn.Close()

		conn, ch = q.reconnect()
		if conn == nil {
			return
		}
	}
}

func (q *RabbitMQQueue) reconnect() (amqpConnection, amqpChannel) {
	for retries := 0; ; retries++ {
		select {
		case <-q.done:
			return nil, nil
		case <-time.After(q.options.backoff.Backoff(retries)):
		}

		conn, ch, err := q.open(context.Background())
		if err != nil {
			q.logger.Error().Err(err).Int("attempt", retries+1).Msg("failed to reconnect to RabbitMQ")

			continue
		}

		q.mutex.Lock()
		if q.closed.Load() {
			q.mutex.Unlock()
			_ = conn.Close()

			return nil, nil
		}
		q.conn = conn
		q.mutex.Unlock()

		q.setState(StateConnected)
		q.logger.Info().Int("attempt", retries+1).Msg("reconnected to RabbitMQ")

		return conn, ch
	}
}

// State returns the current connection state.
func (q *RabbitMQQueue) State() ConnectionState {
	return ConnectionState(q.state.Load())
}

// IsConnected reports whether the shared channel is currently usable.
func (q *RabbitMQQueue) IsConnected() bool {
	return q.State() == StateConnected
}

func (q *RabbitMQQueue) setState(s ConnectionState) {
	q.state.Store(int32(s))
}

// Close is terminal: it stops the consumers and the reconnect loop, then closes the channel and
// the connection.
func (q *RabbitMQQueue) Close() error {
	q.mutex.Lock()
	if !q.closed.CompareAndSwap(false, true) {
		q.mutex.Unlock()

		return ErrClosed
	}

	conn := q.conn
	q.mutex.Unlock()

	q.setState(StateClosed)
	close(q.done)

	var errs []error
	if err := q.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		errs = append(errs, fmt.Errorf("close channel: %w", err))
	}

	if conn != nil && !conn.IsClosed() {
		if err := conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}

	q.wg.Wait()

	q.logger.Info().Msg("RabbitMQ connection closed")

	return errors.Join(errs...)
}
