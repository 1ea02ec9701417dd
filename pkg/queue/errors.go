package queue

import (
	"errors"
	"fmt"
	"reflect"

	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	// ErrPublishTimeout is returned when the broker does not confirm a publish within the publishing timeout.
	ErrPublishTimeout = errors.New("timeout publishing message to queue")

	// ErrPublishRejected is returned when too many publishes are waiting for a confirmation.
	ErrPublishRejected = errors.New("publish buffer full")

	// ErrPublishNacked is returned when the broker negatively confirms a publish.
	ErrPublishNacked = errors.New("publish not acknowledged by broker")

	// ErrConsumeSetup is returned by Consume when it is called without a usable handler or queue.
	ErrConsumeSetup = errors.New("consume setup failed")

	// ErrClosed is returned by every operation invoked after Close.
	ErrClosed = errors.New("queue is closed")

	// ErrAlreadySettled is returned when a message is acknowledged or rejected more than once.
	ErrAlreadySettled = errors.New("message already settled")

	// ErrUnknownExchange is returned when a logical exchange name has no physical counterpart.
	ErrUnknownExchange = errors.New("unknown exchange")

	errChannelLost = fmt.Errorf("channel closed before confirmation: %w", amqp.ErrClosed)
)

// ConnectionError wraps the failure of the first connection attempt.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("error connecting to RabbitMQ. %s: %s", errorName(e.Err), e.Err.Error())
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

func errorName(err error) string {
	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) {
		return fmt.Sprintf("amqp.Error(%d)", amqpErr.Code)
	}

	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	if t.Name() == "" {
		return "Error"
	}

	return t.String()
}

func consumeSetupError(reason string) error {
	return fmt.Errorf("RabbitMQ | consume | %s: %w", reason, ErrConsumeSetup)
}
