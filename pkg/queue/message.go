package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

var errNoDelivery = errors.New("message was not delivered by a broker")

// Message is a delivered message together with the handle used to settle it.
type Message struct {
	Body        []byte
	RoutingKey  RoutingKey
	Exchange    string
	MessageID   string
	Headers     amqp.Table
	Redelivered bool
	Timestamp   time.Time

	acknowledger amqp.Acknowledger
	deliveryTag  uint64
	settled      atomic.Bool
}

func newMessage(d amqp.Delivery) *Message {
	return &Message{
		Body:         d.Body,
		RoutingKey:   RoutingKey(d.RoutingKey),
		Exchange:     d.Exchange,
		MessageID:    d.MessageId,
		Headers:      d.Headers,
		Redelivered:  d.Redelivered,
		Timestamp:    d.Timestamp,
		acknowledger: d.Acknowledger,
		deliveryTag:  d.DeliveryTag,
	}
}

// Unmarshal parses the body of the receiver message and stores the result in the value pointed to by target.
func (m *Message) Unmarshal(target any) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return errors.New("target must be a non-nil pointer")
	}

	if err := json.Unmarshal(m.Body, target); err != nil {
		return fmt.Errorf("could not unmarshal into target: %w", err)
	}

	return nil
}

// Settled reports whether the message was acknowledged or rejected.
func (m *Message) Settled() bool {
	return m.settled.Load()
}

func (m *Message) settle(fn func(a amqp.Acknowledger) error) error {
	if m.acknowledger == nil {
		return errNoDelivery
	}

	if !m.settled.CompareAndSwap(false, true) {
		return ErrAlreadySettled
	}

	return fn(m.acknowledger)
}

func (m *Message) ack() error {
	return m.settle(func(a amqp.Acknowledger) error {
		return a.Ack(m.deliveryTag, false)
	})
}

func (m *Message) nack(requeue bool) error {
	return m.settle(func(a amqp.Acknowledger) error {
		return a.Nack(m.deliveryTag, false, requeue)
	})
}

func (m *Message) reject() error {
	return m.settle(func(a amqp.Acknowledger) error {
		return a.Reject(m.deliveryTag, false)
	})
}

// MsgController controls the positive or negative acknowledgement of consumed messages.
type MsgController struct {
	queue  string
	logger Logger
}

// Ack is used to positively acknowledge a consumed message.
func (ctrl *MsgController) Ack(m *Message) error {
	return m.ack()
}

// Nack is used to negatively acknowledge a consumed message. The broker requeues it.
func (ctrl *MsgController) Nack(m *Message) error {
	ctrl.logger.Debug().Str("queue", ctrl.queue).Str("message_id", m.MessageID).Msg("requeueing message")

	return m.nack(true)
}

// Reject is used to negatively acknowledge a consumed message. It will not be requeued and is
// dead-lettered when the queue has a dead-letter exchange.
func (ctrl *MsgController) Reject(m *Message) error {
	ctrl.logger.Warn().Str("queue", ctrl.queue).Str("message_id", m.MessageID).Msg("rejecting message")

	return m.reject()
}
