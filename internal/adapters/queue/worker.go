package queue

import (
	"context"
	"errors"
	"time"

	"github.com/architeacher/svc-event-bus/internal/domain"
	"github.com/architeacher/svc-event-bus/internal/infrastructure"
	"github.com/architeacher/svc-event-bus/internal/ports"
	"github.com/architeacher/svc-event-bus/pkg/queue"
	"github.com/go-playground/validator/v10"
)

// Outcome is how a consumed message was settled.
type Outcome string

const (
	OutcomeAcked    Outcome = "acked"
	OutcomeRejected Outcome = "rejected"
	OutcomeRequeued Outcome = "requeued"
)

// NewValidator returns the validator shared by every worker.
func NewValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

// worker holds what every queue worker does around its command: decode, validate, settle, measure.
type worker struct {
	queue    queue.QueueName
	validate *validator.Validate
	logger   infrastructure.Logger
	metrics  infrastructure.Metrics
}

func (w worker) QueueName() queue.QueueName {
	return w.queue
}

// process decodes msg into target and runs handle on it. Malformed messages and unknown
// aggregates are rejected, transient failures are requeued and everything else is acked.
func (w worker) process(
	ctx context.Context,
	msg *queue.Message,
	settler ports.MessageSettler,
	target any,
	handle func(ctx context.Context) error,
) error {
	startTime := time.Now()

	err := w.decode(msg, target)
	if err == nil {
		err = handle(ctx)
	}

	outcome := Classify(err)

	w.metrics.RecordMessageConsumed(ctx, string(w.queue), string(outcome), time.Since(startTime))

	switch outcome {
	case OutcomeRejected:
		w.logger.Error().
			Err(err).
			Str("queue", string(w.queue)).
			Str("routing_key", msg.RoutingKey.String()).
			Str("message_id", msg.MessageID).
			Msg("rejecting message")

		return settler.Reject(msg)

	case OutcomeRequeued:
		w.logger.Warn().
			Err(err).
			Str("queue", string(w.queue)).
			Str("routing_key", msg.RoutingKey.String()).
			Str("message_id", msg.MessageID).
			Bool("redelivered", msg.Redelivered).
			Msg("failed to process message, requeueing")

		return settler.Nack(msg)

	default:
		if err != nil {
			w.logger.Info().
				Err(err).
				Str("queue", string(w.queue)).
				Str("message_id", msg.MessageID).
				Msg("message already handled")
		}

		return settler.Ack(msg)
	}
}

func (w worker) decode(msg *queue.Message, target any) error {
	if err := msg.Unmarshal(target); err != nil {
		return domain.NewInvalidMessageError(msg.RoutingKey.String(), err)
	}

	if err := w.validate.Struct(target); err != nil {
		return domain.NewInvalidMessageError(msg.RoutingKey.String(), err)
	}

	return nil
}

// Classify maps a handler error onto the settlement it calls for.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeAcked
	case errors.Is(err, domain.ErrInvalidMessage),
		errors.Is(err, domain.ErrTaskNotFound),
		errors.Is(err, domain.ErrWebhookNotFound):
		return OutcomeRejected
	case errors.Is(err, domain.ErrTaskAlreadyTerminated),
		errors.Is(err, domain.ErrDuplicateDelivery):
		return OutcomeAcked
	default:
		return OutcomeRequeued
	}
}
