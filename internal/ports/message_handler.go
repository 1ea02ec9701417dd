//go:generate go tool github.com/maxbrunsfeld/counterfeiter/v6 -generate

package ports

import (
	"context"

	"github.com/architeacher/svc-event-bus/pkg/queue"
)

//counterfeiter:generate -o ../mocks/message_handler.go . MessageHandler
//counterfeiter:generate -o ../mocks/message_settler.go . MessageSettler

type (
	// MessageSettler settles a delivery; *queue.MsgController satisfies it.
	MessageSettler interface {
		Ack(msg *queue.Message) error
		Nack(msg *queue.Message) error
		Reject(msg *queue.Message) error
	}

	MessageHandler interface {
		QueueName() queue.QueueName
		ProcessMessage(ctx context.Context, msg *queue.Message, settler MessageSettler) error
	}
)

var _ MessageSettler = (*queue.MsgController)(nil)
