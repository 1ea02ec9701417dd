//go:generate go tool github.com/maxbrunsfeld/counterfeiter/v6 -generate

package ports

import (
	"context"

	"github.com/architeacher/svc-event-bus/internal/domain"
)

//counterfeiter:generate -o ../mocks/webhook_sender.go . WebhookSender

type (
	WebhookRequest struct {
		WebhookID  string
		DeliveryID string
		URL        string
		Event      domain.EventKey
		Body       []byte
		Signature  string
	}

	// WebhookSender POSTs a signed payload to a subscriber endpoint. Non-2xx answers are
	// returned as *domain.DeliveryError alongside the response.
	WebhookSender interface {
		Send(ctx context.Context, req WebhookRequest) (*domain.WebhookResponse, error)
	}
)
