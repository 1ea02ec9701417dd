//go:generate go tool github.com/maxbrunsfeld/counterfeiter/v6 -generate

package ports

import (
	"context"

	"aidanwoods.dev/go-paseto/v2"
)

//counterfeiter:generate -o ../mocks/key_service.go . KeyService
//counterfeiter:generate -o ../mocks/payload_signer.go . PayloadSigner

type (
	// KeyService manages the PASETO secret key used to sign webhook deliveries.
	KeyService interface {
		// GetSecretKey retrieves the signing key, using cache when valid or loading from the source.
		GetSecretKey(ctx context.Context) (paseto.V4AsymmetricSecretKey, error)

		// RefreshKey forces a refresh of the cached key.
		RefreshKey(ctx context.Context) error
	}

	PayloadSigner interface {
		// Sign returns a v4 public token binding the delivery to the digest of body.
		Sign(ctx context.Context, claims SignatureClaims, body []byte) (string, error)
	}

	SignatureClaims struct {
		WebhookID  string
		DeliveryID string
		Event      string
	}
)
