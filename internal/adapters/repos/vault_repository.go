package repos

import (
	"context"

	"github.com/architeacher/svc-event-bus/internal/ports"
	"github.com/hashicorp/vault/api"
)

// VaultRepository reads the signing key and service secrets from Vault's KV engine.
type VaultRepository struct {
	client *api.Client
}

var _ ports.SecretsRepository = (*VaultRepository)(nil)

func NewVaultRepository(client *api.Client) *VaultRepository {
	return &VaultRepository{
		client: client,
	}
}

func (r *VaultRepository) SetToken(token string) {
	r.client.SetToken(token)
}

func (r *VaultRepository) GetSecrets(ctx context.Context, path string) (*api.Secret, error) {
	return r.client.Logical().ReadWithContext(ctx, path)
}

func (r *VaultRepository) WriteWithContext(ctx context.Context, path string, data map[string]any) (*api.Secret, error) {
	return r.client.Logical().WriteWithContext(ctx, path, data)
}
