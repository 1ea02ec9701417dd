package runtime

import (
	"context"
	"fmt"
)

// ProvisionerCtx declares the broker topology, removes deprecated resources and, when enabled,
// applies the database migrations. It exits once done.
type ProvisionerCtx struct {
	withStorage bool
}

func NewProvisioner(withStorage bool) *ProvisionerCtx {
	return &ProvisionerCtx{withStorage: withStorage}
}

func (c *ProvisionerCtx) Run(ctx context.Context) error {
	opts := []DependencyOption{WithQueue(ctx)}
	if c.withStorage {
		opts = append(opts, forceMigrations(), WithStorage(ctx))
	}

	deps, err := initializeDependencies(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to provision: %w", err)
	}

	defer deps.cleanup()

	if !deps.cfg.Queue.Enabled {
		deps.logger.Warn().Msg("RabbitMQ is disabled, topology was not provisioned")

		return nil
	}

	if !deps.Infra.QueueClient.IsConnected() {
		return fmt.Errorf("failed to provision: queue is not connected")
	}

	deps.logger.Info().Msg("topology provisioned")

	return nil
}

func forceMigrations() DependencyOption {
	return func(d *Dependencies) error {
		d.cfg.Storage.MigrateOnStart = true

		return nil
	}
}
