package runtime

import (
	"context"
	"errors"
	"net/http"
)

// startOpsServer serves the health endpoints in the background; a nil server means the ops surface is off.
func (d *Dependencies) startOpsServer() {
	if d.Infra.OpsServer == nil {
		return
	}

	go func() {
		d.logger.Info().Str("addr", d.Infra.OpsServer.Addr).Msg("starting ops server")

		if err := d.Infra.OpsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error().Err(err).Msg("ops server failed")
		}
	}()
}

func (d *Dependencies) monitorConfigChanges(ctx context.Context) {
	if d.configLoader == nil {
		return
	}

	reloadErrors := d.configLoader.WatchConfigSignals(ctx)

	go func() {
		for err := range reloadErrors {
			if err != nil {
				d.logger.Error().Err(err).Msg("failed to reload config")

				continue
			}

			d.logger.Info().Msg("config reloaded successfully")
		}

		d.logger.Info().Msg("stopping config monitor")
	}()
}

// cleanup releases resources in reverse order of acquisition. It is safe on partially built dependencies.
func (d *Dependencies) cleanup() {
	d.logger.Info().Msg("cleaning up resources...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), d.cfg.OpsServer.ShutdownTimeout)
	defer cancel()

	if d.Infra.OpsServer != nil {
		if err := d.Infra.OpsServer.Shutdown(shutdownCtx); err != nil {
			d.logger.Error().Err(err).Msg("failed to shut down ops server")
		}
	}

	if d.Infra.QueueClient != nil {
		if err := d.Infra.QueueClient.Close(); err != nil {
			d.logger.Error().Err(err).Msg("failed to close queue")
		}
	}

	if d.Infra.CacheClient != nil {
		if err := d.Infra.CacheClient.Close(); err != nil {
			d.logger.Error().Err(err).Msg("failed to close cache")
		}
	}

	if d.Infra.StorageClient != nil {
		if err := d.Infra.StorageClient.Close(); err != nil {
			d.logger.Error().Err(err).Msg("failed to close storage")
		}
	}

	if d.Infra.Metrics != nil {
		if err := d.Infra.Metrics.Shutdown(shutdownCtx); err != nil {
			d.logger.Error().Err(err).Msg("failed to shut down metrics")
		}
	}

	if d.tracerShutdownFunc != nil {
		if err := d.tracerShutdownFunc(shutdownCtx); err != nil {
			d.logger.Error().Err(err).Msg("failed to shut down tracer")
		}
	}

	d.logger.Info().Msg("cleanup completed")
}
