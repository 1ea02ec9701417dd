package backoff

import (
	"math/rand/v2"
	"time"

	"github.com/architeacher/svc-event-bus/internal/config"
)

type (
	// Strategy computes the wait before the next attempt of a failed operation: broker reconnects,
	// outbox republishing and webhook redelivery.
	Strategy interface {
		// Backoff returns the amount of time to wait before the next retry given
		// the number of consecutive failures.
		Backoff(retries int) time.Duration
	}

	// Exponential implements exponential backoff algorithm.
	Exponential struct {
		config config.BackoffConfig
	}
)

func NewExponentialStrategy(cfg config.BackoffConfig) Exponential {
	return Exponential{
		config: cfg,
	}
}

// Backoff grows BaseDelay by Multiplier per retry, applies jitter and caps the result at MaxDelay.
func (bc Exponential) Backoff(retries int) time.Duration {
	backoff, maxBackoff := float64(bc.config.BaseDelay), float64(bc.config.MaxDelay)
	for backoff < maxBackoff && retries > 0 {
		backoff *= bc.config.Multiplier
		retries--
	}

	if bc.config.Jitter > 0 {
		backoff *= 1 + bc.config.Jitter*(rand.Float64()*2-1)
	}

	if maxBackoff > 0 && backoff > maxBackoff {
		backoff = maxBackoff
	}

	if backoff < 0 {
		backoff = 0
	}

	return time.Duration(backoff)
}
