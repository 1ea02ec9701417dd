package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/architeacher/svc-event-bus/internal/config"
)

func TestExponential_Backoff(t *testing.T) {
	t.Parallel()

	strategy := NewExponentialStrategy(config.BackoffConfig{
		BaseDelay:  30 * time.Second,
		Multiplier: 2,
		MaxDelay:   time.Hour,
	})

	cases := []struct {
		name    string
		retries int
		want    time.Duration
	}{
		{name: "first attempt uses the base delay", retries: 0, want: 30 * time.Second},
		{name: "second attempt doubles", retries: 1, want: time.Minute},
		{name: "fourth attempt", retries: 3, want: 4 * time.Minute},
		{name: "capped at max delay", retries: 10, want: time.Hour},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, strategy.Backoff(tc.retries))
		})
	}
}

func TestExponential_JitterStaysWithinBounds(t *testing.T) {
	t.Parallel()

	strategy := NewExponentialStrategy(config.BackoffConfig{
		BaseDelay:  time.Second,
		Multiplier: 1.6,
		Jitter:     0.2,
		MaxDelay:   2 * time.Minute,
	})

	for range 100 {
		got := strategy.Backoff(2)

		assert.GreaterOrEqual(t, got, time.Duration(float64(2560*time.Millisecond)*0.8))
		assert.LessOrEqual(t, got, time.Duration(float64(2560*time.Millisecond)*1.2))
	}

	for range 100 {
		assert.LessOrEqual(t, strategy.Backoff(50), 2*time.Minute)
	}
}
