package adapters

import (
	"context"
	"sync"
	"time"

	"github.com/architeacher/svc-event-bus/internal/domain"
	"github.com/architeacher/svc-event-bus/internal/ports"
)

const defaultCheckTimeout = 2 * time.Second

type (
	// Pinger is a dependency that answers a round trip.
	Pinger interface {
		Ping(ctx context.Context) error
	}

	// ConnectionReporter is a dependency holding a long-lived connection.
	ConnectionReporter interface {
		IsConnected() bool
	}

	// HealthChecker checks the backing services. A nil dependency is reported as disabled.
	HealthChecker struct {
		storage      Pinger
		cache        Pinger
		queue        ConnectionReporter
		checkTimeout time.Duration
		startTime    time.Time
	}

	HealthCheckerOption func(*HealthChecker)
)

var _ ports.HealthChecker = (*HealthChecker)(nil)

func WithStorage(storage Pinger) HealthCheckerOption {
	return func(h *HealthChecker) {
		h.storage = storage
	}
}

func WithCache(cache Pinger) HealthCheckerOption {
	return func(h *HealthChecker) {
		h.cache = cache
	}
}

func WithQueue(queue ConnectionReporter) HealthCheckerOption {
	return func(h *HealthChecker) {
		h.queue = queue
	}
}

func WithCheckTimeout(timeout time.Duration) HealthCheckerOption {
	return func(h *HealthChecker) {
		h.checkTimeout = timeout
	}
}

func NewHealthChecker(opts ...HealthCheckerOption) *HealthChecker {
	h := &HealthChecker{
		checkTimeout: defaultCheckTimeout,
		startTime:    time.Now(),
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// CheckLiveness reports the process as alive; it never touches the dependencies.
func (h *HealthChecker) CheckLiveness(_ context.Context) *domain.LivenessResult {
	return &domain.LivenessResult{
		OverallStatus: domain.LivenessResponseStatusAlive,
		Uptime:        float32(time.Since(h.startTime).Seconds()),
	}
}

// CheckReadiness checks every dependency concurrently. Storage and queue are required, the
// cache only degrades readiness.
func (h *HealthChecker) CheckReadiness(ctx context.Context) *domain.ReadinessResult {
	var (
		wg     sync.WaitGroup
		result domain.ReadinessResult
	)

	wg.Go(func() { result.Storage = h.ping(ctx, h.storage) })
	wg.Go(func() { result.Cache = h.ping(ctx, h.cache) })
	wg.Go(func() { result.Queue = h.checkQueue() })

	wg.Wait()

	result.OverallStatus = readinessOf(result.Storage, result.Cache, result.Queue)

	return &result
}

func readinessOf(storage, cache, queue domain.DependencyStatus) domain.ReadinessResponseStatus {
	if storage.Status == domain.DependencyCheckStatusUnhealthy ||
		queue.Status == domain.DependencyCheckStatusUnhealthy {
		return domain.ReadinessResponseStatusNotReady
	}

	if cache.Status == domain.DependencyCheckStatusUnhealthy {
		return domain.ReadinessResponseStatusDegraded
	}

	return domain.ReadinessResponseStatusReady
}

func (h *HealthChecker) ping(ctx context.Context, dependency Pinger) domain.DependencyStatus {
	if dependency == nil {
		return domain.DependencyStatus{
			Status:      domain.DependencyCheckStatusDisabled,
			LastChecked: time.Now(),
		}
	}

	ctx, cancel := context.WithTimeout(ctx, h.checkTimeout)
	defer cancel()

	start := time.Now()
	err := dependency.Ping(ctx)

	status := domain.DependencyStatus{
		Status:       domain.DependencyCheckStatusHealthy,
		ResponseTime: float32(time.Since(start).Milliseconds()),
		LastChecked:  time.Now(),
	}

	if err != nil {
		status.Status = domain.DependencyCheckStatusUnhealthy
		status.Error = err.Error()
	}

	return status
}

func (h *HealthChecker) checkQueue() domain.DependencyStatus {
	status := domain.DependencyStatus{
		Status:      domain.DependencyCheckStatusHealthy,
		LastChecked: time.Now(),
	}

	switch {
	case h.queue == nil:
		status.Status = domain.DependencyCheckStatusDisabled
	case !h.queue.IsConnected():
		status.Status = domain.DependencyCheckStatusUnhealthy
		status.Error = "broker connection lost"
	}

	return status
}
