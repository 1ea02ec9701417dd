package adapters

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/architeacher/svc-event-bus/internal/config"
	"github.com/architeacher/svc-event-bus/internal/domain"
	"github.com/architeacher/svc-event-bus/internal/infrastructure"
	"github.com/architeacher/svc-event-bus/internal/ports"
	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"github.com/throttled/throttled/v2"
	"github.com/throttled/throttled/v2/store/memstore"
)

const (
	HeaderWebhookID        = "X-Webhook-Id"
	HeaderWebhookDelivery  = "X-Webhook-Delivery"
	HeaderWebhookEvent     = "X-Webhook-Event"
	HeaderWebhookSignature = "X-Webhook-Signature"

	defaultUserAgent = "EventBus-Webhooks/1.0"
)

// WebhookSender delivers signed payloads with one circuit breaker and one rate limit per target host.
type WebhookSender struct {
	client   *resty.Client
	limiter  *throttled.GCRARateLimiterCtx
	breakers map[string]*gobreaker.CircuitBreaker
	mu       sync.Mutex
	logger   infrastructure.Logger
	config   config.WebhookConfig
}

var _ ports.WebhookSender = (*WebhookSender)(nil)

func NewWebhookSender(cfg config.WebhookConfig, logger infrastructure.Logger) (*WebhookSender, error) {
	client := resty.New()

	client.SetTimeout(cfg.RequestTimeout).
		SetRedirectPolicy(resty.NoRedirectPolicy())

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	client.SetHeaders(map[string]string{
		"User-Agent":   userAgent,
		"Content-Type": "application/json",
		"Accept":       "application/json, */*;q=0.5",
	})

	sender := &WebhookSender{
		client:   client,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		logger:   logger,
		config:   cfg,
	}

	if cfg.RateLimit.Enabled {
		store, err := memstore.NewCtx(cfg.RateLimit.MaxKeys)
		if err != nil {
			return nil, fmt.Errorf("failed to create rate limit store: %w", err)
		}

		quota := throttled.RateQuota{
			MaxRate:  throttled.PerSec(cfg.RateLimit.RequestsPerSecond),
			MaxBurst: cfg.RateLimit.BurstSize,
		}

		limiter, err := throttled.NewGCRARateLimiterCtx(store, quota)
		if err != nil {
			return nil, fmt.Errorf("failed to create rate limiter: %w", err)
		}

		sender.limiter = limiter
	}

	return sender, nil
}

func (s *WebhookSender) Send(ctx context.Context, req ports.WebhookRequest) (*domain.WebhookResponse, error) {
	target, err := s.validateURL(req.URL)
	if err != nil {
		return nil, &domain.DeliveryError{URL: req.URL, StatusCode: http.StatusBadRequest, Cause: err}
	}

	host := strings.ToLower(target.Host)

	if err := s.throttle(ctx, host); err != nil {
		return nil, err
	}

	result, err := s.breakerFor(host).Execute(func() (any, error) {
		return s.post(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			s.logger.Warn().
				Str("host", host).
				Str("webhook_id", req.WebhookID).
				Msg("circuit breaker is open, skipping webhook delivery")

			return nil, &domain.DeliveryError{URL: req.URL, Cause: errors.Join(domain.ErrCircuitBreakerOpen, err)}
		}

		response, _ := result.(*domain.WebhookResponse)

		return response, err
	}

	return result.(*domain.WebhookResponse), nil
}

func (s *WebhookSender) post(ctx context.Context, req ports.WebhookRequest) (*domain.WebhookResponse, error) {
	startTime := time.Now()

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader(HeaderWebhookID, req.WebhookID).
		SetHeader(HeaderWebhookDelivery, req.DeliveryID).
		SetHeader(HeaderWebhookEvent, string(req.Event)).
		SetHeader(HeaderWebhookSignature, req.Signature).
		SetBody(req.Body).
		Post(req.URL)

	duration := time.Since(startTime)

	if err != nil {
		s.logger.Error().
			Err(err).
			Str("webhook_id", req.WebhookID).
			Str("delivery_id", req.DeliveryID).
			Msg("failed to send webhook")

		return nil, &domain.DeliveryError{URL: req.URL, Cause: err}
	}

	body := resp.Body()
	if limit := s.config.MaxResponseBodySize; limit > 0 && int64(len(body)) > limit {
		body = body[:limit]
	}

	response := &domain.WebhookResponse{
		StatusCode: resp.StatusCode(),
		Body:       string(body),
		Duration:   duration,
	}

	s.logger.Info().
		Str("webhook_id", req.WebhookID).
		Str("delivery_id", req.DeliveryID).
		Int("status_code", resp.StatusCode()).
		Int64("duration_ms", duration.Milliseconds()).
		Msg("webhook request completed")

	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		return response, &domain.DeliveryError{
			URL:        req.URL,
			StatusCode: resp.StatusCode(),
			Cause:      fmt.Errorf("HTTP %s", resp.Status()),
		}
	}

	return response, nil
}

func (s *WebhookSender) throttle(ctx context.Context, host string) error {
	if s.limiter == nil {
		return nil
	}

	limited, result, err := s.limiter.RateLimitCtx(ctx, host, 1)
	if err != nil {
		s.logger.Error().Err(err).Str("host", host).Msg("rate limiter failed, allowing request")

		return nil
	}

	if limited {
		s.logger.Warn().
			Str("host", host).
			Dur("retry_after", result.RetryAfter).
			Msg("webhook rate limit exceeded")

		return fmt.Errorf("%w: retry after %s", domain.ErrRateLimitExceeded, result.RetryAfter)
	}

	return nil
}

func (s *WebhookSender) breakerFor(host string) *gobreaker.CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cb, ok := s.breakers[host]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        host,
		MaxRequests: s.config.CircuitBreaker.MaxRequests,
		Interval:    s.config.CircuitBreaker.Interval,
		Timeout:     s.config.CircuitBreaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		// A subscriber rejecting the payload says nothing about endpoint health.
		IsSuccessful: func(err error) bool {
			return err == nil || !domain.IsRetryableDelivery(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			s.logger.Info().
				Str("host", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})

	s.breakers[host] = cb

	return cb
}

func (s *WebhookSender) validateURL(targetURL string) (*url.URL, error) {
	if targetURL == "" {
		return nil, fmt.Errorf("URL cannot be empty")
	}

	parsedURL, err := url.Parse(targetURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL format: %w", err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("URL scheme must be http or https, got: %q", parsedURL.Scheme)
	}

	if parsedURL.Host == "" {
		return nil, fmt.Errorf("URL must include a host")
	}

	if !s.config.AllowPrivateTargets && isPrivateOrLocalHost(parsedURL.Hostname()) {
		return nil, fmt.Errorf("delivery to private or local networks is not allowed")
	}

	return parsedURL, nil
}

func isPrivateOrLocalHost(host string) bool {
	hostLower := strings.ToLower(host)
	if hostLower == "localhost" || strings.HasSuffix(hostLower, ".localhost") {
		return true
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}

	return ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() || ip.IsLinkLocalUnicast()
}
