package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrTaskNotFound          = errors.New("task not found")
	ErrWebhookNotFound       = errors.New("webhook not found")
	ErrInvalidMessage        = errors.New("invalid message")
	ErrDuplicateDelivery     = errors.New("webhook delivery already handled")
	ErrWebhookDisabled       = errors.New("webhook disabled")
	ErrRateLimitExceeded     = errors.New("rate limit exceeded")
	ErrCircuitBreakerOpen    = errors.New("circuit breaker open")
	ErrCacheUnavailable      = errors.New("cache service unavailable")
	ErrTaskAlreadyTerminated = errors.New("task already in a terminal phase")
)

type (
	DomainError struct {
		Code    string
		Message string
		Cause   error
		Details map[string]any
	}

	// DeliveryError describes a failed webhook request. StatusCode is zero when no response was received.
	DeliveryError struct {
		URL        string
		StatusCode int
		Cause      error
	}

	InvalidStateTransitionError struct {
		From string
		To   string
	}

	MaxRetriesExceededError struct {
		EventID    string
		RetryCount int
		MaxRetries int
	}
)

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Cause.Error())
	}

	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

func NewDomainError(code, message string, cause error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Cause:   cause,
		Details: make(map[string]any),
	}
}

func (e *DomainError) WithDetails(key string, value any) *DomainError {
	e.Details[key] = value

	return e
}

func NewInvalidMessageError(routingKey string, cause error) *DomainError {
	return NewDomainError(
		"INVALID_MESSAGE",
		fmt.Sprintf("invalid message received on %s", routingKey),
		errors.Join(ErrInvalidMessage, cause),
	).WithDetails("routing_key", routingKey)
}

func NewTaskNotFoundError(taskID string) *DomainError {
	return NewDomainError(
		"TASK_NOT_FOUND",
		fmt.Sprintf("task %s not found", taskID),
		ErrTaskNotFound,
	).WithDetails("task_id", taskID)
}

func NewWebhookNotFoundError(webhookID string) *DomainError {
	return NewDomainError(
		"WEBHOOK_NOT_FOUND",
		fmt.Sprintf("webhook %s not found", webhookID),
		ErrWebhookNotFound,
	).WithDetails("webhook_id", webhookID)
}

func (e *DeliveryError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("webhook delivery to %s failed: %v", e.URL, e.Cause)
	}

	if e.Cause != nil {
		return fmt.Sprintf("webhook delivery to %s failed with status %d: %v", e.URL, e.StatusCode, e.Cause)
	}

	return fmt.Sprintf("webhook delivery to %s failed with status %d", e.URL, e.StatusCode)
}

func (e *DeliveryError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether another attempt may succeed. Client errors other than
// timeouts and throttling are permanent.
func (e *DeliveryError) Retryable() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= http.StatusInternalServerError:
		return true
	default:
		return false
	}
}

// IsRetryableDelivery reports whether err is worth another webhook attempt.
func IsRetryableDelivery(err error) bool {
	if err == nil {
		return false
	}

	var deliveryErr *DeliveryError
	if errors.As(err, &deliveryErr) {
		return deliveryErr.Retryable()
	}

	return true
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition from %s to %s", e.From, e.To)
}

func (e *MaxRetriesExceededError) Error() string {
	return fmt.Sprintf("max retries exceeded for event %s: %d/%d", e.EventID, e.RetryCount, e.MaxRetries)
}
