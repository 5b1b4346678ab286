package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Error is implemented by every failure an adapter or the client returns.
// Callers upstream of the chat backend treat these as opaque; the retry
// middleware is the only consumer of Retryable and RetryAfter.
type Error interface {
	error
	Provider() string
	StatusCode() int
	Retryable() bool
	RetryAfter() *time.Duration
}

type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + strings.TrimSpace(e.Message)
}
func (e *ConfigurationError) Provider() string           { return "" }
func (e *ConfigurationError) StatusCode() int            { return 0 }
func (e *ConfigurationError) Retryable() bool            { return false }
func (e *ConfigurationError) RetryAfter() *time.Duration { return nil }

type providerError struct {
	provider   string
	statusCode int
	message    string
	retryable  bool
	retryAfter *time.Duration
	raw        any
}

func (e *providerError) Error() string {
	msg := strings.TrimSpace(e.message)
	if msg == "" {
		msg = "request failed"
	}
	if e.statusCode == 0 {
		return fmt.Sprintf("%s error: %s", e.provider, msg)
	}
	return fmt.Sprintf("%s error (status=%d): %s", e.provider, e.statusCode, msg)
}
func (e *providerError) Provider() string           { return e.provider }
func (e *providerError) StatusCode() int            { return e.statusCode }
func (e *providerError) Retryable() bool            { return e.retryable }
func (e *providerError) RetryAfter() *time.Duration { return e.retryAfter }

// Raw returns the decoded error body, when the provider sent one.
func (e *providerError) Raw() any { return e.raw }

type InvalidRequestError struct{ providerError }
type AuthenticationError struct{ providerError }
type AccessDeniedError struct{ providerError }
type NotFoundError struct{ providerError }
type RequestTimeoutError struct{ providerError }
type ContextLengthError struct{ providerError }
type ContentFilterError struct{ providerError }
type QuotaExceededError struct{ providerError }
type RateLimitError struct{ providerError }
type ServerError struct{ providerError }
type UnknownHTTPError struct{ providerError }

// NetworkError wraps transport failures (DNS, connection reset, TLS) that
// happen before an HTTP status is available.
type NetworkError struct {
	providerError
	cause error
}

func (e *NetworkError) Unwrap() error { return e.cause }

// MalformedResponseError reports a 2xx body the adapter could not decode.
type MalformedResponseError struct{ providerError }

func ErrorFromHTTPStatus(provider string, statusCode int, message string, raw any, retryAfter *time.Duration) error {
	base := providerError{
		provider:   strings.TrimSpace(provider),
		statusCode: statusCode,
		message:    message,
		retryAfter: retryAfter,
		raw:        raw,
	}
	switch statusCode {
	case 400, 422:
		if err := classifyByMessage(base); err != nil {
			return err
		}
		return &InvalidRequestError{base}
	case 401:
		return &AuthenticationError{base}
	case 403:
		return &AccessDeniedError{base}
	case 404:
		return &NotFoundError{base}
	case 408:
		base.retryable = true
		return &RequestTimeoutError{base}
	case 413:
		return &ContextLengthError{base}
	case 429:
		// Azure reports exhausted monthly quota as 429 too; only the message tells them apart.
		if strings.Contains(strings.ToLower(message), "quota") {
			return &QuotaExceededError{base}
		}
		base.retryable = true
		return &RateLimitError{base}
	case 500, 502, 503, 504:
		base.retryable = true
		return &ServerError{base}
	default:
		base.retryable = true
		return &UnknownHTTPError{base}
	}
}

// classifyByMessage refines 400/422 responses whose body text names the real failure.
func classifyByMessage(base providerError) error {
	lower := strings.ToLower(base.message)
	switch {
	case strings.Contains(lower, "content filter") || strings.Contains(lower, "content_filter") || strings.Contains(lower, "safety"):
		return &ContentFilterError{base}
	case strings.Contains(lower, "context length") || strings.Contains(lower, "context_length") || strings.Contains(lower, "too many tokens"):
		return &ContextLengthError{base}
	case strings.Contains(lower, "quota") || strings.Contains(lower, "billing"):
		return &QuotaExceededError{base}
	case strings.Contains(lower, "deploymentnotfound") || strings.Contains(lower, "does not exist"):
		return &NotFoundError{base}
	case strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid key"):
		return &AuthenticationError{base}
	}
	return nil
}

func NewMalformedResponseError(provider, message string) error {
	return &MalformedResponseError{providerError{provider: strings.TrimSpace(provider), message: message}}
}

// WrapContextError maps a transport-level error into the unified hierarchy.
// Cancellation stays recognizable with errors.Is(err, context.Canceled).
func WrapContextError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var known Error
	if errors.As(err, &known) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &RequestTimeoutError{providerError{provider: strings.TrimSpace(provider), message: err.Error()}}
	}
	return &NetworkError{
		providerError: providerError{provider: strings.TrimSpace(provider), message: err.Error(), retryable: true},
		cause:         err,
	}
}

// ParseRetryAfter parses the Retry-After header value.
// Supported forms:
// - integer seconds
// - HTTP-date (RFC 7231)
func ParseRetryAfter(v string, now time.Time) *time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		d := time.Duration(secs) * time.Second
		return &d
	}
	if t, err := http.ParseTime(v); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return &d
	}
	return nil
}

func IsRetryable(err error) bool {
	var e Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Retryable()
}

func IsAuthenticationError(err error) bool {
	var e *AuthenticationError
	return errors.As(err, &e)
}
