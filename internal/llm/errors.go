package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
)

// Category is the coarse failure class reported by the connection test.
type Category string

const (
	CategoryTimeout        Category = "timeout"
	CategoryAuthentication Category = "authentication"
	CategoryNetwork        Category = "network"
	CategoryRateLimit      Category = "rate_limit"
	CategoryUnknown        Category = "unknown"
)

// Label is the human-readable indicator embedded in error messages.
func (c Category) Label() string {
	switch c {
	case CategoryTimeout:
		return "timeout - network slow or unavailable"
	case CategoryAuthentication:
		return "authentication error - invalid API key"
	case CategoryNetwork:
		return "network error - connection impossible"
	case CategoryRateLimit:
		return "rate limit - too many requests"
	default:
		return "unknown error"
	}
}

// APIError is a non-2xx answer from the chat-completion endpoint.
type APIError struct {
	StatusCode int
	Type       string
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("llm: API error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("llm: HTTP %d", e.StatusCode)
}

// Unwrap maps the status onto the package sentinels so callers can use
// errors.Is(err, ErrRateLimit) and friends.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return ErrNoAPIKey
	case e.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimit
	case e.StatusCode >= 500:
		return ErrProviderDown
	}
	return nil
}

// Classify maps err onto a Category. Typed errors are checked first; the
// substring patterns only apply to opaque errors that carry no type
// information, such as those surfaced by the eino driver.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return CategoryAuthentication
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return CategoryRateLimit
		case apiErr.StatusCode == http.StatusGatewayTimeout || apiErr.StatusCode == http.StatusRequestTimeout:
			return CategoryTimeout
		case apiErr.StatusCode == http.StatusBadGateway || apiErr.StatusCode == http.StatusServiceUnavailable:
			return CategoryNetwork
		}
		return CategoryUnknown
	}
	if errors.Is(err, ErrNoAPIKey) {
		return CategoryAuthentication
	}
	if errors.Is(err, ErrRateLimit) {
		return CategoryRateLimit
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTimeout
	}
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) || errors.Is(err, syscall.ECONNREFUSED) {
		return CategoryNetwork
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return CategoryNetwork
	}

	return classifyText(err.Error())
}

func classifyText(msg string) Category {
	msg = strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return CategoryTimeout
	case strings.Contains(msg, "api_key") || strings.Contains(msg, "api key") ||
		strings.Contains(msg, "401") || strings.Contains(msg, "unauthorized"):
		return CategoryAuthentication
	case strings.Contains(msg, "connection") || strings.Contains(msg, "network") ||
		strings.Contains(msg, "no such host") || strings.Contains(msg, "dial tcp"):
		return CategoryNetwork
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "rate_limit") ||
		strings.Contains(msg, "429") || strings.Contains(msg, "too many requests"):
		return CategoryRateLimit
	}
	return CategoryUnknown
}

// ErrorType returns the Go type name of the first cause in err's chain
// that is not plain fmt wrapping.
func ErrorType(err error) string {
	for err != nil {
		name := fmt.Sprintf("%T", err)
		if name != "*fmt.wrapError" && name != "*fmt.wrapErrors" {
			return name
		}
		next := errors.Unwrap(err)
		if next == nil {
			return name
		}
		err = next
	}
	return ""
}
