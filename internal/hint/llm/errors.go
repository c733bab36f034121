package llm

import (
	"fmt"
	"time"
)

// HTTPError represents a non-200 response from the completion endpoint.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("llm: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRateLimited returns true for 429 responses.
func (e *HTTPError) IsRateLimited() bool {
	return e.StatusCode == 429
}

// RateLimitError is a rate-limited response that told us how long to wait.
type RateLimitError struct {
	*HTTPError
	Delay time.Duration
}

func (e *RateLimitError) Unwrap() error { return e.HTTPError }

// RetryAfter returns the provider-directed delay.
func (e *RateLimitError) RetryAfter() time.Duration {
	return e.Delay
}

// ConfigError indicates the client cannot make requests at all.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return "llm: " + e.Message
}
