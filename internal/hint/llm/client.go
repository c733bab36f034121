// Package llm implements a hint strategy backed by an OpenAI-compatible chat
// completion endpoint.
//
// The model receives the shot context as JSON and must answer with a single
// function expression. Rate-limited responses carrying a Retry-After header
// are retried once, and only when the requested delay fits under
// MaxRetryDelay; every other failure is returned to the advisor, which moves
// on to its local fallbacks.
//
//	client := llm.NewClient(llm.Config{
//	    Endpoint: "https://api.openai.com/v1",
//	    Model:    "gpt-4o-mini",
//	    APIKey:   key,
//	})
//	advisor := hint.NewAdvisor(client, nil)
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MJE43/funcwar-server/internal/hint"
)

// Config holds configuration for the completion client.
type Config struct {
	// Endpoint is the API base URL; "/chat/completions" is appended.
	Endpoint string

	Model  string
	APIKey string

	// Timeout bounds one HTTP request. Defaults to 20 seconds.
	Timeout time.Duration

	// MaxRetryDelay caps the Retry-After delay we are willing to wait.
	// Defaults to 5 seconds.
	MaxRetryDelay time.Duration

	// HTTPClient allows injecting a custom HTTP client (useful for testing).
	HTTPClient *http.Client
}

// Client is a hint.Strategy.
type Client struct {
	config Config
	http   *http.Client
}

var _ hint.Strategy = (*Client)(nil)

// NewClient creates a completion client with the given configuration.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MaxRetryDelay == 0 {
		cfg.MaxRetryDelay = 5 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{config: cfg, http: httpClient}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Suggest asks the model for one candidate function.
func (c *Client) Suggest(ctx context.Context, hc hint.Context) (string, error) {
	if c.config.Endpoint == "" {
		return "", &ConfigError{Message: "endpoint not configured"}
	}
	if c.config.APIKey == "" {
		return "", &ConfigError{Message: "api key not configured"}
	}
	prompt, err := buildPrompt(hc)
	if err != nil {
		return "", err
	}
	body := chatRequest{
		Model: c.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.2,
		MaxTokens:   120,
	}
	resp, err := c.doRequestWithRetry(ctx, body)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm: response has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// doRequest sends a single completion request and decodes the response.
func (c *Client) doRequest(ctx context.Context, body chatRequest) (*chatResponse, error) {
	url := strings.TrimRight(c.config.Endpoint, "/") + "/chat/completions"

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("llm: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("llm: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("llm: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		httpErr := &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
		if delay, ok := parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()); ok && httpErr.IsRateLimited() {
			return nil, &RateLimitError{HTTPError: httpErr, Delay: delay}
		}
		return nil, httpErr
	}

	var out chatResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("llm: invalid response JSON: %w", err)
	}
	return &out, nil
}

// doRequestWithRetry retries at most once, and only when the provider named
// a delay no longer than MaxRetryDelay.
func (c *Client) doRequestWithRetry(ctx context.Context, body chatRequest) (*chatResponse, error) {
	resp, err := c.doRequest(ctx, body)
	if err == nil {
		return resp, nil
	}
	var rl *RateLimitError
	if !errors.As(err, &rl) || rl.RetryAfter() > c.config.MaxRetryDelay {
		return nil, err
	}
	select {
	case <-time.After(rl.RetryAfter()):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return c.doRequest(ctx, body)
}

// parseRetryAfter accepts both delay-seconds and HTTP-date forms.
func parseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs * float64(time.Second)), true
	}
	if at, err := http.ParseTime(v); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}
