// Package advisory requests free-text agricultural advice from the Gemini
// generateContent API and turns it into structured payloads. The LLM is a
// best-effort collaborator: Advisor never returns an error, it substitutes a
// fixed local fallback whenever the call or the parse fails.
package advisory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kjstillabower/crop-advisory-service/internal/observability"
)

// DefaultBaseURL is the Generative Language API root.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

var (
	// ErrDisabled is returned when no API key is configured.
	ErrDisabled = errors.New("advisory API disabled")
	// ErrUpstream covers transport failures and non-2xx responses.
	ErrUpstream = errors.New("advisory upstream failure")
	// ErrRateLimited is returned when retries on 429 are exhausted.
	ErrRateLimited = errors.New("advisory rate limited")
	// ErrCircuitOpen is returned while the breaker rejects calls.
	ErrCircuitOpen = errors.New("advisory circuit open")
	// ErrEmptyResponse means the response carried no candidate text.
	ErrEmptyResponse = errors.New("advisory response had no text")
)

// RetryPolicy configures retries on 429 and 5xx.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// DefaultRetryPolicy keeps the total well inside the default advisory timeout.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, MinWait: 250 * time.Millisecond, MaxWait: 2 * time.Second}
}

// GenerationConfig is passed through to generateContent.
type GenerationConfig struct {
	Temperature      float64 `json:"temperature,omitempty"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *GenerationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// GeminiClient calls models/{model}:generateContent with the key in the
// X-goog-api-key header. Every attempt runs through a circuit breaker.
type GeminiClient struct {
	apiKey      string
	baseURL     string
	client      *http.Client
	breaker     *gobreaker.CircuitBreaker[*http.Response]
	retryPolicy RetryPolicy
	sleepFn     func(time.Duration)
}

// ClientOption configures a GeminiClient.
type ClientOption func(*GeminiClient)

// WithSleepFunc overrides the sleep between retries. For tests.
func WithSleepFunc(fn func(time.Duration)) ClientOption {
	return func(c *GeminiClient) { c.sleepFn = fn }
}

// WithRetryPolicy overrides DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) ClientOption {
	return func(c *GeminiClient) { c.retryPolicy = p }
}

// WithBreakerStateChange registers a hook for breaker transitions.
func WithBreakerStateChange(fn func(from, to string)) ClientOption {
	return func(c *GeminiClient) {
		c.breaker = newBreaker(func(_ string, from, to gobreaker.State) { fn(from.String(), to.String()) })
	}
}

func newBreaker(onChange func(string, gobreaker.State, gobreaker.State)) *gobreaker.CircuitBreaker[*http.Response] {
	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "advisory_api",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: onChange,
	})
}

// NewGeminiClient returns a client. An empty apiKey yields a client whose
// every call fails with ErrDisabled.
func NewGeminiClient(apiKey, baseURL string, timeout time.Duration, opts ...ClientOption) *GeminiClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &GeminiClient{
		apiKey:      apiKey,
		baseURL:     strings.TrimRight(baseURL, "/"),
		client:      &http.Client{Timeout: timeout},
		breaker:     newBreaker(nil),
		retryPolicy: DefaultRetryPolicy(),
		sleepFn:     time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enabled reports whether an API key is configured.
func (c *GeminiClient) Enabled() bool {
	return c != nil && c.apiKey != ""
}

// BreakerState returns the breaker state name for health reporting.
func (c *GeminiClient) BreakerState() string {
	return c.breaker.State().String()
}

// Generate sends prompt to model and returns the first candidate's text.
func (c *GeminiClient) Generate(ctx context.Context, model, prompt string, cfg *GenerationConfig) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}
	body, err := json.Marshal(generateRequest{
		Contents:         []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: cfg,
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, model)

	resp, err := c.do(ctx, endpoint, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", ErrUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: HTTP %d", ErrUpstream, resp.StatusCode)
	}

	var gr generateResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 || gr.Candidates[0].Content.Parts[0].Text == "" {
		return "", ErrEmptyResponse
	}
	return gr.Candidates[0].Content.Parts[0].Text, nil
}

// do posts body with retries on 429/5xx. 4xx other than 429 is returned as-is
// for the caller to map.
func (c *GeminiClient) do(ctx context.Context, endpoint string, body []byte) (*http.Response, error) {
	var lastStatus int
	var lastErr error

	maxAttempts := 1 + c.retryPolicy.MaxRetries
	for attempt := 0; attempt < maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-goog-api-key", c.apiKey)
		if corrID := observability.CorrelationID(ctx); corrID != "" {
			req.Header.Set("X-Correlation-ID", corrID)
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			r, doErr := c.client.Do(req)
			if doErr != nil {
				return nil, doErr
			}
			if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
				return r, fmt.Errorf("upstream returned %d", r.StatusCode)
			}
			return r, nil
		})
		if err == nil {
			return resp, nil
		}

		lastErr = err
		var wait time.Duration
		if resp != nil {
			lastStatus = resp.StatusCode
			wait = c.computeBackoff(attempt, resp)
			resp.Body.Close()
		} else {
			wait = c.computeBackoff(attempt, nil)
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}
		if ctx.Err() != nil {
			break
		}
		if attempt < maxAttempts-1 {
			c.sleepFn(wait)
		}
	}

	return nil, mapError(lastStatus, lastErr)
}

// computeBackoff honours Retry-After (seconds) and otherwise uses exponential
// backoff with jitter in [MinWait, min(MaxWait, MinWait*2^attempt)].
func (c *GeminiClient) computeBackoff(attempt int, resp *http.Response) time.Duration {
	if resp != nil {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return min(time.Duration(seconds)*time.Second, c.retryPolicy.MaxWait)
			}
		}
	}
	base := float64(c.retryPolicy.MinWait) * math.Pow(2, float64(attempt))
	base = math.Min(base, float64(c.retryPolicy.MaxWait))
	minWait := float64(c.retryPolicy.MinWait)
	if base <= minWait {
		return c.retryPolicy.MinWait
	}
	return time.Duration(minWait + rand.Float64()*(base-minWait))
}

func mapError(status int, err error) error {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	return fmt.Errorf("%w: %v", ErrUpstream, err)
}
