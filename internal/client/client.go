package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kjstillabower/crop-advisory-service/internal/circuitbreaker"
	"github.com/kjstillabower/crop-advisory-service/internal/models"
	"github.com/kjstillabower/crop-advisory-service/internal/observability"
)

// DefaultLocation is queried when the caller passes an empty location.
const DefaultLocation = "New Delhi"

type WeatherClient interface {
	GetCurrentWeather(ctx context.Context, location string) (models.WeatherSnapshot, error)
	ValidateAPIKey(ctx context.Context) error
}

var (
	ErrInvalidAPIKey    = errors.New("invalid API key")
	ErrLocationNotFound = errors.New("location not found")
	ErrUpstreamFailure  = errors.New("upstream failure")
	ErrRateLimited      = errors.New("rate limited")
	ErrTimeout          = errors.New("request timeout")
)

// WeatherAPIClient talks to the weatherapi.com forecast endpoint.
type WeatherAPIClient struct {
	apiKey          string
	apiURL          string
	defaultLocation string
	timeout         time.Duration
	client          *http.Client
	retryAttempts   int
	retryBaseDelay  time.Duration
	retryMaxDelay   time.Duration
	breaker         *circuitbreaker.CircuitBreaker
}

func NewWeatherAPIClient(apiKey, apiURL string, timeout time.Duration) (*WeatherAPIClient, error) {
	return NewWeatherAPIClientWithRetry(apiKey, apiURL, timeout, 3, 100*time.Millisecond, 2*time.Second)
}

func NewWeatherAPIClientWithRetry(apiKey, apiURL string, timeout time.Duration, retryAttempts int, retryBaseDelay, retryMaxDelay time.Duration) (*WeatherAPIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	if retryAttempts < 1 {
		retryAttempts = 1
	}

	return &WeatherAPIClient{
		apiKey:          apiKey,
		apiURL:          apiURL,
		defaultLocation: DefaultLocation,
		timeout:         timeout,
		retryAttempts:   retryAttempts,
		retryBaseDelay:  retryBaseDelay,
		retryMaxDelay:   retryMaxDelay,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// SetCircuitBreaker wraps every upstream attempt in cb. Nil disables it.
func (c *WeatherAPIClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

// SetDefaultLocation overrides the location used for empty queries.
func (c *WeatherAPIClient) SetDefaultLocation(location string) {
	if strings.TrimSpace(location) != "" {
		c.defaultLocation = strings.TrimSpace(location)
	}
}

// CountsAgainstCircuit reports whether err says anything about upstream
// health. Unknown locations and caller cancellations do not.
func CountsAgainstCircuit(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrLocationNotFound) && !errors.Is(err, context.Canceled)
}

type weatherAPIResponse struct {
	Location struct {
		Name    string `json:"name"`
		Region  string `json:"region"`
		Country string `json:"country"`
	} `json:"location"`
	Current struct {
		LastUpdatedEpoch int64   `json:"last_updated_epoch"`
		TempC            float64 `json:"temp_c"`
		FeelsLikeC       float64 `json:"feelslike_c"`
		Humidity         float64 `json:"humidity"`
		WindKph          float64 `json:"wind_kph"`
		PrecipMM         float64 `json:"precip_mm"`
		UV               float64 `json:"uv"`
		Condition        struct {
			Text string `json:"text"`
		} `json:"condition"`
	} `json:"current"`
	Forecast struct {
		ForecastDay []struct {
			Day struct {
				MaxTempC          float64 `json:"maxtemp_c"`
				MinTempC          float64 `json:"mintemp_c"`
				DailyChanceOfRain float64 `json:"daily_chance_of_rain"`
				TotalPrecipMM     float64 `json:"totalprecip_mm"`
			} `json:"day"`
		} `json:"forecastday"`
	} `json:"forecast"`
}

type weatherAPIError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *WeatherAPIClient) GetCurrentWeather(ctx context.Context, location string) (models.WeatherSnapshot, error) {
	if strings.TrimSpace(location) == "" {
		location = c.defaultLocation
	}

	var lastErr error
	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.WeatherAPIRetriesTotal.Inc()
			delay := c.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return models.WeatherSnapshot{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err := c.attempt(ctx, location)
		if err == nil {
			return result, nil
		}

		lastErr = err
		if !c.isRetryable(ctx, err) {
			observability.WeatherAPIErrorsTotal.WithLabelValues(string(CategorizeError(err))).Inc()
			return models.WeatherSnapshot{}, err
		}
	}

	observability.WeatherAPIErrorsTotal.WithLabelValues(string(CategorizeError(lastErr))).Inc()
	return models.WeatherSnapshot{}, fmt.Errorf("exhausted retries: %w", lastErr)
}

func (c *WeatherAPIClient) attempt(ctx context.Context, location string) (models.WeatherSnapshot, error) {
	if c.breaker == nil {
		return c.callAPI(ctx, location)
	}
	var result models.WeatherSnapshot
	err := c.breaker.Call(ctx, func() error {
		var callErr error
		result, callErr = c.callAPI(ctx, location)
		return callErr
	})
	return result, err
}

func (c *WeatherAPIClient) callAPI(ctx context.Context, location string) (models.WeatherSnapshot, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, location)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		return models.WeatherSnapshot{}, fmt.Errorf("build request: %w", err)
	}

	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		observability.WeatherAPIDuration.WithLabelValues("error").Observe(duration)

		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return models.WeatherSnapshot{}, fmt.Errorf("request canceled: %w", err)
		}
		var netErr interface{ Timeout() bool }
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return models.WeatherSnapshot{}, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return models.WeatherSnapshot{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(status).Observe(duration)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.WeatherSnapshot{}, fmt.Errorf("read response body: %w", err)
	}

	if err := handleErrorResponse(resp.StatusCode, body); err != nil {
		return models.WeatherSnapshot{}, err
	}

	var apiResp weatherAPIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return models.WeatherSnapshot{}, fmt.Errorf("parse response: %w", err)
	}

	return mapResponse(apiResp, location), nil
}

func (c *WeatherAPIClient) isRetryable(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrUpstreamFailure) ||
		errors.Is(err, ErrTimeout)
}

func (c *WeatherAPIClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func (c *WeatherAPIClient) buildRequest(ctx context.Context, location string) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("q", location)
	params.Set("days", "1")
	params.Set("aqi", "no")
	params.Set("alerts", "no")
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

// handleErrorResponse maps provider status codes to sentinel errors.
// weatherapi.com reports an unknown q as 400 (error code 1006).
func handleErrorResponse(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr weatherAPIError
	_ = json.Unmarshal(body, &apiErr)
	detail := apiErr.Error.Message
	if detail == "" {
		detail = fmt.Sprintf("HTTP %d", statusCode)
	}

	switch {
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrInvalidAPIKey, detail)
	case statusCode == http.StatusNotFound, statusCode == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrLocationNotFound, detail)
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, detail)
	}
	return fmt.Errorf("%w: %s", ErrUpstreamFailure, detail)
}

func mapResponse(apiResp weatherAPIResponse, location string) models.WeatherSnapshot {
	name := apiResp.Location.Name
	if name == "" {
		name = location
	}

	observed := time.Now().UTC()
	if apiResp.Current.LastUpdatedEpoch > 0 {
		observed = time.Unix(apiResp.Current.LastUpdatedEpoch, 0).UTC()
	}

	snap := models.WeatherSnapshot{
		Location: models.Location{
			Name:    name,
			Region:  apiResp.Location.Region,
			Country: apiResp.Location.Country,
		},
		TempC:      apiResp.Current.TempC,
		FeelsLikeC: apiResp.Current.FeelsLikeC,
		Humidity:   apiResp.Current.Humidity,
		WindKph:    apiResp.Current.WindKph,
		PrecipMM:   apiResp.Current.PrecipMM,
		UV:         apiResp.Current.UV,
		Condition:  apiResp.Current.Condition.Text,
		ObservedAt: observed,
	}
	if len(apiResp.Forecast.ForecastDay) > 0 {
		d := apiResp.Forecast.ForecastDay[0].Day
		snap.Forecast = &models.DailyForecast{
			MaxTempC:      d.MaxTempC,
			MinTempC:      d.MinTempC,
			ChanceOfRain:  d.DailyChanceOfRain,
			TotalPrecipMM: d.TotalPrecipMM,
		}
	}
	return snap
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

// ValidateAPIKey issues one unretried request for the default location.
func (c *WeatherAPIClient) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := c.buildRequest(ctx, c.defaultLocation)
	if err != nil {
		return fmt.Errorf("build validation request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("validation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: API key is invalid or disabled", ErrInvalidAPIKey)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("validation failed: HTTP %d", resp.StatusCode)
	}

	return nil
}
