// Package client talks to the OpenWeather APIs: city geocoding and the
// One Call forecast endpoint. Responses are normalized into the internal
// models before anything downstream sees them.
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
	"strconv"
	"strings"
	"time"

	"github.com/arabweather/taqs/internal/models"
	"github.com/arabweather/taqs/internal/observability"
)

// Provider is the weather data source consumed by the rest of the service.
type Provider interface {
	SearchCities(ctx context.Context, query string, limit int) ([]models.CityResult, error)
	GetForecast(ctx context.Context, lat, lon float64) (models.WeatherData, error)
	GetCurrentByName(ctx context.Context, name string) (models.WeatherData, error)
	ValidateAPIKey(ctx context.Context) error
}

var (
	ErrInvalidAPIKey    = errors.New("invalid API key")
	ErrLocationNotFound = errors.New("location not found")
	ErrUpstreamFailure  = errors.New("upstream failure")
	ErrRateLimited      = errors.New("rate limited")
)

const (
	geocodePath = "/geo/1.0/direct"
	oneCallPath = "/data/3.0/onecall"

	// DefaultSearchLimit bounds geocoding results per query.
	DefaultSearchLimit = 5
)

// OpenWeatherClient calls the OpenWeather HTTP APIs with retries and
// exponential backoff.
type OpenWeatherClient struct {
	apiKey         string
	baseURL        string
	timeout        time.Duration
	client         *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
}

// NewOpenWeatherClient builds a client with default retry settings.
func NewOpenWeatherClient(apiKey, baseURL string, timeout time.Duration) (*OpenWeatherClient, error) {
	return NewOpenWeatherClientWithRetry(apiKey, baseURL, timeout, 3, 100*time.Millisecond, 2*time.Second)
}

// NewOpenWeatherClientWithRetry builds a client with explicit retry settings.
func NewOpenWeatherClientWithRetry(apiKey, baseURL string, timeout time.Duration, retryAttempts int, retryBaseDelay, retryMaxDelay time.Duration) (*OpenWeatherClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}

	return &OpenWeatherClient{
		apiKey:         apiKey,
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		timeout:        timeout,
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryBaseDelay,
		retryMaxDelay:  retryMaxDelay,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type geocodeResult struct {
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Country string  `json:"country"`
	State   string  `json:"state"`
}

type oneCallResponse struct {
	Current struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
		WindSpeed float64 `json:"wind_speed"`
		Weather   []struct {
			Main        string `json:"main"`
			Description string `json:"description"`
			Icon        string `json:"icon"`
		} `json:"weather"`
	} `json:"current"`
	Daily []struct {
		Dt   int64 `json:"dt"`
		Temp struct {
			Min float64 `json:"min"`
			Max float64 `json:"max"`
		} `json:"temp"`
		Weather []struct {
			Main        string `json:"main"`
			Description string `json:"description"`
			Icon        string `json:"icon"`
		} `json:"weather"`
	} `json:"daily"`
}

// SearchCities resolves a free-text city query via the geocoding endpoint.
// An empty result set is not an error; the caller decides how to present it.
func (c *OpenWeatherClient) SearchCities(ctx context.Context, query string, limit int) ([]models.CityResult, error) {
	if limit <= 0 || limit > DefaultSearchLimit {
		limit = DefaultSearchLimit
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))

	body, err := c.getWithRetry(ctx, "geocode", geocodePath, params)
	if err != nil {
		return nil, err
	}

	var results []geocodeResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("parse geocode response: %w", err)
	}

	cities := make([]models.CityResult, 0, len(results))
	for _, r := range results {
		cities = append(cities, models.CityResult{
			Name:    r.Name,
			Country: r.Country,
			State:   r.State,
			Lat:     r.Lat,
			Lon:     r.Lon,
		})
	}
	return cities, nil
}

// GetForecast fetches current conditions plus the daily forecast for a
// coordinate pair. Minutely, hourly, and alert blocks are excluded; units are
// metric and condition descriptions come back in Arabic.
func (c *OpenWeatherClient) GetForecast(ctx context.Context, lat, lon float64) (models.WeatherData, error) {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("exclude", "minutely,hourly,alerts")
	params.Set("units", "metric")
	params.Set("lang", "ar")

	body, err := c.getWithRetry(ctx, "onecall", oneCallPath, params)
	if err != nil {
		return models.WeatherData{}, err
	}

	var apiResp oneCallResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return models.WeatherData{}, fmt.Errorf("parse forecast response: %w", err)
	}

	return mapOneCall(apiResp), nil
}

// GetCurrentByName geocodes a city name and fetches the forecast for the
// first match.
func (c *OpenWeatherClient) GetCurrentByName(ctx context.Context, name string) (models.WeatherData, error) {
	cities, err := c.SearchCities(ctx, name, 1)
	if err != nil {
		return models.WeatherData{}, err
	}
	if len(cities) == 0 {
		return models.WeatherData{}, fmt.Errorf("%w: %s", ErrLocationNotFound, name)
	}
	return c.GetForecast(ctx, cities[0].Lat, cities[0].Lon)
}

// ValidateAPIKey probes the geocoding endpoint to catch a bad or inactive
// key at startup instead of on the first user request.
func (c *OpenWeatherClient) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := c.SearchCities(ctx, "Cairo", 1)
	if errors.Is(err, ErrInvalidAPIKey) {
		return fmt.Errorf("%w: API key is invalid or not activated", ErrInvalidAPIKey)
	}
	if err != nil {
		return fmt.Errorf("validation request failed: %w", err)
	}
	return nil
}

// getWithRetry performs a GET with exponential backoff and jitter. Only
// retryable failures (rate limits, upstream 5xx, timeouts) trigger another
// attempt.
func (c *OpenWeatherClient) getWithRetry(ctx context.Context, endpoint, path string, params url.Values) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.ProviderRetriesTotal.Inc()
			delay := c.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		body, err := c.callAPI(ctx, endpoint, path, params)
		if err == nil {
			return body, nil
		}

		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("exhausted retries: %w", lastErr)
}

func (c *OpenWeatherClient) callAPI(ctx context.Context, endpoint, path string, params url.Values) ([]byte, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, path, params)
	if err != nil {
		observability.ProviderCallsTotal.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("build request: %w", err)
	}

	if corrID := extractCorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.ProviderCallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.ProviderCallDuration.WithLabelValues(endpoint, "error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("request timeout: %w", err)
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.ProviderCallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.ProviderCallDuration.WithLabelValues(endpoint, status).Observe(duration)

	if err := handleErrorResponse(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, path string, params url.Values) (*http.Request, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	q := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("appid", c.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *OpenWeatherClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrRateLimited) {
		return true
	}
	if errors.Is(err, ErrUpstreamFailure) {
		return true
	}

	errStr := err.Error()
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "context deadline exceeded") || strings.Contains(errStr, "context canceled") {
		return true
	}

	return false
}

func handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: invalid API key", ErrInvalidAPIKey)
	case http.StatusNotFound:
		return fmt.Errorf("%w", ErrLocationNotFound)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	return nil
}

func mapOneCall(apiResp oneCallResponse) models.WeatherData {
	data := models.WeatherData{
		Current: models.CurrentConditions{
			Temp:      apiResp.Current.Temp,
			FeelsLike: apiResp.Current.FeelsLike,
			Humidity:  apiResp.Current.Humidity,
			WindSpeed: apiResp.Current.WindSpeed,
		},
		FetchedAt: time.Now(),
	}
	if len(apiResp.Current.Weather) > 0 {
		w := apiResp.Current.Weather[0]
		data.Current.Condition = w.Main
		data.Current.Description = w.Description
		data.Current.Icon = w.Icon
	}

	data.Daily = make([]models.DailyForecast, 0, len(apiResp.Daily))
	for _, d := range apiResp.Daily {
		day := models.DailyForecast{
			Date:    d.Dt,
			TempMin: d.Temp.Min,
			TempMax: d.Temp.Max,
		}
		if len(d.Weather) > 0 {
			day.Condition = d.Weather[0].Main
			day.Description = d.Weather[0].Description
			day.Icon = d.Weather[0].Icon
		}
		data.Daily = append(data.Daily, day)
	}
	return data
}

func extractCorrelationID(ctx context.Context) string {
	if corrIDVal := ctx.Value("correlation_id"); corrIDVal != nil {
		if corrID, ok := corrIDVal.(string); ok {
			return corrID
		}
	}
	return ""
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
