package client

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/arabweather/taqs/internal/models"
)

// ErrCircuitOpen is returned while the breaker rejects calls outright.
var ErrCircuitOpen = errors.New("provider circuit open")

// BreakerClient wraps a Provider with a circuit breaker so a dead upstream
// fails fast instead of burning a timeout per request. Open-circuit failures
// are still ordinary errors to callers, which lets the offline cache fallback
// take over.
type BreakerClient struct {
	inner   Provider
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerClient wraps inner. The breaker opens after five consecutive
// failures and probes again after the cooldown.
func NewBreakerClient(inner Provider, cooldown time.Duration, logger *zap.Logger) *BreakerClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:    "openweather",
		Timeout: cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("provider circuit state change",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &BreakerClient{inner: inner, breaker: gobreaker.NewCircuitBreaker(settings)}
}

func (b *BreakerClient) execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := b.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrCircuitOpen
	}
	return result, err
}

func (b *BreakerClient) SearchCities(ctx context.Context, query string, limit int) ([]models.CityResult, error) {
	result, err := b.execute(func() (interface{}, error) {
		return b.inner.SearchCities(ctx, query, limit)
	})
	if err != nil {
		return nil, err
	}
	return result.([]models.CityResult), nil
}

func (b *BreakerClient) GetForecast(ctx context.Context, lat, lon float64) (models.WeatherData, error) {
	result, err := b.execute(func() (interface{}, error) {
		return b.inner.GetForecast(ctx, lat, lon)
	})
	if err != nil {
		return models.WeatherData{}, err
	}
	return result.(models.WeatherData), nil
}

func (b *BreakerClient) GetCurrentByName(ctx context.Context, name string) (models.WeatherData, error) {
	result, err := b.execute(func() (interface{}, error) {
		return b.inner.GetCurrentByName(ctx, name)
	})
	if err != nil {
		return models.WeatherData{}, err
	}
	return result.(models.WeatherData), nil
}

func (b *BreakerClient) ValidateAPIKey(ctx context.Context) error {
	// Key validation runs once at startup; no point routing it through the
	// breaker's failure counting.
	return b.inner.ValidateAPIKey(ctx)
}
