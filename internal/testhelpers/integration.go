//go:build integration
// +build integration

package testhelpers

import (
	"os"
	"testing"
)

// RedisAddr returns the Redis address for integration tests, skipping the
// test when REDIS_ADDR is not set.
func RedisAddr(t *testing.T) string {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping integration test")
	}
	return addr
}

// ProviderAPIKey returns the OpenWeather API key for integration tests,
// skipping the test when WEATHER_API_KEY is not set.
func ProviderAPIKey(t *testing.T) string {
	t.Helper()
	key := os.Getenv("WEATHER_API_KEY")
	if key == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}
	return key
}

// SQLitePath returns a per-test temporary SQLite database path.
func SQLitePath(t *testing.T) string {
	t.Helper()
	return t.TempDir() + "/favorites.db"
}
