// Package config loads service configuration from YAML files with env
// overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	TestingMode bool

	ServerPort string
	WebRoot    string

	ProviderAPIKey  string
	ProviderBaseURL string
	ProviderTimeout time.Duration

	RequestTimeout time.Duration

	CacheBackend string // "in_memory" or "redis"
	RedisAddr    string
	RedisDB      int

	FavoritesBackend string // "memory" or "sqlite"
	FavoritesDBPath  string

	PrefsPath string

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	BreakerCooldown time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	UpdateInterval  time.Duration // periodic favorite refresh cadence
	SyncOnStart     bool          // run a background sync pass at startup
	PushEndpoint    string
	PushServerKey   string

	ShutdownTimeout time.Duration
}

type fileConfig struct {
	TestingMode *bool `yaml:"testing_mode"`

	Server struct {
		Port    string `yaml:"port"`
		WebRoot string `yaml:"web_root"`
	} `yaml:"server"`

	Provider struct {
		BaseURL string `yaml:"base_url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"provider"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend string `yaml:"backend"`
		Redis   struct {
			Addr string `yaml:"addr"`
			DB   int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Favorites struct {
		Backend string `yaml:"backend"`
		DBPath  string `yaml:"db_path"`
	} `yaml:"favorites"`

	Preferences struct {
		Path string `yaml:"path"`
	} `yaml:"preferences"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
		BreakerCooldown  string `yaml:"breaker_cooldown"`
		RateLimitRPS     int    `yaml:"rate_limit_rps"`
		RateLimitBurst   int    `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Sync struct {
		UpdateInterval string `yaml:"update_interval"`
		OnStart        *bool  `yaml:"on_start"`
	} `yaml:"sync"`

	Push struct {
		Endpoint  string `yaml:"endpoint"`
		ServerKey string `yaml:"server_key"`
	} `yaml:"push"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`
}

type secretsFile struct {
	ProviderAPIKey string `yaml:"provider_api_key"`
	PushServerKey  string `yaml:"push_server_key"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and
// config/secrets.yaml. The provider API key comes from OPENWEATHER_API_KEY
// env or the secrets file. Call from project root.
func Load() (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}
	if fc.TestingMode != nil {
		cfg.TestingMode = *fc.TestingMode
	}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	cfg.WebRoot = fc.Server.WebRoot
	if cfg.WebRoot == "" {
		cfg.WebRoot = "web/dist"
	}

	cfg.ProviderAPIKey = os.Getenv("OPENWEATHER_API_KEY")
	var sec secretsFile
	secretsPath := filepath.Join(cwd, "config", "secrets.yaml")
	if secretsData, err := os.ReadFile(secretsPath); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read secrets file: %w", err)
		}
	} else if err := yaml.Unmarshal(secretsData, &sec); err != nil {
		return nil, fmt.Errorf("parse secrets file: %w", err)
	}
	if cfg.ProviderAPIKey == "" {
		cfg.ProviderAPIKey = sec.ProviderAPIKey
	}
	if cfg.ProviderAPIKey == "" {
		return nil, fmt.Errorf("OPENWEATHER_API_KEY required (set env or config/secrets.yaml provider_api_key)")
	}

	cfg.ProviderBaseURL = fc.Provider.BaseURL
	if cfg.ProviderBaseURL == "" {
		cfg.ProviderBaseURL = "https://api.openweathermap.org"
	}
	cfg.ProviderTimeout = parseDurationOrZero(fc.Provider.Timeout, 2*time.Second)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 5*time.Second)

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = strings.TrimSpace(fc.Cache.Redis.Addr)
	}
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	cfg.RedisDB = fc.Cache.Redis.DB

	cfg.FavoritesBackend = strings.TrimSpace(strings.ToLower(os.Getenv("FAVORITES_BACKEND")))
	if cfg.FavoritesBackend == "" {
		cfg.FavoritesBackend = strings.TrimSpace(strings.ToLower(fc.Favorites.Backend))
	}
	if cfg.FavoritesBackend == "" {
		cfg.FavoritesBackend = "sqlite"
	}
	cfg.FavoritesDBPath = fc.Favorites.DBPath
	if cfg.FavoritesDBPath == "" {
		cfg.FavoritesDBPath = "data/favorites.db"
	}

	cfg.PrefsPath = fc.Preferences.Path
	if cfg.PrefsPath == "" {
		cfg.PrefsPath = "data/preferences.json"
	}

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	cfg.BreakerCooldown = parseDuration(fc.Reliability.BreakerCooldown, 30*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}

	cfg.UpdateInterval = parseDuration(fc.Sync.UpdateInterval, 30*time.Minute)
	cfg.SyncOnStart = true
	if fc.Sync.OnStart != nil {
		cfg.SyncOnStart = *fc.Sync.OnStart
	}

	cfg.PushEndpoint = fc.Push.Endpoint
	cfg.PushServerKey = os.Getenv("PUSH_SERVER_KEY")
	if cfg.PushServerKey == "" {
		cfg.PushServerKey = sec.PushServerKey
	}
	if cfg.PushServerKey == "" {
		cfg.PushServerKey = fc.Push.ServerKey
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDuration parses a duration string and returns defaultVal if parsing
// fails or the result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty
// string or parse error. Zero or negative durations come back as-is.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation. RequestTimeout is auto-adjusted to
// stay above the provider timeout so the server never cuts off an in-flight
// upstream call.
func validate(cfg *Config) error {
	if cfg.ProviderTimeout <= 0 {
		return fmt.Errorf("provider.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.ProviderTimeout {
		cfg.RequestTimeout = cfg.ProviderTimeout + time.Second
	}
	switch cfg.CacheBackend {
	case "in_memory", "redis":
		// valid
	default:
		return fmt.Errorf("cache.backend must be in_memory or redis, got %q", cfg.CacheBackend)
	}
	switch cfg.FavoritesBackend {
	case "memory", "sqlite":
		// valid
	default:
		return fmt.Errorf("favorites.backend must be memory or sqlite, got %q", cfg.FavoritesBackend)
	}
	return nil
}
