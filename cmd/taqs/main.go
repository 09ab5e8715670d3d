package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/arabweather/taqs/internal/cache"
	"github.com/arabweather/taqs/internal/client"
	"github.com/arabweather/taqs/internal/config"
	"github.com/arabweather/taqs/internal/favorites"
	httphandler "github.com/arabweather/taqs/internal/http"
	"github.com/arabweather/taqs/internal/jobs"
	"github.com/arabweather/taqs/internal/lifecycle"
	"github.com/arabweather/taqs/internal/models"
	"github.com/arabweather/taqs/internal/notify"
	"github.com/arabweather/taqs/internal/observability"
	"github.com/arabweather/taqs/internal/prefs"
	"github.com/arabweather/taqs/internal/scheduler"
	"github.com/arabweather/taqs/internal/worker"
)

func main() {
	_ = godotenv.Load()

	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	baseClient, err := client.NewOpenWeatherClientWithRetry(
		cfg.ProviderAPIKey,
		cfg.ProviderBaseURL,
		cfg.ProviderTimeout,
		cfg.RetryAttempts,
		cfg.RetryBaseDelay,
		cfg.RetryMaxDelay,
	)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}
	provider := client.NewBreakerClient(baseClient, cfg.BreakerCooldown, logger)

	var cacheStore cache.Store
	var redisCloser *cache.RedisStore
	switch cfg.CacheBackend {
	case "redis":
		rs, err := cache.NewRedisStore(cfg.RedisAddr, "", cfg.RedisDB)
		if err != nil {
			logger.Fatal("redis cache", zap.Error(err))
		}
		redisCloser = rs
		cacheStore = rs
		logger.Info("cache backend: redis", zap.String("addr", cfg.RedisAddr))
	default:
		cacheStore = cache.NewMemoryStore()
		logger.Info("cache backend: in_memory")
	}

	var favStore favorites.Store
	var sqliteCloser *favorites.SQLiteStore
	switch cfg.FavoritesBackend {
	case "sqlite":
		if err := os.MkdirAll(dirOf(cfg.FavoritesDBPath), 0o755); err != nil {
			logger.Fatal("favorites dir", zap.Error(err))
		}
		fs, err := favorites.NewSQLiteStore(cfg.FavoritesDBPath)
		if err != nil {
			logger.Fatal("sqlite favorites", zap.Error(err))
		}
		sqliteCloser = fs
		favStore = fs
		logger.Info("favorites backend: sqlite", zap.String("path", cfg.FavoritesDBPath))
	default:
		favStore = favorites.NewMemoryStore()
		logger.Info("favorites backend: memory")
	}

	prefsStorage, err := prefs.NewFileStorage(cfg.PrefsPath)
	if err != nil {
		logger.Fatal("preferences storage", zap.Error(err))
	}
	prefsStore := prefs.NewStore(prefsStorage, logger)

	platform := notify.NewLogPlatform(logger, cfg.PushEndpoint)
	gateway := notify.NewGateway(platform, prefsStore, cfg.PushServerKey, logger)
	gateway.RequestPermission(context.Background())

	origin := httphandler.NewOrigin(provider, logger)
	workerMgr := worker.NewManager(worker.Config{
		Store: cacheStore,
		Fetcher: worker.NewRouteFetcher(
			worker.NewHandlerFetcher(origin.Router()),
			worker.NewFileFetcher(cfg.WebRoot),
		),
		Notifier: platform,
		Opener:   appOpener{logger: logger},
		Favorites: func(ctx context.Context) []models.FavoriteCity {
			cities, err := favStore.List(ctx)
			if err != nil {
				logger.Warn("favorites list failed during sync", zap.Error(err))
				return nil
			}
			return cities
		},
		Logger: logger,
	})

	installCtx, installCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := workerMgr.Install(installCtx); err != nil {
		logger.Warn("app shell precache failed; serving without offline shell", zap.Error(err))
	} else if err := workerMgr.Activate(installCtx); err != nil {
		logger.Warn("worker activation failed", zap.Error(err))
	}
	installCancel()

	refresher := scheduler.New(func(ctx context.Context) error {
		return workerMgr.PeriodicSync(ctx, worker.PeriodicSyncTag)
	}, gateway, prefsStore, logger)
	defer refresher.Stop()

	runner := jobs.New(workerMgr, cfg.UpdateInterval, cfg.SyncOnStart, logger)
	if err := runner.Start(); err != nil {
		logger.Fatal("background jobs", zap.Error(err))
	}
	defer runner.Stop()

	healthConfig := &httphandler.HealthConfig{StartTime: time.Now()}
	if redisCloser != nil {
		healthConfig.CachePing = redisCloser.Ping
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(provider, workerMgr, prefsStore, favStore, gateway, healthConfig, logger, limiter)
	router := httphandler.NewRouter(handler, logger, httphandler.RouterConfig{RequestTimeout: cfg.RequestTimeout})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, 100*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	refresher.Stop()
	runner.Stop()
	workerMgr.Retire()

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if redisCloser != nil {
		if err := redisCloser.Close(); err != nil {
			logger.Error("redis close", zap.Error(err))
		}
	}
	if sqliteCloser != nil {
		if err := sqliteCloser.Close(); err != nil {
			logger.Error("sqlite close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}

// appOpener satisfies the worker's notification-click contract. Without a
// window manager there is nothing to focus; the click is logged so the
// action path stays observable.
type appOpener struct {
	logger *zap.Logger
}

func (o appOpener) OpenOrFocus(ctx context.Context, path string) error {
	o.logger.Info("notification click: open app", zap.String("path", path))
	return nil
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
