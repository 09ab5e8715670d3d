package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/arabweather/taqs/internal/observability"
)

// RouterConfig tunes the public router's middleware.
type RouterConfig struct {
	RequestTimeout time.Duration
}

// NewRouter builds the public router: API routes, health and metrics, and
// the app-shell catch-all served through the offline worker.
func NewRouter(h *Handler, logger *zap.Logger, cfg RouterConfig) *mux.Router {
	r := mux.NewRouter()

	r.Use(CorrelationIDMiddleware(logger))
	r.Use(MetricsMiddleware)

	r.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	r.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(RateLimitMiddleware(h.rateLimiter))
	if cfg.RequestTimeout > 0 {
		api.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}

	api.HandleFunc("/weather", h.GetWeather).Methods(http.MethodGet)
	api.HandleFunc("/weather/current", h.GetCurrentWeather).Methods(http.MethodGet)
	api.HandleFunc("/cities/search", h.SearchCities).Methods(http.MethodGet)

	api.HandleFunc("/favorites", h.ListFavorites).Methods(http.MethodGet)
	api.HandleFunc("/favorites", h.AddFavorite).Methods(http.MethodPost)
	api.HandleFunc("/favorites/{id}", h.RemoveFavorite).Methods(http.MethodDelete)

	api.HandleFunc("/preferences", h.GetPreferences).Methods(http.MethodGet)
	api.HandleFunc("/preferences", h.UpdatePreferences).Methods(http.MethodPut)
	api.HandleFunc("/preferences/reset", h.ResetPreferences).Methods(http.MethodPost)
	api.HandleFunc("/preferences/export", h.ExportPreferences).Methods(http.MethodGet)
	api.HandleFunc("/preferences/import", h.ImportPreferences).Methods(http.MethodPost)

	api.HandleFunc("/sync/{tag}", h.TriggerSync).Methods(http.MethodPost)
	api.HandleFunc("/push", h.ReceivePush).Methods(http.MethodPost)
	api.HandleFunc("/notifications/click", h.NotificationClick).Methods(http.MethodPost)
	api.HandleFunc("/notifications/permission", h.RequestNotificationPermission).Methods(http.MethodPost)
	api.HandleFunc("/notifications/subscribe", h.SubscribePush).Methods(http.MethodPost)

	// Everything else is the app shell, served cache-first by the worker.
	r.PathPrefix("/").HandlerFunc(h.ServeShell).Methods(http.MethodGet)

	return r
}

// ServeShell serves static app-shell assets through the worker's cache-first
// policy.
func (h *Handler) ServeShell(w http.ResponseWriter, r *http.Request) {
	resp, err := h.worker.Fetch(r.Context(), r.URL.RequestURI())
	if err != nil {
		writeError(w, r, http.StatusBadGateway, "ASSET_UNAVAILABLE", "unable to serve asset")
		return
	}
	passThrough(w, resp)
}
