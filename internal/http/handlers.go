// Package http carries the service's HTTP surface: the public API router,
// the origin routes the offline worker fetches through, and the middleware
// stack.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/arabweather/taqs/internal/client"
	"github.com/arabweather/taqs/internal/favorites"
	"github.com/arabweather/taqs/internal/lifecycle"
	"github.com/arabweather/taqs/internal/models"
	"github.com/arabweather/taqs/internal/notify"
	"github.com/arabweather/taqs/internal/prefs"
	"github.com/arabweather/taqs/internal/validation"
	"github.com/arabweather/taqs/internal/worker"
)

const (
	queryMinLen = 2
	queryMaxLen = 80
)

// HealthConfig holds the dependencies the health handler probes.
type HealthConfig struct {
	StartTime time.Time
	// CachePing, when set, checks cache reachability. Used when the backend
	// is Redis.
	CachePing func() error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	provider         client.Provider
	worker           *worker.Manager
	prefsStore       *prefs.Store
	favStore         favorites.Store
	gateway          *notify.Gateway
	healthConfig     *HealthConfig
	logger           *zap.Logger
	rateLimiter      *rate.Limiter
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(
	provider client.Provider,
	workerMgr *worker.Manager,
	prefsStore *prefs.Store,
	favStore favorites.Store,
	gateway *notify.Gateway,
	healthConfig *HealthConfig,
	logger *zap.Logger,
	rateLimiter *rate.Limiter,
) *Handler {
	return &Handler{
		provider:     provider,
		worker:       workerMgr,
		prefsStore:   prefsStore,
		favStore:     favStore,
		gateway:      gateway,
		healthConfig: healthConfig,
		logger:       logger,
		rateLimiter:  rateLimiter,
	}
}

// GetWeather handles GET /api/weather?lat=&lon=. The request goes through the
// offline worker, so a dead upstream still serves the last cached forecast,
// marked stale. Temperatures are converted to the user's preferred unit on
// the way out.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	lat, lon, err := parseCoordinates(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATES", err.Error())
		return
	}

	target := fmt.Sprintf("/api/weather?lat=%g&lon=%g", lat, lon)
	resp, err := h.worker.Fetch(r.Context(), target)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if resp.StatusCode != http.StatusOK {
		passThrough(w, resp)
		return
	}

	var data models.WeatherData
	if err := json.Unmarshal(resp.Body, &data); err != nil {
		writeServiceError(w, r, fmt.Errorf("decode forecast: %w", err))
		return
	}
	data.Stale = resp.FromCache
	h.localizeUnits(&data, w)
	writeJSON(w, http.StatusOK, data)
}

// GetCurrentWeather handles GET /api/weather/current?city=.
func (h *Handler) GetCurrentWeather(w http.ResponseWriter, r *http.Request) {
	city, err := validation.ValidateCityQuery(r.URL.Query().Get("city"), queryMinLen, queryMaxLen)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return
	}

	target := "/api/weather/current?city=" + url.QueryEscape(city)
	resp, err := h.worker.Fetch(r.Context(), target)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if resp.StatusCode != http.StatusOK {
		passThrough(w, resp)
		return
	}

	var data models.WeatherData
	if err := json.Unmarshal(resp.Body, &data); err != nil {
		writeServiceError(w, r, fmt.Errorf("decode forecast: %w", err))
		return
	}
	data.Stale = resp.FromCache
	h.localizeUnits(&data, w)
	writeJSON(w, http.StatusOK, data)
}

// SearchCities handles GET /api/cities/search?q=.
func (h *Handler) SearchCities(w http.ResponseWriter, r *http.Request) {
	q, err := validation.ValidateCityQuery(r.URL.Query().Get("q"), queryMinLen, queryMaxLen)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return
	}

	target := "/api/cities/search?q=" + url.QueryEscape(q)
	resp, err := h.worker.Fetch(r.Context(), target)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	passThrough(w, resp)
}

// ListFavorites handles GET /api/favorites.
func (h *Handler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	cities, err := h.favStore.List(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "FAVORITES_UNAVAILABLE", "unable to read favorites")
		return
	}
	if cities == nil {
		cities = []models.FavoriteCity{}
	}
	writeJSON(w, http.StatusOK, cities)
}

// AddFavorite handles POST /api/favorites.
func (h *Handler) AddFavorite(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name    string  `json:"cityName"`
		Country string  `json:"country"`
		Lat     float64 `json:"lat"`
		Lon     float64 `json:"lon"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		writeError(w, r, http.StatusBadRequest, "INVALID_FAVORITE", "cityName, lat and lon are required")
		return
	}
	if err := validation.ValidateCoordinates(body.Lat, body.Lon); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATES", err.Error())
		return
	}

	added, err := h.favStore.Add(r.Context(), models.FavoriteCity{
		Name:    body.Name,
		Country: body.Country,
		Lat:     body.Lat,
		Lon:     body.Lon,
	})
	if err != nil {
		if errors.Is(err, favorites.ErrDuplicate) {
			writeError(w, r, http.StatusConflict, "DUPLICATE_FAVORITE", "city already saved")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "FAVORITES_UNAVAILABLE", "unable to save favorite")
		return
	}
	writeJSON(w, http.StatusCreated, added)
}

// RemoveFavorite handles DELETE /api/favorites/{id}.
func (h *Handler) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.favStore.Remove(r.Context(), id); err != nil {
		if errors.Is(err, favorites.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "FAVORITE_NOT_FOUND", "no favorite with that id")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "FAVORITES_UNAVAILABLE", "unable to remove favorite")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetPreferences handles GET /api/preferences.
func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.prefsStore.Current())
}

// UpdatePreferences handles PUT /api/preferences. The body is a partial
// object of preference keys, applied as a single atomic mutation: one bad
// key or value rejects the whole request and nothing is persisted.
func (h *Handler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body) == 0 {
		writeError(w, r, http.StatusBadRequest, "INVALID_PREFERENCES", "body must be a non-empty preferences object")
		return
	}

	updated, err := h.prefsStore.UpdateAll(body)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_PREFERENCES", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// ResetPreferences handles POST /api/preferences/reset.
func (h *Handler) ResetPreferences(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.prefsStore.Reset())
}

// ExportPreferences handles GET /api/preferences/export, serving the
// settings as a downloadable JSON document.
func (h *Handler) ExportPreferences(w http.ResponseWriter, r *http.Request) {
	data, err := h.prefsStore.Export()
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "EXPORT_FAILED", "unable to export preferences")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="weather-settings.json"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// ImportPreferences handles POST /api/preferences/import. A malformed
// document is rejected without touching the stored settings.
func (h *Handler) ImportPreferences(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(r, 1<<20)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_PREFERENCES", "unable to read body")
		return
	}
	imported, err := h.prefsStore.Import(data)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_PREFERENCES", "malformed settings document")
		return
	}
	writeJSON(w, http.StatusOK, imported)
}

// TriggerSync handles POST /api/sync/{tag}. The periodic tag runs the
// favorite-city refresh; anything else goes through the reconnect sync path,
// where unknown tags are ignored.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	tag := mux.Vars(r)["tag"]

	kind := worker.EventSync
	if tag == worker.PeriodicSyncTag {
		kind = worker.EventPeriodicSync
	}
	if _, err := h.worker.Dispatch(r.Context(), worker.Event{Kind: kind, Tag: tag}); err != nil {
		writeError(w, r, http.StatusInternalServerError, "SYNC_FAILED", "sync run failed")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"ok":  true,
		"tag": tag,
	})
}

// ReceivePush handles POST /api/push: the payload body becomes a
// notification through the worker's push path.
func (h *Handler) ReceivePush(w http.ResponseWriter, r *http.Request) {
	payload, err := readBody(r, 4<<10)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_PAYLOAD", "unable to read body")
		return
	}
	h.worker.Push(r.Context(), payload)
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

// NotificationClick handles POST /api/notifications/click.
func (h *Handler) NotificationClick(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Action string `json:"action"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	h.worker.NotificationClick(r.Context(), body.Action)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// RequestNotificationPermission handles POST /api/notifications/permission.
func (h *Handler) RequestNotificationPermission(w http.ResponseWriter, r *http.Request) {
	perm := h.gateway.RequestPermission(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"permission": perm.String()})
}

// SubscribePush handles POST /api/notifications/subscribe.
func (h *Handler) SubscribePush(w http.ResponseWriter, r *http.Request) {
	sub := h.gateway.SubscribeToPush(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"subscription": sub})
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r)

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	if result.reason == "api_key_invalid" {
		checks["provider"] = "unhealthy"
	} else {
		checks["provider"] = "healthy"
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	checks["worker"] = h.worker.State().String()

	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "taqs",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > provider key invalid > cache unreachable > healthy.
func (h *Handler) computeHealthStatus(r *http.Request) healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if err := h.provider.ValidateAPIKey(r.Context()); err != nil {
		return healthResult{"degraded", http.StatusServiceUnavailable, "api_key_invalid"}
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if err := h.healthConfig.CachePing(); err != nil {
			return healthResult{"degraded", http.StatusServiceUnavailable, "cache_unreachable"}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// localizeUnits converts the payload's Celsius temperatures to the user's
// preferred unit and advertises the unit in a response header.
func (h *Handler) localizeUnits(data *models.WeatherData, w http.ResponseWriter) {
	unit := h.prefsStore.Current().TemperatureUnit
	w.Header().Set("X-Temperature-Unit", string(unit))
	if unit == prefs.Celsius {
		return
	}

	data.Current.Temp = unit.FromCelsius(data.Current.Temp)
	data.Current.FeelsLike = unit.FromCelsius(data.Current.FeelsLike)
	for i := range data.Daily {
		data.Daily[i].TempMin = unit.FromCelsius(data.Daily[i].TempMin)
		data.Daily[i].TempMax = unit.FromCelsius(data.Daily[i].TempMax)
	}
}

func parseCoordinates(r *http.Request) (lat, lon float64, err error) {
	q := r.URL.Query()
	lat, err = strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		return 0, 0, errors.New("lat must be a number")
	}
	lon, err = strconv.ParseFloat(q.Get("lon"), 64)
	if err != nil {
		return 0, 0, errors.New("lon must be a number")
	}
	if err := validation.ValidateCoordinates(lat, lon); err != nil {
		return 0, 0, err
	}
	return lat, lon, nil
}

func passThrough(w http.ResponseWriter, resp worker.Response) {
	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	if resp.FromCache {
		w.Header().Set("X-Served-From-Cache", "true")
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

func readBody(r *http.Request, limit int64) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(http.MaxBytesReader(nil, r.Body, limit))
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with
// code, message, and requestId (correlation ID) if available in context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID = v.(string)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}

// writeServiceError writes a 503 for upstream failures. The underlying error
// is logged at DEBUG via the request-scoped logger.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Unable to fetch weather data")
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		logger.Debug("upstream error", zap.Error(err))
	}
}
