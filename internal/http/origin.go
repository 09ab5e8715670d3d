package http

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/arabweather/taqs/internal/client"
	"github.com/arabweather/taqs/internal/validation"
)

// Origin serves the raw provider-backed API routes. The public router never
// exposes these directly: the offline worker fetches through them, so every
// response here is a candidate for the dynamic cache. Payloads stay metric;
// unit localization happens on the public side where the cached copy is not
// affected.
type Origin struct {
	provider client.Provider
	logger   *zap.Logger
}

// NewOrigin returns the origin route set.
func NewOrigin(provider client.Provider, logger *zap.Logger) *Origin {
	return &Origin{provider: provider, logger: logger}
}

// Router mounts the origin routes.
func (o *Origin) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/weather", o.getForecast).Methods(http.MethodGet)
	r.HandleFunc("/api/weather/current", o.getCurrentByName).Methods(http.MethodGet)
	r.HandleFunc("/api/cities/search", o.searchCities).Methods(http.MethodGet)
	return r
}

func (o *Origin) getForecast(w http.ResponseWriter, r *http.Request) {
	lat, lon, err := parseCoordinates(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATES", err.Error())
		return
	}

	data, err := o.provider.GetForecast(r.Context(), lat, lon)
	if err != nil {
		o.writeProviderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (o *Origin) getCurrentByName(w http.ResponseWriter, r *http.Request) {
	city, err := validation.ValidateCityQuery(r.URL.Query().Get("city"), queryMinLen, queryMaxLen)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return
	}

	data, err := o.provider.GetCurrentByName(r.Context(), city)
	if err != nil {
		o.writeProviderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (o *Origin) searchCities(w http.ResponseWriter, r *http.Request) {
	q, err := validation.ValidateCityQuery(r.URL.Query().Get("q"), queryMinLen, queryMaxLen)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return
	}
	cities, err := o.provider.SearchCities(r.Context(), q, client.DefaultSearchLimit)
	if err != nil {
		o.writeProviderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cities)
}

// writeProviderError maps provider failures to statuses. Not-found stays a
// 404 (served live, never cached); everything transient becomes a 503 so the
// worker's loopback fetcher treats it as an unreachable origin and falls
// back to cache.
func (o *Origin) writeProviderError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, client.ErrLocationNotFound) {
		writeError(w, r, http.StatusNotFound, "CITY_NOT_FOUND", "no matching city")
		return
	}

	category := client.CategorizeError(err)
	o.logger.Warn("provider call failed",
		zap.String("category", string(category)),
		zap.Error(err))
	writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Unable to fetch weather data")
}
