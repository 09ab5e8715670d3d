// Package worker is the offline cache manager: the event-driven layer that
// intercepts fetches, precaches the app shell, refreshes cached weather
// payloads on background/periodic sync, and surfaces push notifications.
// It runs against injected cache and fetch abstractions so the same logic is
// testable without a network or a platform worker runtime.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/arabweather/taqs/internal/cache"
	"github.com/arabweather/taqs/internal/models"
	"github.com/arabweather/taqs/internal/notify"
	"github.com/arabweather/taqs/internal/observability"
)

// DefaultPrecacheManifest is the fixed app-shell asset list stored at install
// time. Any one missing asset fails the whole installation.
var DefaultPrecacheManifest = []string{
	"/",
	"/index.html",
	"/assets/index.js",
	"/assets/index.css",
	"/icon-any.svg",
	"/icon-maskable.svg",
	"/manifest.json",
}

const (
	apiPathMarker     = "/api/"
	weatherPathMarker = "/api/weather"

	// SyncTag is the reconnect-triggered background sync tag. Tags are
	// validated for both exact value and maximum length before processing.
	SyncTag          = "weather-sync"
	MaxSyncTagLength = 20

	// PeriodicSyncTag is the platform-scheduled recurring sync tag.
	PeriodicSyncTag = "weather-update"

	pushTitle        = "طقس العرب المطور"
	pushFallbackBody = "تحديث جديد للطقس متاح"

	// ActionOpen opens or focuses the app root; ActionClose only dismisses.
	ActionOpen  = "open"
	ActionClose = "close"
)

// State tracks the manager's lifecycle, mirroring worker registration phases.
type State int32

const (
	StateNew State = iota
	StateInstalling
	StateWaiting
	StateActive
	StateRedundant
)

func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateWaiting:
		return "waiting"
	case StateActive:
		return "active"
	case StateRedundant:
		return "redundant"
	default:
		return "new"
	}
}

// ErrNotInstalled is returned by Activate before a successful install.
var ErrNotInstalled = errors.New("worker not installed")

// Response is the result of a fetch, live or from cache.
type Response struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	FromCache   bool
}

// Fetcher performs the actual network (or origin) fetch for a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Response, error)
}

// FetchFunc adapts a function to the Fetcher interface.
type FetchFunc func(ctx context.Context, url string) (Response, error)

func (f FetchFunc) Fetch(ctx context.Context, url string) (Response, error) { return f(ctx, url) }

// Notifier displays a notification at platform level. The push path is not
// preference-gated; the worker context shows what the push service delivers.
type Notifier interface {
	Display(ctx context.Context, n notify.Notification) error
}

// AppOpener opens or focuses a client window at the given path.
type AppOpener interface {
	OpenOrFocus(ctx context.Context, path string) error
}

// FavoritesFunc lists the stored favorite cities for periodic sync. It must
// never fail; implementations return an empty list on any internal error.
type FavoritesFunc func(ctx context.Context) []models.FavoriteCity

// Config wires the manager's collaborators. Store and Fetcher are required;
// the rest degrade to no-ops when nil.
type Config struct {
	Store     cache.Store
	Fetcher   Fetcher
	Notifier  Notifier
	Opener    AppOpener
	Favorites FavoritesFunc
	Logger    *zap.Logger

	// Manifest defaults to DefaultPrecacheManifest.
	Manifest []string
	// StaticNamespace and DynamicNamespace default to the current cache
	// namespace pair. Overridable so a superseding version can install its
	// own static namespace.
	StaticNamespace  string
	DynamicNamespace string
	// WeatherURL builds the refresh URL for a favorite city during periodic
	// sync. Defaults to the /api/weather coordinate query.
	WeatherURL func(lat, lon float64) string
}

// Manager is the offline cache manager.
type Manager struct {
	store      cache.Store
	fetcher    Fetcher
	notifier   Notifier
	opener     AppOpener
	favorites  FavoritesFunc
	logger     *zap.Logger
	manifest   []string
	staticNS   string
	dynamicNS  string
	weatherURL func(lat, lon float64) string
	single     *coalescer
	state      atomic.Int32
}

// NewManager builds a manager in the new (not yet installed) state.
func NewManager(cfg Config) *Manager {
	m := &Manager{
		store:      cfg.Store,
		fetcher:    cfg.Fetcher,
		notifier:   cfg.Notifier,
		opener:     cfg.Opener,
		favorites:  cfg.Favorites,
		logger:     cfg.Logger,
		manifest:   cfg.Manifest,
		staticNS:   cfg.StaticNamespace,
		dynamicNS:  cfg.DynamicNamespace,
		weatherURL: cfg.WeatherURL,
		single:     newCoalescer(),
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	if len(m.manifest) == 0 {
		m.manifest = DefaultPrecacheManifest
	}
	if m.staticNS == "" {
		m.staticNS = cache.StaticNamespace
	}
	if m.dynamicNS == "" {
		m.dynamicNS = cache.DynamicNamespace
	}
	if m.weatherURL == nil {
		m.weatherURL = func(lat, lon float64) string {
			return fmt.Sprintf("/api/weather?lat=%g&lon=%g", lat, lon)
		}
	}
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Retire marks the manager redundant (superseded by a newer version).
func (m *Manager) Retire() {
	m.state.Store(int32(StateRedundant))
}

// Install precaches the manifest into the static namespace, all-or-nothing:
// every asset is fetched first, and nothing is stored unless all of them
// succeeded. On failure the manager stays uninstalled and the previously
// active version keeps serving.
func (m *Manager) Install(ctx context.Context) error {
	m.state.Store(int32(StateInstalling))
	m.logger.Info("install: precaching app shell", zap.Int("assets", len(m.manifest)))

	entries := make([]cache.Entry, 0, len(m.manifest))
	for _, path := range m.manifest {
		resp, err := m.fetcher.Fetch(ctx, path)
		if err != nil {
			m.state.Store(int32(StateNew))
			observability.PrecacheRunsTotal.WithLabelValues("failure").Inc()
			return fmt.Errorf("precache %s: %w", path, err)
		}
		if resp.StatusCode != 200 {
			m.state.Store(int32(StateNew))
			observability.PrecacheRunsTotal.WithLabelValues("failure").Inc()
			return fmt.Errorf("precache %s: HTTP %d", path, resp.StatusCode)
		}
		entries = append(entries, entryFromResponse(path, resp))
	}

	for i, e := range entries {
		if err := m.store.Put(ctx, m.staticNS, m.manifest[i], e); err != nil {
			m.state.Store(int32(StateNew))
			observability.PrecacheRunsTotal.WithLabelValues("failure").Inc()
			return fmt.Errorf("precache store %s: %w", m.manifest[i], err)
		}
	}

	m.state.Store(int32(StateWaiting))
	observability.PrecacheRunsTotal.WithLabelValues("success").Inc()
	return nil
}

// Activate deletes every cache namespace outside the current static/dynamic
// pair and claims control immediately. The dynamic namespace always survives:
// it holds the user's live weather data, not code.
func (m *Manager) Activate(ctx context.Context) error {
	if m.State() != StateWaiting {
		return ErrNotInstalled
	}

	names, err := m.store.Namespaces(ctx)
	if err != nil {
		return fmt.Errorf("activate: list namespaces: %w", err)
	}
	for _, name := range names {
		if name == m.staticNS || name == m.dynamicNS {
			continue
		}
		m.logger.Info("activate: removing old cache", zap.String("namespace", name))
		if err := m.store.DeleteNamespace(ctx, name); err != nil {
			return fmt.Errorf("activate: delete namespace %s: %w", name, err)
		}
	}

	m.state.Store(int32(StateActive))
	m.logger.Info("activate: claimed clients")
	return nil
}

// Fetch intercepts a request by URL. API-classified requests are
// network-first with cache fallback; everything else is cache-first with
// network fall-through (and no implicit caching).
func (m *Manager) Fetch(ctx context.Context, url string) (Response, error) {
	if strings.Contains(url, apiPathMarker) {
		return m.fetchAPI(ctx, url)
	}
	return m.fetchStatic(ctx, url)
}

// fetchAPI tries the network; a 200 response is cloned into the dynamic
// namespace under the exact request URL before being returned. On network
// failure the cached entry for that key is served if present, otherwise the
// failure propagates (no synthetic empty response). Concurrent interceptions
// of the same URL share one upstream fetch.
func (m *Manager) fetchAPI(ctx context.Context, url string) (Response, error) {
	resp, shared, err := m.single.Do(ctx, url, func(fctx context.Context) (Response, error) {
		return m.fetcher.Fetch(fctx, url)
	})
	if shared {
		observability.FetchCoalescedTotal.Inc()
	}
	if err == nil {
		if resp.StatusCode == 200 {
			if putErr := m.store.Put(ctx, m.dynamicNS, url, entryFromResponse(url, resp)); putErr != nil {
				m.logger.Warn("dynamic cache store failed", zap.String("url", url), zap.Error(putErr))
			}
		}
		observability.FetchInterceptTotal.WithLabelValues("api", "network").Inc()
		return resp, nil
	}

	e, ok, cacheErr := m.store.Get(ctx, m.dynamicNS, url)
	if cacheErr != nil {
		m.logger.Warn("dynamic cache read failed", zap.String("url", url), zap.Error(cacheErr))
	}
	if ok {
		m.logger.Debug("network failed, serving cached data", zap.String("url", url), zap.Error(err))
		observability.FetchInterceptTotal.WithLabelValues("api", "cache_fallback").Inc()
		return responseFromEntry(e), nil
	}

	observability.FetchInterceptTotal.WithLabelValues("api", "error").Inc()
	return Response{}, fmt.Errorf("fetch %s: %w", url, err)
}

// fetchStatic serves a cached static entry when present; otherwise it falls
// through to the network. Only the install-time precache populates static
// entries.
func (m *Manager) fetchStatic(ctx context.Context, url string) (Response, error) {
	e, ok, err := m.store.Get(ctx, m.staticNS, url)
	if err != nil {
		m.logger.Warn("static cache read failed", zap.String("url", url), zap.Error(err))
	}
	if ok {
		observability.FetchInterceptTotal.WithLabelValues("static", "cache_hit").Inc()
		return responseFromEntry(e), nil
	}

	resp, fetchErr := m.fetcher.Fetch(ctx, url)
	if fetchErr != nil {
		observability.FetchInterceptTotal.WithLabelValues("static", "error").Inc()
		return Response{}, fmt.Errorf("fetch %s: %w", url, fetchErr)
	}
	observability.FetchInterceptTotal.WithLabelValues("static", "network").Inc()
	return resp, nil
}

// Sync handles a reconnect-triggered background sync event. The tag must be
// exactly SyncTag and within the length bound; anything else is ignored
// entirely. Every dynamic entry whose key matches the weather path is
// re-fetched; per-entry failures are logged and skipped.
func (m *Manager) Sync(ctx context.Context, tag string) error {
	if len(tag) > MaxSyncTagLength || tag != SyncTag {
		m.logger.Debug("ignoring sync event", zap.String("tag", tag))
		return nil
	}

	keys, err := m.store.Keys(ctx, m.dynamicNS)
	if err != nil {
		observability.SyncRunsTotal.WithLabelValues(tag, "error").Inc()
		return fmt.Errorf("sync: list dynamic keys: %w", err)
	}

	refreshed := 0
	for _, key := range keys {
		if !strings.Contains(key, weatherPathMarker) {
			continue
		}
		if m.refreshEntry(ctx, key, key) {
			refreshed++
		}
	}

	m.logger.Info("background sync complete", zap.Int("refreshed", refreshed))
	observability.SyncRunsTotal.WithLabelValues(tag, "success").Inc()
	return nil
}

// PeriodicSync handles the platform-scheduled recurring sync. The tag must
// be exactly PeriodicSyncTag. Fresh weather is fetched for every stored
// favorite city and stored under the resulting response URL; per-city
// failures are logged and skipped.
func (m *Manager) PeriodicSync(ctx context.Context, tag string) error {
	if tag != PeriodicSyncTag {
		m.logger.Debug("ignoring periodic sync event", zap.String("tag", tag))
		return nil
	}

	var cities []models.FavoriteCity
	if m.favorites != nil {
		cities = m.favorites(ctx)
	}

	refreshed := 0
	for _, city := range cities {
		url := m.weatherURL(city.Lat, city.Lon)
		if m.refreshEntry(ctx, url, "") {
			refreshed++
		} else {
			m.logger.Warn("periodic update failed", zap.String("city", city.Name))
		}
	}

	m.logger.Info("periodic sync complete", zap.Int("cities", len(cities)), zap.Int("refreshed", refreshed))
	observability.SyncRunsTotal.WithLabelValues(tag, "success").Inc()
	return nil
}

// refreshEntry fetches url and overwrites the dynamic entry on success. When
// key is empty the response URL is used, matching how periodic sync stores
// fresh payloads. Returns whether the entry was refreshed.
func (m *Manager) refreshEntry(ctx context.Context, url, key string) bool {
	resp, err := m.fetcher.Fetch(ctx, url)
	if err != nil || resp.StatusCode != 200 {
		observability.SyncEntriesTotal.WithLabelValues("error").Inc()
		m.logger.Warn("sync fetch failed", zap.String("url", url), zap.Error(err))
		return false
	}
	if key == "" {
		key = resp.URL
		if key == "" {
			key = url
		}
	}
	if err := m.store.Put(ctx, m.dynamicNS, key, entryFromResponse(key, resp)); err != nil {
		observability.SyncEntriesTotal.WithLabelValues("error").Inc()
		m.logger.Warn("sync store failed", zap.String("url", url), zap.Error(err))
		return false
	}
	observability.SyncEntriesTotal.WithLabelValues("success").Inc()
	return true
}

// Push surfaces an incoming push payload as a notification. The body is the
// payload text when present, else the fixed localized fallback. Failures are
// caught and logged; push delivery is fire-and-forget.
func (m *Manager) Push(ctx context.Context, payload []byte) {
	observability.PushReceivedTotal.Inc()
	body := string(payload)
	if body == "" {
		body = pushFallbackBody
	}

	n := notify.Notification{
		Title: pushTitle,
		Body:  body,
		Icon:  "/icon-any.svg",
		Badge: "/icon-maskable.svg",
		Dir:   "rtl",
		Lang:  "ar",
		Actions: []notify.Action{
			{ID: ActionOpen, Title: "فتح التطبيق", Icon: "/icon-any.svg"},
			{ID: ActionClose, Title: "إغلاق"},
		},
	}
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Display(ctx, n); err != nil {
		m.logger.Warn("push notification display failed", zap.Error(err))
	}
}

// NotificationClick closes the notification and, for the open action (or a
// plain body click), opens or focuses the app root. The close action does no
// further work.
func (m *Manager) NotificationClick(ctx context.Context, action string) {
	if action == ActionClose {
		return
	}
	if action != ActionOpen && action != "" {
		return
	}
	if m.opener == nil {
		return
	}
	if err := m.opener.OpenOrFocus(ctx, "/"); err != nil {
		m.logger.Warn("open app window failed", zap.Error(err))
	}
}

func entryFromResponse(key string, resp Response) cache.Entry {
	body := make([]byte, len(resp.Body))
	copy(body, resp.Body)
	return cache.Entry{
		URL:         key,
		StatusCode:  resp.StatusCode,
		ContentType: resp.ContentType,
		Body:        body,
		CachedAt:    nowFunc(),
	}
}

func responseFromEntry(e cache.Entry) Response {
	return Response{
		URL:         e.URL,
		StatusCode:  e.StatusCode,
		ContentType: e.ContentType,
		Body:        e.Body,
		FromCache:   true,
	}
}
