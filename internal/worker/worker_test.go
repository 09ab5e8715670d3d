package worker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/arabweather/taqs/internal/cache"
	"github.com/arabweather/taqs/internal/models"
	"github.com/arabweather/taqs/internal/notify"
)

// fakeFetcher scripts responses and failures per URL and records every call.
type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]Response
	errs      map[string]error
	calls     []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		responses: make(map[string]Response),
		errs:      make(map[string]error),
	}
}

func (f *fakeFetcher) ok(url, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[url] = Response{URL: url, StatusCode: 200, ContentType: "application/json", Body: []byte(body)}
}

func (f *fakeFetcher) status(url string, code int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[url] = Response{URL: url, StatusCode: code, Body: []byte(body)}
}

func (f *fakeFetcher) fail(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[url] = err
	delete(f.responses, url)
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if err, ok := f.errs[url]; ok {
		return Response{}, err
	}
	if resp, ok := f.responses[url]; ok {
		return resp, nil
	}
	return Response{}, errors.New("no route for " + url)
}

func (f *fakeFetcher) callCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == url {
			n++
		}
	}
	return n
}

func (f *fakeFetcher) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeNotifier struct {
	displayed []notify.Notification
	err       error
}

func (n *fakeNotifier) Display(ctx context.Context, notif notify.Notification) error {
	n.displayed = append(n.displayed, notif)
	return n.err
}

type fakeOpener struct {
	opened []string
	err    error
}

func (o *fakeOpener) OpenOrFocus(ctx context.Context, path string) error {
	o.opened = append(o.opened, path)
	return o.err
}

func precacheAll(f *fakeFetcher) {
	for _, p := range DefaultPrecacheManifest {
		f.ok(p, "asset:"+p)
	}
}

func newTestManager(f Fetcher, store cache.Store, opts ...func(*Config)) *Manager {
	cfg := Config{
		Store:   store,
		Fetcher: f,
		Logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewManager(cfg)
}

// TestInstall_PrecachesManifest verifies a successful install stores every
// manifest asset in the static namespace.
func TestInstall_PrecachesManifest(t *testing.T) {
	ctx := context.Background()
	fetcher := newFakeFetcher()
	precacheAll(fetcher)
	store := cache.NewMemoryStore()
	m := newTestManager(fetcher, store)

	if err := m.Install(ctx); err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if m.State() != StateWaiting {
		t.Errorf("State() = %v, want waiting", m.State())
	}

	keys, _ := store.Keys(ctx, cache.StaticNamespace)
	if len(keys) != len(DefaultPrecacheManifest) {
		t.Errorf("static namespace has %d entries, want %d", len(keys), len(DefaultPrecacheManifest))
	}
	e, ok, _ := store.Get(ctx, cache.StaticNamespace, "/index.html")
	if !ok || string(e.Body) != "asset:/index.html" {
		t.Errorf("precached /index.html = %+v, ok=%v", e, ok)
	}
}

// TestInstall_AllOrNothing verifies that one missing asset fails the whole
// install and leaves no partial static cache.
func TestInstall_AllOrNothing(t *testing.T) {
	tests := []struct {
		name    string
		corrupt func(*fakeFetcher)
	}{
		{"fetch error", func(f *fakeFetcher) { f.fail("/manifest.json", errors.New("offline")) }},
		{"non-200", func(f *fakeFetcher) { f.status("/manifest.json", 404, "") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			fetcher := newFakeFetcher()
			precacheAll(fetcher)
			tt.corrupt(fetcher)
			store := cache.NewMemoryStore()
			m := newTestManager(fetcher, store)

			if err := m.Install(ctx); err == nil {
				t.Fatal("Install() succeeded with a missing manifest asset")
			}
			if m.State() == StateWaiting || m.State() == StateActive {
				t.Errorf("State() = %v after failed install", m.State())
			}
			keys, _ := store.Keys(ctx, cache.StaticNamespace)
			if len(keys) != 0 {
				t.Errorf("partial static cache left after failed install: %v", keys)
			}
		})
	}
}

// TestActivate_RequiresInstall verifies the ordering guarantee.
func TestActivate_RequiresInstall(t *testing.T) {
	m := newTestManager(newFakeFetcher(), cache.NewMemoryStore())
	if err := m.Activate(context.Background()); !errors.Is(err, ErrNotInstalled) {
		t.Errorf("Activate() before install error = %v, want ErrNotInstalled", err)
	}
}

// TestActivate_DeletesStaleNamespaces verifies old static caches are removed
// wholesale while the dynamic namespace survives activation.
func TestActivate_DeletesStaleNamespaces(t *testing.T) {
	ctx := context.Background()
	fetcher := newFakeFetcher()
	precacheAll(fetcher)
	store := cache.NewMemoryStore()

	// Leftovers from a previous version plus live user data.
	_ = store.Put(ctx, "taqs-static-v0", "/index.html", cache.Entry{StatusCode: 200})
	_ = store.Put(ctx, "arabweather-pro-v1", "/", cache.Entry{StatusCode: 200})
	_ = store.Put(ctx, cache.DynamicNamespace, "/api/weather?lat=30&lon=31", cache.Entry{StatusCode: 200, Body: []byte("cairo")})

	m := newTestManager(fetcher, store)
	if err := m.Install(ctx); err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if err := m.Activate(ctx); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if m.State() != StateActive {
		t.Errorf("State() = %v, want active", m.State())
	}

	names, _ := store.Namespaces(ctx)
	for _, name := range names {
		if name != cache.StaticNamespace && name != cache.DynamicNamespace {
			t.Errorf("stale namespace %q survived activation", name)
		}
	}
	if _, ok, _ := store.Get(ctx, cache.DynamicNamespace, "/api/weather?lat=30&lon=31"); !ok {
		t.Error("dynamic entry lost during activation")
	}
}

// TestFetch_APINetworkFirst verifies a live 200 is returned and cloned into
// the dynamic cache under the exact request URL.
func TestFetch_APINetworkFirst(t *testing.T) {
	ctx := context.Background()
	fetcher := newFakeFetcher()
	url := "/api/weather?lat=30.04&lon=31.24"
	fetcher.ok(url, `{"current":{"temp":35}}`)
	store := cache.NewMemoryStore()
	m := newTestManager(fetcher, store)

	resp, err := m.Fetch(ctx, url)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if resp.FromCache {
		t.Error("live response marked FromCache")
	}
	if string(resp.Body) != `{"current":{"temp":35}}` {
		t.Errorf("Fetch() body = %s", resp.Body)
	}

	e, ok, _ := store.Get(ctx, cache.DynamicNamespace, url)
	if !ok || string(e.Body) != `{"current":{"temp":35}}` {
		t.Errorf("dynamic cache entry = %+v, ok=%v", e, ok)
	}
}

// TestFetch_APINon200NotCached verifies only 200 responses populate the
// cache; the live response still reaches the caller.
func TestFetch_APINon200NotCached(t *testing.T) {
	ctx := context.Background()
	fetcher := newFakeFetcher()
	url := "/api/weather?lat=0&lon=0"
	fetcher.status(url, 400, `{"error":"bad coords"}`)
	store := cache.NewMemoryStore()
	m := newTestManager(fetcher, store)

	resp, err := m.Fetch(ctx, url)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if resp.StatusCode != 400 {
		t.Errorf("Fetch() status = %d, want 400", resp.StatusCode)
	}
	if _, ok, _ := store.Get(ctx, cache.DynamicNamespace, url); ok {
		t.Error("non-200 response was cached")
	}
}

// TestFetch_APIFallbackToCache verifies a network failure serves the
// last-known-good cached response unchanged.
func TestFetch_APIFallbackToCache(t *testing.T) {
	ctx := context.Background()
	fetcher := newFakeFetcher()
	url := "/api/weather?lat=30&lon=31"
	fetcher.ok(url, "R")
	store := cache.NewMemoryStore()
	m := newTestManager(fetcher, store)

	if _, err := m.Fetch(ctx, url); err != nil {
		t.Fatalf("priming Fetch() error = %v", err)
	}

	fetcher.fail(url, errors.New("connection refused"))
	resp, err := m.Fetch(ctx, url)
	if err != nil {
		t.Fatalf("Fetch() with cache fallback error = %v", err)
	}
	if !resp.FromCache {
		t.Error("fallback response not marked FromCache")
	}
	if string(resp.Body) != "R" {
		t.Errorf("fallback body = %q, want R", resp.Body)
	}
}

// TestFetch_APIFailureNoCache verifies the failure propagates when no entry
// exists (no synthetic empty response).
func TestFetch_APIFailureNoCache(t *testing.T) {
	fetcher := newFakeFetcher()
	url := "/api/weather?lat=1&lon=1"
	netErr := errors.New("offline")
	fetcher.fail(url, netErr)
	m := newTestManager(fetcher, cache.NewMemoryStore())

	if _, err := m.Fetch(context.Background(), url); !errors.Is(err, netErr) {
		t.Errorf("Fetch() error = %v, want wrapped %v", err, netErr)
	}
}

// TestFetch_APILatestWriteWins verifies a subsequent 200 overwrites the
// cached entry.
func TestFetch_APILatestWriteWins(t *testing.T) {
	ctx := context.Background()
	fetcher := newFakeFetcher()
	url := "/api/weather?lat=30&lon=31"
	store := cache.NewMemoryStore()
	m := newTestManager(fetcher, store)

	fetcher.ok(url, "R1")
	_, _ = m.Fetch(ctx, url)
	fetcher.ok(url, "R2")
	_, _ = m.Fetch(ctx, url)

	e, ok, _ := store.Get(ctx, cache.DynamicNamespace, url)
	if !ok || string(e.Body) != "R2" {
		t.Errorf("cached body = %q, want R2", e.Body)
	}

	// A later failure still serves R2, not R1.
	fetcher.fail(url, errors.New("offline"))
	resp, err := m.Fetch(ctx, url)
	if err != nil || string(resp.Body) != "R2" {
		t.Errorf("fallback after overwrite = %q err=%v, want R2", resp.Body, err)
	}
}

// TestFetch_StaticCacheFirst verifies precached assets are served without
// touching the network, and misses fall through without being cached.
func TestFetch_StaticCacheFirst(t *testing.T) {
	ctx := context.Background()
	fetcher := newFakeFetcher()
	precacheAll(fetcher)
	store := cache.NewMemoryStore()
	m := newTestManager(fetcher, store)

	if err := m.Install(ctx); err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	installCalls := fetcher.totalCalls()

	resp, err := m.Fetch(ctx, "/index.html")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !resp.FromCache {
		t.Error("precached asset not served from cache")
	}
	if fetcher.totalCalls() != installCalls {
		t.Error("cache-first hit touched the network")
	}

	// Miss: falls through to network, result not implicitly cached.
	fetcher.ok("/extra.css", "body{}")
	resp, err = m.Fetch(ctx, "/extra.css")
	if err != nil || resp.FromCache {
		t.Fatalf("fall-through Fetch() = %+v err=%v", resp, err)
	}
	if _, ok, _ := store.Get(ctx, cache.StaticNamespace, "/extra.css"); ok {
		t.Error("fall-through response was implicitly cached")
	}
}

// TestSync_RefreshesWeatherEntries verifies the valid tag refreshes every
// weather-path entry and skips per-entry failures without aborting.
func TestSync_RefreshesWeatherEntries(t *testing.T) {
	ctx := context.Background()
	fetcher := newFakeFetcher()
	store := cache.NewMemoryStore()
	m := newTestManager(fetcher, store)

	k1 := "/api/weather?lat=30&lon=31"
	k2 := "/api/weather?lat=24&lon=46"
	k3 := "/api/cities/search?q=cairo" // dynamic but not a weather key
	_ = store.Put(ctx, cache.DynamicNamespace, k1, cache.Entry{StatusCode: 200, Body: []byte("old1")})
	_ = store.Put(ctx, cache.DynamicNamespace, k2, cache.Entry{StatusCode: 200, Body: []byte("old2")})
	_ = store.Put(ctx, cache.DynamicNamespace, k3, cache.Entry{StatusCode: 200, Body: []byte("cities")})

	fetcher.ok(k1, "new1")
	fetcher.fail(k2, errors.New("still offline"))

	if err := m.Sync(ctx, SyncTag); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	e1, _, _ := store.Get(ctx, cache.DynamicNamespace, k1)
	if string(e1.Body) != "new1" {
		t.Errorf("entry %s = %q, want refreshed", k1, e1.Body)
	}
	e2, _, _ := store.Get(ctx, cache.DynamicNamespace, k2)
	if string(e2.Body) != "old2" {
		t.Errorf("failed refresh corrupted entry: %q", e2.Body)
	}
	if fetcher.callCount(k3) != 0 {
		t.Error("non-weather dynamic entry was fetched during sync")
	}
}

// TestSync_TagValidation verifies invalid tags are ignored entirely: no
// fetch attempted, no cache mutation.
func TestSync_TagValidation(t *testing.T) {
	tests := []struct {
		name string
		tag  string
	}{
		{"wrong tag", "other-sync"},
		{"too long", "this-tag-is-too-long-to-be-valid"},
		{"empty", ""},
		{"periodic tag on sync", PeriodicSyncTag},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			fetcher := newFakeFetcher()
			store := cache.NewMemoryStore()
			m := newTestManager(fetcher, store)

			key := "/api/weather?lat=30&lon=31"
			_ = store.Put(ctx, cache.DynamicNamespace, key, cache.Entry{StatusCode: 200, Body: []byte("old")})
			fetcher.ok(key, "new")

			if err := m.Sync(ctx, tt.tag); err != nil {
				t.Fatalf("Sync(%q) error = %v", tt.tag, err)
			}
			if fetcher.totalCalls() != 0 {
				t.Errorf("Sync(%q) attempted %d fetches, want 0", tt.tag, fetcher.totalCalls())
			}
			e, _, _ := store.Get(ctx, cache.DynamicNamespace, key)
			if string(e.Body) != "old" {
				t.Errorf("Sync(%q) mutated the cache", tt.tag)
			}
		})
	}
}

// TestSync_ValidTagLength documents that the accepted tag passes both checks.
func TestSync_ValidTagLength(t *testing.T) {
	if len(SyncTag) > MaxSyncTagLength {
		t.Fatalf("SyncTag %q exceeds max length %d", SyncTag, MaxSyncTagLength)
	}
}

// TestPeriodicSync_RefreshesFavorites verifies fresh weather is fetched per
// favorite city and stored under the response URL, with per-city failures
// skipped.
func TestPeriodicSync_RefreshesFavorites(t *testing.T) {
	ctx := context.Background()
	fetcher := newFakeFetcher()
	store := cache.NewMemoryStore()

	cities := []models.FavoriteCity{
		{Name: "القاهرة", Lat: 30.04, Lon: 31.24},
		{Name: "الرياض", Lat: 24.71, Lon: 46.68},
	}
	m := newTestManager(fetcher, store, func(c *Config) {
		c.Favorites = func(ctx context.Context) []models.FavoriteCity { return cities }
	})

	u1 := "/api/weather?lat=30.04&lon=31.24"
	u2 := "/api/weather?lat=24.71&lon=46.68"
	fetcher.ok(u1, "cairo")
	fetcher.fail(u2, errors.New("timeout"))

	if err := m.PeriodicSync(ctx, PeriodicSyncTag); err != nil {
		t.Fatalf("PeriodicSync() error = %v", err)
	}

	e, ok, _ := store.Get(ctx, cache.DynamicNamespace, u1)
	if !ok || string(e.Body) != "cairo" {
		t.Errorf("favorite not refreshed: %+v ok=%v", e, ok)
	}
	if _, ok, _ := store.Get(ctx, cache.DynamicNamespace, u2); ok {
		t.Error("failed city produced a cache entry")
	}
}

// TestPeriodicSync_TagAndMissingAccessor verifies the tag gate and that a
// nil favorites accessor degrades to an empty list.
func TestPeriodicSync_TagAndMissingAccessor(t *testing.T) {
	ctx := context.Background()
	fetcher := newFakeFetcher()
	m := newTestManager(fetcher, cache.NewMemoryStore())

	if err := m.PeriodicSync(ctx, "weather-sync"); err != nil {
		t.Fatalf("PeriodicSync(wrong tag) error = %v", err)
	}
	if err := m.PeriodicSync(ctx, PeriodicSyncTag); err != nil {
		t.Fatalf("PeriodicSync(no accessor) error = %v", err)
	}
	if fetcher.totalCalls() != 0 {
		t.Errorf("fetches attempted = %d, want 0", fetcher.totalCalls())
	}
}

// TestPush_Notification verifies payload text, the localized fallback for an
// empty payload, and the fixed open/close actions.
func TestPush_Notification(t *testing.T) {
	ctx := context.Background()
	notifier := &fakeNotifier{}
	m := newTestManager(newFakeFetcher(), cache.NewMemoryStore(), func(c *Config) {
		c.Notifier = notifier
	})

	m.Push(ctx, []byte("أمطار غزيرة متوقعة"))
	m.Push(ctx, nil)

	if len(notifier.displayed) != 2 {
		t.Fatalf("displayed %d notifications, want 2", len(notifier.displayed))
	}
	if notifier.displayed[0].Body != "أمطار غزيرة متوقعة" {
		t.Errorf("push body = %q", notifier.displayed[0].Body)
	}
	if notifier.displayed[1].Body != "تحديث جديد للطقس متاح" {
		t.Errorf("fallback body = %q", notifier.displayed[1].Body)
	}

	n := notifier.displayed[0]
	if len(n.Actions) != 2 || n.Actions[0].ID != ActionOpen || n.Actions[1].ID != ActionClose {
		t.Errorf("push actions = %+v, want open/close", n.Actions)
	}
}

// TestPush_DisplayFailureCaught verifies a notifier failure is swallowed.
func TestPush_DisplayFailureCaught(t *testing.T) {
	notifier := &fakeNotifier{err: errors.New("display broken")}
	m := newTestManager(newFakeFetcher(), cache.NewMemoryStore(), func(c *Config) {
		c.Notifier = notifier
	})
	m.Push(context.Background(), []byte("x")) // must not panic or propagate
}

// TestNotificationClick covers the open/default/close routing.
func TestNotificationClick(t *testing.T) {
	tests := []struct {
		action   string
		wantOpen bool
	}{
		{ActionOpen, true},
		{"", true}, // body click
		{ActionClose, false},
		{"unknown", false},
	}
	for _, tt := range tests {
		opener := &fakeOpener{}
		m := newTestManager(newFakeFetcher(), cache.NewMemoryStore(), func(c *Config) {
			c.Opener = opener
		})
		m.NotificationClick(context.Background(), tt.action)
		if got := len(opener.opened) == 1; got != tt.wantOpen {
			t.Errorf("NotificationClick(%q) opened=%v, want %v", tt.action, got, tt.wantOpen)
		}
		if tt.wantOpen && opener.opened[0] != "/" {
			t.Errorf("NotificationClick(%q) opened %q, want /", tt.action, opener.opened[0])
		}
	}
}

// TestDispatch routes events by kind and rejects unknown kinds.
func TestDispatch(t *testing.T) {
	ctx := context.Background()
	fetcher := newFakeFetcher()
	fetcher.ok("/api/weather?lat=1&lon=1", "live")
	m := newTestManager(fetcher, cache.NewMemoryStore())

	resp, err := m.Dispatch(ctx, Event{Kind: EventFetch, URL: "/api/weather?lat=1&lon=1"})
	if err != nil || string(resp.Body) != "live" {
		t.Errorf("Dispatch(fetch) = %q err=%v", resp.Body, err)
	}

	if _, err := m.Dispatch(ctx, Event{Kind: EventSync, Tag: "nope"}); err != nil {
		t.Errorf("Dispatch(sync ignored tag) error = %v", err)
	}

	if _, err := m.Dispatch(ctx, Event{Kind: "unknown"}); err == nil {
		t.Error("Dispatch(unknown) did not error")
	}
}

// TestConcurrentFetches verifies interceptions are independent; the shared
// store tolerates unordered concurrent reads and writes.
func TestConcurrentFetches(t *testing.T) {
	ctx := context.Background()
	fetcher := newFakeFetcher()
	store := cache.NewMemoryStore()
	m := newTestManager(fetcher, store)

	urls := []string{
		"/api/weather?lat=1&lon=1",
		"/api/weather?lat=2&lon=2",
		"/api/weather?lat=3&lon=3",
	}
	for _, u := range urls {
		fetcher.ok(u, "body:"+u)
	}

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		u := urls[i%len(urls)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Fetch(ctx, u); err != nil {
				t.Errorf("concurrent Fetch(%s) error = %v", u, err)
			}
		}()
	}
	wg.Wait()

	for _, u := range urls {
		e, ok, _ := store.Get(ctx, cache.DynamicNamespace, u)
		if !ok || string(e.Body) != "body:"+u {
			t.Errorf("entry %s = %+v ok=%v", u, e, ok)
		}
	}
}
