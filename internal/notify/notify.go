// Package notify gates local notifications and push subscriptions behind
// user preference, platform capability, and permission state. Everything here
// is best-effort UX: failures are logged and converted to no-op results,
// never raised to the caller.
package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/arabweather/taqs/internal/observability"
	"github.com/arabweather/taqs/internal/prefs"
)

// Permission is the three-way outcome of a permission prompt.
type Permission int

const (
	PermissionUnsupported Permission = iota
	PermissionDenied
	PermissionGranted
)

func (p Permission) String() string {
	switch p {
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	default:
		return "unsupported"
	}
}

// Action is one tappable button on a notification.
type Action struct {
	ID    string `json:"action"`
	Title string `json:"title"`
	Icon  string `json:"icon,omitempty"`
}

// Notification is a platform-agnostic notification payload.
type Notification struct {
	Title   string   `json:"title"`
	Body    string   `json:"body"`
	Icon    string   `json:"icon,omitempty"`
	Badge   string   `json:"badge,omitempty"`
	Tag     string   `json:"tag,omitempty"`
	Dir     string   `json:"dir,omitempty"` // rtl or ltr
	Lang    string   `json:"lang,omitempty"`
	Actions []Action `json:"actions,omitempty"`
}

// PushSubscription is the handle returned by the platform push service.
type PushSubscription struct {
	Endpoint string            `json:"endpoint"`
	Keys     map[string]string `json:"keys,omitempty"`
}

// Platform is the notification capability surface of the host environment.
// Implementations must treat Display as fire-and-forget.
type Platform interface {
	Supported() bool
	RequestPermission(ctx context.Context) (Permission, error)
	Display(ctx context.Context, n Notification) error
	PushSupported() bool
	SubscribePush(ctx context.Context, serverKey string) (*PushSubscription, error)
}

// Options are the caller-adjustable parts of Show. Zero values are filled
// from the current preferences (direction and language) or left unset.
type Options struct {
	Body    string
	Icon    string
	Tag     string
	Dir     string
	Lang    string
	Actions []Action
}

// Gateway mediates between preference state, platform capability, and
// permission state. Permission is prompted at most once and cached.
type Gateway struct {
	platform  Platform
	prefs     *prefs.Store
	logger    *zap.Logger
	serverKey string

	mu       sync.Mutex
	prompted bool
	perm     Permission
}

// NewGateway wires the gateway to an injected platform and preferences store.
// serverKey identifies this server to the push service (VAPID public key).
func NewGateway(platform Platform, prefsStore *prefs.Store, serverKey string, logger *zap.Logger) *Gateway {
	return &Gateway{
		platform:  platform,
		prefs:     prefsStore,
		logger:    logger,
		serverKey: serverKey,
		perm:      PermissionDenied,
	}
}

// RequestPermission prompts the platform once and caches the outcome.
// Returns PermissionUnsupported without prompting when the platform has no
// notification capability; prompt errors become PermissionDenied.
func (g *Gateway) RequestPermission(ctx context.Context) Permission {
	if !g.platform.Supported() {
		return PermissionUnsupported
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.prompted {
		return g.perm
	}

	perm, err := g.platform.RequestPermission(ctx)
	if err != nil {
		g.logger.Warn("notification permission prompt failed", zap.Error(err))
		perm = PermissionDenied
	}
	g.prompted = true
	g.perm = perm
	return perm
}

// Permission returns the cached permission state.
func (g *Gateway) Permission() Permission {
	if !g.platform.Supported() {
		return PermissionUnsupported
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.perm
}

// Show displays a notification, silently doing nothing unless the
// notifications preference is on, the platform is capable, and permission was
// granted. Direction and language default from the current language
// preference unless the caller overrides them.
func (g *Gateway) Show(ctx context.Context, title string, opts Options) {
	p := g.prefs.Current()
	if !p.Notifications || !g.platform.Supported() || g.Permission() != PermissionGranted {
		return
	}

	n := Notification{
		Title:   title,
		Body:    opts.Body,
		Icon:    opts.Icon,
		Tag:     opts.Tag,
		Dir:     opts.Dir,
		Lang:    opts.Lang,
		Actions: opts.Actions,
	}
	if n.Icon == "" {
		n.Icon = "/icon-any.svg"
	}
	if n.Tag == "" {
		n.Tag = "weather-app"
	}
	if n.Dir == "" {
		n.Dir = p.Language.Direction()
	}
	if n.Lang == "" {
		n.Lang = string(p.Language)
	}

	if err := g.platform.Display(ctx, n); err != nil {
		g.logger.Warn("notification display failed", zap.String("title", title), zap.Error(err))
		return
	}
	observability.NotificationsShownTotal.Inc()
}

// SubscribeToPush negotiates a push subscription keyed by the configured
// server key. Returns nil unless push capability, notification capability,
// and granted permission all hold; subscription failures are logged, not
// raised.
func (g *Gateway) SubscribeToPush(ctx context.Context) *PushSubscription {
	if !g.platform.Supported() || !g.platform.PushSupported() {
		return nil
	}
	if g.Permission() != PermissionGranted {
		return nil
	}

	sub, err := g.platform.SubscribePush(ctx, g.serverKey)
	if err != nil {
		g.logger.Warn("push subscription failed", zap.Error(err))
		return nil
	}
	return sub
}
