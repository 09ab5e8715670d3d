package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LogPlatform is the default Platform: notifications are rendered as
// structured log lines and, when a push endpoint is configured, forwarded to
// it as a JSON POST. Real OS or browser delivery is an external collaborator
// behind the same interface.
type LogPlatform struct {
	logger       *zap.Logger
	pushCapable  bool
	pushEndpoint string
	client       *http.Client
}

// NewLogPlatform returns a platform that logs notifications. pushEndpoint
// may be empty, in which case push capability is reported as absent and no
// forwarding happens.
func NewLogPlatform(logger *zap.Logger, pushEndpoint string) *LogPlatform {
	return &LogPlatform{
		logger:       logger,
		pushCapable:  pushEndpoint != "",
		pushEndpoint: pushEndpoint,
		client:       &http.Client{Timeout: 5 * time.Second},
	}
}

// Supported always holds for the logging platform.
func (p *LogPlatform) Supported() bool { return true }

// RequestPermission grants immediately; there is no interactive prompt.
func (p *LogPlatform) RequestPermission(ctx context.Context) (Permission, error) {
	return PermissionGranted, nil
}

// Display renders the notification as a log line and forwards it to the
// configured endpoint. Forwarding is best-effort: a delivery failure is
// logged and never fails the display.
func (p *LogPlatform) Display(ctx context.Context, n Notification) error {
	p.logger.Info("notification",
		zap.String("title", n.Title),
		zap.String("body", n.Body),
		zap.String("dir", n.Dir),
		zap.String("lang", n.Lang),
		zap.String("tag", n.Tag),
		zap.Int("actions", len(n.Actions)),
	)
	if p.pushEndpoint != "" {
		if err := p.forward(ctx, n); err != nil {
			p.logger.Warn("notification endpoint delivery failed", zap.Error(err))
		}
	}
	return nil
}

// forward POSTs the notification payload to the configured endpoint.
func (p *LogPlatform) forward(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.pushEndpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("post notification: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// PushSupported reports whether a push endpoint was configured.
func (p *LogPlatform) PushSupported() bool { return p.pushCapable }

// SubscribePush synthesizes a per-process subscription handle under the
// configured endpoint.
func (p *LogPlatform) SubscribePush(ctx context.Context, serverKey string) (*PushSubscription, error) {
	return &PushSubscription{
		Endpoint: p.pushEndpoint + "/" + uuid.New().String(),
		Keys:     map[string]string{"server": serverKey},
	}, nil
}
