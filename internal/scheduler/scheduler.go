// Package scheduler drives the recurring auto-refresh cycle. It is a two
// state machine: Idle (no timer) and Running (timer armed at the configured
// cadence). Preference changes rearm the timer from the moment of change.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arabweather/taqs/internal/notify"
	"github.com/arabweather/taqs/internal/observability"
	"github.com/arabweather/taqs/internal/prefs"
)

// RefreshFunc is invoked once per tick. A failed tick never stops the
// schedule; the next scheduled tick is the de facto retry.
type RefreshFunc func(ctx context.Context) error

// Scheduler arms and rearms the refresh timer from preference state.
type Scheduler struct {
	refresh RefreshFunc
	gateway *notify.Gateway
	prefs   *prefs.Store
	logger  *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	enabled bool
	period  time.Duration
}

// New wires the scheduler to the preferences store and applies the current
// settings, so an enabled auto-refresh starts ticking immediately.
func New(refresh RefreshFunc, gateway *notify.Gateway, prefsStore *prefs.Store, logger *zap.Logger) *Scheduler {
	s := &Scheduler{
		refresh: refresh,
		gateway: gateway,
		prefs:   prefsStore,
		logger:  logger,
	}
	prefsStore.Subscribe(s.Apply)
	s.Apply(prefsStore.Current())
	return s
}

// Apply transitions the state machine for the given settings snapshot.
// Enabling arms a timer; disabling cancels it; an interval change while
// running cancels the old timer and arms a fresh one immediately, so the
// next tick lands one full new period after the change. Unrelated preference
// changes leave the schedule untouched.
func (s *Scheduler) Apply(p prefs.Preferences) {
	enabled := p.AutoRefresh && p.RefreshInterval > 0
	s.arm(enabled, p.RefreshPeriod())
}

func (s *Scheduler) arm(enabled bool, period time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if enabled == s.enabled && (!enabled || period == s.period) {
		return
	}

	s.stopLocked()
	s.enabled = enabled
	s.period = period
	if !enabled {
		s.logger.Info("auto-refresh disabled")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.run(ctx, period)
	s.logger.Info("auto-refresh armed", zap.Duration("period", period))
}

// Stop cancels any active timer and waits for the tick goroutine to exit.
// Guaranteed release: no orphaned timers survive teardown.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopLocked()
	s.enabled = false
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) stopLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Running reports whether a timer is currently armed.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Scheduler) run(ctx context.Context, period time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one refresh cycle: the callback exactly once, then the fixed
// "data refreshed" notification when the notifications preference is on.
func (s *Scheduler) tick(ctx context.Context) {
	if err := s.refresh(ctx); err != nil {
		observability.SchedulerTicksTotal.WithLabelValues("error").Inc()
		s.logger.Warn("auto-refresh tick failed", zap.Error(err))
	} else {
		observability.SchedulerTicksTotal.WithLabelValues("success").Inc()
	}

	p := s.prefs.Current()
	if !p.Notifications {
		return
	}
	title, body := refreshNotificationText(p.Language)
	s.gateway.Show(ctx, title, notify.Options{Body: body, Tag: "weather-refresh"})
}

func refreshNotificationText(lang prefs.Language) (title, body string) {
	if lang == prefs.English {
		return "Weather data updated", "Weather data was refreshed automatically"
	}
	return "تم تحديث بيانات الطقس", "تم تحديث بيانات الطقس تلقائياً"
}
