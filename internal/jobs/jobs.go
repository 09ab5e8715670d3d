// Package jobs runs the background sync schedule: a recurring favorite-city
// refresh and an optional one-shot sync pass at startup, standing in for the
// platform's periodic sync and reconnect triggers.
package jobs

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/arabweather/taqs/internal/worker"
)

// Runner drives the worker's sync events on a schedule.
type Runner struct {
	scheduler *gocron.Scheduler
	worker    *worker.Manager
	interval  time.Duration
	onStart   bool
	logger    *zap.Logger
}

// New creates a Runner. interval is the periodic refresh cadence; onStart
// runs one reconnect-style sync pass immediately after Start.
func New(workerMgr *worker.Manager, interval time.Duration, onStart bool, logger *zap.Logger) *Runner {
	return &Runner{
		scheduler: gocron.NewScheduler(time.UTC),
		worker:    workerMgr,
		interval:  interval,
		onStart:   onStart,
		logger:    logger,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
func (r *Runner) Start() error {
	minutes := int(r.interval.Minutes())
	if minutes <= 0 {
		minutes = 30
	}

	_, err := r.scheduler.Every(minutes).Minutes().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		r.logger.Info("running periodic favorites refresh")
		if err := r.worker.PeriodicSync(ctx, worker.PeriodicSyncTag); err != nil {
			r.logger.Warn("periodic favorites refresh failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	r.scheduler.StartAsync()

	if r.onStart {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			r.logger.Info("running startup sync pass")
			if err := r.worker.Sync(ctx, worker.SyncTag); err != nil {
				r.logger.Warn("startup sync pass failed", zap.Error(err))
			}
		}()
	}
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (r *Runner) Stop() {
	if r.scheduler != nil {
		r.scheduler.Stop()
	}
}
