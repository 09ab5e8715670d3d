// Package lifecycle holds the process-wide drain flag the health endpoint
// consults during graceful shutdown.
package lifecycle

import "sync/atomic"

var shuttingDown atomic.Bool

// SetShuttingDown flips the drain flag. main sets it on SIGINT/SIGTERM so
// health turns 503 and load balancers stop routing here while in-flight
// requests finish.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown reports whether the process is draining.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}
