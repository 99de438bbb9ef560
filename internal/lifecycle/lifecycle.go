// Package lifecycle owns process-level state reported by /health.
package lifecycle

import (
	"sync/atomic"
	"time"

	"github.com/kjstillabower/crop-advisory-service/internal/traffic"
)

// Health status values, in precedence order.
const (
	StatusShuttingDown = "shutting-down"
	StatusOverloaded   = "overloaded"
	StatusDegraded     = "degraded"
	StatusHealthy      = "healthy"
)

var shuttingDown atomic.Bool

// SetShuttingDown sets the shutdown flag. Call when SIGTERM/SIGINT received.
// Health handler returns 503 with status shutting-down while true.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown returns true if the process is draining and should not receive new traffic.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}

// Thresholds configures when traffic turns the status from healthy.
type Thresholds struct {
	OverloadWindow      time.Duration
	OverloadThreshold   int // requests per window; 0 disables
	DegradedWindow      time.Duration
	DegradedErrorRate   float64 // 0 disables
	DegradedMinRequests int
}

// Status resolves the current health status. Shutting down wins over
// overload, which wins over degraded.
func Status(th Thresholds) string {
	switch {
	case IsShuttingDown():
		return StatusShuttingDown
	case traffic.Overloaded(th.OverloadWindow, th.OverloadThreshold):
		return StatusOverloaded
	case traffic.Degraded(th.DegradedWindow, th.DegradedErrorRate, th.DegradedMinRequests):
		return StatusDegraded
	default:
		return StatusHealthy
	}
}
