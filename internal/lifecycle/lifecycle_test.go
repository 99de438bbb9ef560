package lifecycle

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kjstillabower/crop-advisory-service/internal/traffic"
)

func TestIsShuttingDown_DefaultFalse(t *testing.T) {
	SetShuttingDown(false)
	if IsShuttingDown() {
		t.Error("IsShuttingDown() = true, want false by default")
	}
}

func TestSetShuttingDown_True(t *testing.T) {
	SetShuttingDown(true)
	defer SetShuttingDown(false)
	if !IsShuttingDown() {
		t.Error("IsShuttingDown() = false after SetShuttingDown(true), want true")
	}
}

func TestSetShuttingDown_False(t *testing.T) {
	SetShuttingDown(true)
	SetShuttingDown(false)
	if IsShuttingDown() {
		t.Error("IsShuttingDown() = true after SetShuttingDown(false), want false")
	}
}

func TestStatus_Precedence(t *testing.T) {
	clock := clockwork.NewFakeClock()
	traffic.SetClock(clock)
	defer traffic.SetClock(clockwork.NewRealClock())

	th := Thresholds{
		OverloadWindow:      time.Minute,
		OverloadThreshold:   3,
		DegradedWindow:      time.Minute,
		DegradedErrorRate:   0.5,
		DegradedMinRequests: 2,
	}
	if got := Status(th); got != StatusHealthy {
		t.Errorf("Status() = %q, want healthy", got)
	}

	traffic.RecordError()
	traffic.RecordError()
	if got := Status(th); got != StatusDegraded {
		t.Errorf("Status() = %q, want degraded", got)
	}

	traffic.RecordDenied()
	traffic.RecordDenied()
	if got := Status(th); got != StatusOverloaded {
		t.Errorf("Status() = %q, want overloaded", got)
	}

	SetShuttingDown(true)
	defer SetShuttingDown(false)
	if got := Status(th); got != StatusShuttingDown {
		t.Errorf("Status() = %q, want shutting-down", got)
	}
}
