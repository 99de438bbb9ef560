package traffic

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func newFakeTracker() (*Tracker, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClock()
	return NewTracker(clock), clock
}

// TestRequestCount_Empty verifies that RequestCount returns 0 when no
// requests have been recorded within the time window.
func TestRequestCount_Empty(t *testing.T) {
	tr, _ := newFakeTracker()
	if n := tr.RequestCount(time.Minute); n != 0 {
		t.Errorf("RequestCount() = %d, want 0", n)
	}
}

// TestRecordDenied_AndCounts verifies that denials count toward load and rejects.
func TestRecordDenied_AndCounts(t *testing.T) {
	tr, _ := newFakeTracker()
	tr.RecordDenied()
	tr.RecordDenied()
	tr.RecordSuccess()
	if n := tr.DenialCount(time.Minute); n != 2 {
		t.Errorf("DenialCount() = %d, want 2", n)
	}
	if n := tr.RequestCount(time.Minute); n != 3 {
		t.Errorf("RequestCount() = %d, want 3", n)
	}
}

// TestErrorRate_DeniedExcluded verifies that ErrorRate excludes denied
// requests, only counting successful and error requests.
func TestErrorRate_DeniedExcluded(t *testing.T) {
	tr, _ := newFakeTracker()
	tr.RecordSuccess()
	tr.RecordError()
	tr.RecordDenied()
	errors, total := tr.ErrorRate(time.Minute)
	if errors != 1 || total != 2 {
		t.Errorf("ErrorRate() = (%d, %d), want (1, 2)", errors, total)
	}
}

// TestWindow_Expires verifies outcomes leave the window as the clock advances.
func TestWindow_Expires(t *testing.T) {
	tr, clock := newFakeTracker()
	tr.RecordError()
	clock.Advance(30 * time.Second)
	tr.RecordSuccess()

	if n := tr.RequestCount(time.Minute); n != 2 {
		t.Errorf("RequestCount() = %d, want 2", n)
	}
	clock.Advance(45 * time.Second)
	errors, total := tr.ErrorRate(time.Minute)
	if errors != 0 || total != 1 {
		t.Errorf("ErrorRate() = (%d, %d), want (0, 1)", errors, total)
	}
}

// TestPrune_DropsOldOutcomes verifies entries older than retention are removed on write.
func TestPrune_DropsOldOutcomes(t *testing.T) {
	tr, clock := newFakeTracker()
	tr.RecordSuccess()
	clock.Advance(retention + time.Second)
	tr.RecordSuccess()

	tr.mu.Lock()
	n := len(tr.successTimes)
	tr.mu.Unlock()
	if n != 1 {
		t.Errorf("len(successTimes) = %d, want 1", n)
	}
}

func TestOverloaded(t *testing.T) {
	tr, _ := newFakeTracker()
	for i := 0; i < 5; i++ {
		tr.RecordSuccess()
	}
	if tr.Overloaded(time.Minute, 5) {
		t.Error("Overloaded(5) = true at exactly threshold")
	}
	tr.RecordDenied()
	if !tr.Overloaded(time.Minute, 5) {
		t.Error("Overloaded(5) = false above threshold")
	}
	if tr.Overloaded(time.Minute, 0) {
		t.Error("Overloaded(0) should be disabled")
	}
}

func TestDegraded(t *testing.T) {
	tests := []struct {
		name      string
		successes int
		errors    int
		minReq    int
		want      bool
	}{
		{"no traffic", 0, 0, 1, false},
		{"below rate", 9, 1, 1, false},
		{"at rate", 8, 2, 1, true},
		{"too few requests", 0, 3, 5, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, _ := newFakeTracker()
			for i := 0; i < tt.successes; i++ {
				tr.RecordSuccess()
			}
			for i := 0; i < tt.errors; i++ {
				tr.RecordError()
			}
			if got := tr.Degraded(time.Minute, 0.2, tt.minReq); got != tt.want {
				t.Errorf("Degraded() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestDefaultTracker verifies the package-level helpers share one tracker.
func TestDefaultTracker(t *testing.T) {
	clock := clockwork.NewFakeClock()
	SetClock(clock)
	defer SetClock(clockwork.NewRealClock())

	RecordSuccess()
	RecordError()
	RecordDenied()
	if n := RequestCount(time.Minute); n != 3 {
		t.Errorf("RequestCount() = %d, want 3", n)
	}
	if n := DenialCount(time.Minute); n != 1 {
		t.Errorf("DenialCount() = %d, want 1", n)
	}
	if !Degraded(time.Minute, 0.5, 1) {
		t.Error("Degraded() = false, want true at 50% errors")
	}
	if !Overloaded(time.Minute, 2) {
		t.Error("Overloaded() = false, want true")
	}
	Reset()
	if n := RequestCount(time.Minute); n != 0 {
		t.Errorf("RequestCount() after Reset = %d, want 0", n)
	}
}
