package service

import (
	"sync"
	"testing"
)

// TestMissTracker_BeginEnd verifies that Begin returns the concurrent count per
// key and that the release func decrements it until the key is removed.
func TestMissTracker_BeginEnd(t *testing.T) {
	mt := newMissTracker()
	key := "new delhi"

	n1, done1 := mt.Begin(key)
	if n1 != 1 {
		t.Errorf("Begin first = %d, want 1", n1)
	}
	n2, done2 := mt.Begin(key)
	if n2 != 2 {
		t.Errorf("Begin second = %d, want 2", n2)
	}

	done1()
	done1() // idempotent
	if got := mt.Active(key); got != 1 {
		t.Errorf("Active after one release = %d, want 1", got)
	}
	done2()
	if got := mt.Active(key); got != 0 {
		t.Errorf("Active after both releases = %d, want 0", got)
	}
	if n, done := mt.Begin(key); n != 1 {
		t.Errorf("Begin after reset = %d, want 1", n)
	} else {
		done()
	}
}

// TestMissTracker_Concurrent verifies the tracker under concurrent use.
func TestMissTracker_Concurrent(t *testing.T) {
	mt := newMissTracker()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, done := mt.Begin("pune")
			done()
		}()
	}
	wg.Wait()
	if got := mt.Active("pune"); got != 0 {
		t.Errorf("Active = %d, want 0", got)
	}
}
