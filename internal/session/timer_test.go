package session

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestTimeoutSupervisorFiresOnce(t *testing.T) {
	var fired uint64
	sup := NewTimeoutSupervisor(func(userID string, attemptID uint64) {
		atomic.AddUint64(&fired, 1)
		if userID != "u1" || attemptID != 7 {
			t.Errorf("unexpected fire args: %s %d", userID, attemptID)
		}
	})

	sup.Schedule("u1", 7, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	if got := atomic.LoadUint64(&fired); got != 1 {
		t.Fatalf("fired %d times, want 1", got)
	}
}

func TestTimerCancelPreventsFire(t *testing.T) {
	var fired uint64
	sup := NewTimeoutSupervisor(func(string, uint64) {
		atomic.AddUint64(&fired, 1)
	})

	timer := sup.Schedule("u1", 1, 20*time.Millisecond)
	timer.Cancel()
	timer.Cancel() // idempotent
	time.Sleep(40 * time.Millisecond)

	if got := atomic.LoadUint64(&fired); got != 0 {
		t.Fatalf("fired %d times after cancel, want 0", got)
	}
}

func TestTimerCancelAfterFireIsNoOp(t *testing.T) {
	done := make(chan struct{})
	sup := NewTimeoutSupervisor(func(string, uint64) {
		close(done)
	})

	timer := sup.Schedule("u1", 1, time.Millisecond)
	<-done
	timer.Cancel()
}

func TestNilTimerCancel(t *testing.T) {
	var timer *Timer
	timer.Cancel()
}
