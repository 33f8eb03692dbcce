package session

import (
	"sync/atomic"
	"time"
)

// Timer is one scheduled timeout. Cancel is idempotent and safe after the
// timer has already fired.
type Timer struct {
	t     *time.Timer
	fired uint32
}

// Cancel stops the timer. Calling it repeatedly, or after firing, is a no-op.
func (t *Timer) Cancel() {
	if t == nil || t.t == nil {
		return
	}
	t.t.Stop()
}

// TimeoutSupervisor schedules one cancellable deferred timeout per
// authentication attempt, keyed by (userID, attemptID).
type TimeoutSupervisor struct {
	fire func(userID string, attemptID uint64)
}

// NewTimeoutSupervisor wires the supervisor to the timeout transition.
func NewTimeoutSupervisor(fire func(userID string, attemptID uint64)) *TimeoutSupervisor {
	return &TimeoutSupervisor{fire: fire}
}

// Schedule arms a timer that invokes the timeout transition exactly once
// unless cancelled first.
func (s *TimeoutSupervisor) Schedule(userID string, attemptID uint64, d time.Duration) *Timer {
	timer := &Timer{}
	timer.t = time.AfterFunc(d, func() {
		if !atomic.CompareAndSwapUint32(&timer.fired, 0, 1) {
			return
		}
		if s.fire != nil {
			s.fire(userID, attemptID)
		}
	})
	return timer
}
