package session

import (
	"context"
	"time"

	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
)

// DefaultSweepInterval is how often abandoned attempts are reaped.
const DefaultSweepInterval = 5 * time.Minute

// Sweep periodically reaps abandoned login attempts. It recomputes the
// elapsed confirmation window from the handle's createdAt, independently
// of the scheduled timer, so attempts survive lost timers and process
// restarts. Terminal handles without a persisted credential are purged;
// handles holding one stay registered as restore-eligible.
type Sweep struct {
	svc      *Service
	interval time.Duration
}

// NewSweep creates a sweep over the service's registry.
func NewSweep(svc *Service, interval time.Duration) *Sweep {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweep{svc: svc, interval: interval}
}

// Run loops until the context is done or the process shuts down.
// A failed cycle is logged and retried on the next tick.
func (s *Sweep) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-sys.Shutdown():
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Cycle()
		}
	}
}

// Cycle runs one reaping pass. Exported so tests and the daemon can force
// a pass without waiting for the ticker.
func (s *Sweep) Cycle() {
	now := time.Now().UTC()
	window := s.svc.ConfirmWindow()
	reaped := uint64(0)

	s.svc.Registry().Range(func(h *Handle) bool {
		v := h.Inspect()
		switch {
		case v.State == StateConfirmationPending && now.Sub(v.CreatedAt) > window:
			// Same path as a fired timer; the fence drops it if the
			// attempt resolved in the meantime.
			s.svc.handleTimeout(v.UserID, v.AttemptID)
			reaped++
		case v.State.Terminal() && v.State != StateAuthenticated && !v.HasToken:
			s.svc.Registry().Remove(v.UserID, h)
			reaped++
		}
		return true
	})

	s.svc.metrics.IncSweepRun()
	if reaped > 0 {
		s.svc.metrics.AddSweepReaped(reaped)
		logs.Infof("sweep reaped %d handles", reaped)
	}
}
