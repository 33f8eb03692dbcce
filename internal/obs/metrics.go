package obs

import (
	"sync/atomic"
	"time"

	"main/internal/event"
)

// AuthOutcome classifies how a login attempt terminated.
type AuthOutcome uint8

const (
	AuthOutcomeUnknown AuthOutcome = iota
	AuthOutcomeAuthenticated
	AuthOutcomeCancelled
	AuthOutcomeTimedOut
	AuthOutcomeFailed
	authOutcomeEnd
)

// Metrics collects lightweight counters and latency stats for the session core.
type Metrics struct {
	eventCounts   [16]uint64
	authOutcomes  [uint8(authOutcomeEnd)]uint64
	dispatches    uint64
	dispatchSkips uint64
	queueDrops    uint64
	queueClosed   uint64
	sweepRuns     uint64
	sweepReaped   uint64

	loginLatency    LatencyStats
	dispatchLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	EventCounts     map[event.Type]uint64
	AuthOutcomes    map[AuthOutcome]uint64
	Dispatches      uint64
	DispatchSkips   uint64
	QueueDrops      uint64
	QueueClosed     uint64
	SweepRuns       uint64
	SweepReaped     uint64
	LoginLatency    LatencySnapshot
	DispatchLatency LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveEvent counts one outbound event by type.
func (m *Metrics) ObserveEvent(t event.Type) {
	if m == nil {
		return
	}
	idx := int(t)
	if idx >= 0 && idx < len(m.eventCounts) {
		atomic.AddUint64(&m.eventCounts[idx], 1)
	}
}

// IncAuthOutcome counts one terminal login transition.
func (m *Metrics) IncAuthOutcome(o AuthOutcome) {
	if m == nil {
		return
	}
	idx := int(o)
	if idx >= 0 && idx < len(m.authOutcomes) {
		atomic.AddUint64(&m.authOutcomes[idx], 1)
	}
}

// IncDispatch records a matched inbound message handed to the processor.
func (m *Metrics) IncDispatch() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.dispatches, 1)
}

// IncDispatchSkip records an inbound message with no enabled subscription.
func (m *Metrics) IncDispatchSkip() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.dispatchSkips, 1)
}

// IncQueueDrop records an outbound queue drop.
func (m *Metrics) IncQueueDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueDrops, 1)
}

// IncQueueClosed records a closed-queue publish attempt.
func (m *Metrics) IncQueueClosed() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueClosed, 1)
}

// IncSweepRun records one cleanup sweep cycle.
func (m *Metrics) IncSweepRun() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.sweepRuns, 1)
}

// AddSweepReaped records handles reaped during a sweep cycle.
func (m *Metrics) AddSweepReaped(n uint64) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.sweepReaped, n)
}

// ObserveLogin measures request-to-terminal login latency.
func (m *Metrics) ObserveLogin(d time.Duration) {
	if m == nil {
		return
	}
	m.loginLatency.Observe(d)
}

// ObserveDispatch measures per-message dispatch latency.
func (m *Metrics) ObserveDispatch(d time.Duration) {
	if m == nil {
		return
	}
	m.dispatchLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	eventCounts := make(map[event.Type]uint64)
	for i := range m.eventCounts {
		if v := atomic.LoadUint64(&m.eventCounts[i]); v > 0 {
			eventCounts[event.Type(i)] = v
		}
	}
	authOutcomes := make(map[AuthOutcome]uint64)
	for i := range m.authOutcomes {
		if v := atomic.LoadUint64(&m.authOutcomes[i]); v > 0 {
			authOutcomes[AuthOutcome(i)] = v
		}
	}
	return Snapshot{
		EventCounts:     eventCounts,
		AuthOutcomes:    authOutcomes,
		Dispatches:      atomic.LoadUint64(&m.dispatches),
		DispatchSkips:   atomic.LoadUint64(&m.dispatchSkips),
		QueueDrops:      atomic.LoadUint64(&m.queueDrops),
		QueueClosed:     atomic.LoadUint64(&m.queueClosed),
		SweepRuns:       atomic.LoadUint64(&m.sweepRuns),
		SweepReaped:     atomic.LoadUint64(&m.sweepReaped),
		LoginLatency:    m.loginLatency.Snapshot(),
		DispatchLatency: m.dispatchLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
