package obs

import (
	"testing"
	"time"

	"main/internal/event"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()

	m.ObserveEvent(event.TypeLoginSuccess)
	m.ObserveEvent(event.TypeLoginSuccess)
	m.ObserveEvent(event.TypeSignalReceived)
	m.IncAuthOutcome(AuthOutcomeAuthenticated)
	m.IncAuthOutcome(AuthOutcomeTimedOut)
	m.IncDispatch()
	m.IncDispatchSkip()
	m.IncQueueDrop()
	m.IncSweepRun()
	m.AddSweepReaped(3)

	snap := m.Snapshot()
	if snap.EventCounts[event.TypeLoginSuccess] != 2 {
		t.Fatalf("loginSuccess count = %d", snap.EventCounts[event.TypeLoginSuccess])
	}
	if snap.EventCounts[event.TypeSignalReceived] != 1 {
		t.Fatalf("signalReceived count = %d", snap.EventCounts[event.TypeSignalReceived])
	}
	if snap.AuthOutcomes[AuthOutcomeAuthenticated] != 1 || snap.AuthOutcomes[AuthOutcomeTimedOut] != 1 {
		t.Fatalf("auth outcomes = %v", snap.AuthOutcomes)
	}
	if snap.Dispatches != 1 || snap.DispatchSkips != 1 || snap.QueueDrops != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.SweepRuns != 1 || snap.SweepReaped != 3 {
		t.Fatalf("sweep counters: runs=%d reaped=%d", snap.SweepRuns, snap.SweepReaped)
	}
}

func TestLatencyStats(t *testing.T) {
	var l LatencyStats
	l.Observe(10 * time.Millisecond)
	l.Observe(30 * time.Millisecond)
	l.Observe(20 * time.Millisecond)
	l.Observe(-time.Millisecond) // ignored

	snap := l.Snapshot()
	if snap.Count != 3 {
		t.Fatalf("count = %d", snap.Count)
	}
	if snap.Min != 10*time.Millisecond || snap.Max != 30*time.Millisecond {
		t.Fatalf("min/max = %v/%v", snap.Min, snap.Max)
	}
	if snap.Avg != 20*time.Millisecond {
		t.Fatalf("avg = %v", snap.Avg)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveEvent(event.TypeError)
	m.IncDispatch()
	m.ObserveLogin(time.Second)
	if snap := m.Snapshot(); snap.Dispatches != 0 {
		t.Fatal("nil metrics produced counts")
	}
}

func TestTraceGeneratorIsMonotonic(t *testing.T) {
	g := NewTraceGenerator(42)
	prev := g.Next()
	for i := 0; i < 100; i++ {
		next := g.Next()
		if next <= prev {
			t.Fatalf("trace ids not increasing: %d then %d", prev, next)
		}
		prev = next
	}
}

func TestNilTraceGenerator(t *testing.T) {
	var g *TraceGenerator
	if g.Next() != 0 {
		t.Fatal("nil generator should yield zero")
	}
}
