package telemetry

import (
	"sync"
	"time"
)

// Accumulator gathers per-session generation statistics while states run.
// States record into it; the session reads it when reporting.
type Accumulator struct {
	mu               sync.Mutex
	sessionStart     time.Time
	generations      int
	failures         int
	lastGenerationID string
	lastLatency      time.Duration
	totalLatency     time.Duration
}

// NewAccumulator starts an accumulator for a session created at start.
func NewAccumulator(start time.Time) *Accumulator {
	return &Accumulator{sessionStart: start}
}

// RecordGeneration notes a finished generation run.
func (a *Accumulator) RecordGeneration(codeGenerationID string, latency time.Duration, failed bool) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.generations++
	if failed {
		a.failures++
	}
	a.lastGenerationID = codeGenerationID
	a.lastLatency = latency
	a.totalLatency += latency
	metricGenerationSeconds.Observe(latency.Seconds())
}

// Snapshot is a point-in-time copy of an Accumulator.
type Snapshot struct {
	SessionStart     time.Time
	Generations      int
	Failures         int
	LastGenerationID string
	LastLatency      time.Duration
	TotalLatency     time.Duration
}

// Snapshot copies the current statistics.
func (a *Accumulator) Snapshot() Snapshot {
	if a == nil {
		return Snapshot{}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return Snapshot{
		SessionStart:     a.sessionStart,
		Generations:      a.generations,
		Failures:         a.failures,
		LastGenerationID: a.lastGenerationID,
		LastLatency:      a.lastLatency,
		TotalLatency:     a.totalLatency,
	}
}
