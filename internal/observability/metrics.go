package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu       sync.Mutex
	counters map[string]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		counters: make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	m.inc("http_requests|" + path + "|" + method + "|" + strconv.Itoa(status))
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	m.inc("http_errors|" + path + "|" + method + "|" + code)
}

// RecordAssignment counts one assignment attempt by decision outcome.
func (m *Metrics) RecordAssignment(outcome string) {
	m.inc("assignments|" + outcome)
}

// RecordAssignmentRaceLost counts commits abandoned after a version conflict.
func (m *Metrics) RecordAssignmentRaceLost() {
	m.inc("assignments_race_lost")
}

// RecordTimerArmed counts scheduled timer intents by kind.
func (m *Metrics) RecordTimerArmed(kind string) {
	m.inc("timers_armed|" + kind)
}

// RecordTimerCancelled counts cancelled timer intents by kind.
func (m *Metrics) RecordTimerCancelled(kind string) {
	m.inc("timers_cancelled|" + kind)
}

// RecordTimerFired counts delivered timer intents by kind.
func (m *Metrics) RecordTimerFired(kind string) {
	m.inc("timers_fired|" + kind)
}

// RecordTimerStale counts firings suppressed because the intent was
// already fired or cancelled.
func (m *Metrics) RecordTimerStale(kind string) {
	m.inc("timers_stale|" + kind)
}

// RecordEscalation counts SLA escalations.
func (m *Metrics) RecordEscalation() {
	m.inc("escalations")
}

// RecordAutoClose counts automatic closures of resolved tickets.
func (m *Metrics) RecordAutoClose() {
	m.inc("auto_closures")
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]int64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.counters))
	for k, v := range m.counters {
		out[k] = v
	}
	return out
}

func (m *Metrics) inc(key string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[key]++
}
