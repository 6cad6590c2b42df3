package resolution

import (
	"time"

	"mindsync/application/ports"
)

// resolverMetrics accumulates resolution counters. All access happens
// under the resolver's mutex, so the struct itself needs no locking.
type resolverMetrics struct {
	totalConflicts    int64
	resolvedConflicts int64
	manualConflicts   int64

	averageLatencyMs float64
	peakLatencyMs    float64

	// conflictTimes holds the timestamps of recent conflicts for the
	// trailing-window rate; pruned on every read and write.
	conflictTimes []time.Time
}

const conflictRateWindow = 60 * time.Second

// recordConflict notes that an incoming operation collided with concurrent
// history.
func (m *resolverMetrics) recordConflict(at time.Time) {
	m.totalConflicts++
	m.conflictTimes = append(m.conflictTimes, at)
	m.prune(at)
}

// recordResolved notes a successful automatic resolution and folds its
// latency into the running average.
func (m *resolverMetrics) recordResolved(latency time.Duration) {
	m.resolvedConflicts++
	ms := float64(latency.Microseconds()) / 1000.0
	// Incremental mean over resolved conflicts.
	m.averageLatencyMs += (ms - m.averageLatencyMs) / float64(m.resolvedConflicts)
	if ms > m.peakLatencyMs {
		m.peakLatencyMs = ms
	}
}

// recordManual notes an escalation to the manual queue.
func (m *resolverMetrics) recordManual() {
	m.manualConflicts++
}

// prune drops conflict timestamps that fell out of the trailing window.
func (m *resolverMetrics) prune(now time.Time) {
	cutoff := now.Add(-conflictRateWindow)
	kept := m.conflictTimes[:0]
	for _, t := range m.conflictTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	m.conflictTimes = kept
}

// snapshot renders the counters as an exportable view.
func (m *resolverMetrics) snapshot(now time.Time, pending int) ports.MetricsSnapshot {
	m.prune(now)

	rate := float64(len(m.conflictTimes)) / conflictRateWindow.Minutes()
	success := 0.0
	if m.totalConflicts > 0 {
		success = float64(m.resolvedConflicts) / float64(m.totalConflicts)
	}

	return ports.MetricsSnapshot{
		TotalConflicts:        m.totalConflicts,
		ResolvedConflicts:     m.resolvedConflicts,
		ManualConflicts:       m.manualConflicts,
		PendingConflicts:      pending,
		AverageResolutionMs:   m.averageLatencyMs,
		PeakResolutionMs:      m.peakLatencyMs,
		ConflictRatePerMinute: rate,
		SuccessRate:           success,
	}
}
