package metrics

import (
	"context"
	"time"
)

// Snapshot is one typed view of the workflow application's operational
// metrics, taken at a single poll. Rule predicates evaluate against it.
type Snapshot struct {
	TakenAt time.Time

	// HTTPErrorRatePct is the percentage of requests that returned an error
	// since the previous poll.
	HTTPErrorRatePct float64

	// AvgLatencyMs is the mean request duration in milliseconds since the
	// previous poll.
	AvgLatencyMs float64

	// MemoryUsedPct is the host (or application) memory utilisation.
	MemoryUsedPct float64

	// ActiveUsers is the current active-session gauge.
	ActiveUsers float64

	// Counters holds raw totals of the configured business counters,
	// keyed by metric family name (e.g. "workflow_executions_started_total").
	Counters map[string]float64
}

// Source produces a fresh metrics snapshot. A failed poll returns an error;
// the caller decides what to skip.
type Source interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}
