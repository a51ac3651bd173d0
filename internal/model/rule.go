package model

import "time"

// Rule is one registered alert rule. A rule is immutable once registered
// except for Enabled, which can be toggled at runtime. Rules are not
// persisted across restarts; the configured default set is re-seeded on
// each process start.
type Rule struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Condition is a "field op value" expression over the metrics snapshot,
	// e.g. "http_error_rate_pct > 5" or "counter.executions_failed_total >= 10".
	// Empty for rules registered with a custom predicate.
	Condition string `json:"condition,omitempty"`

	Severity Severity      `json:"severity"`
	Cooldown time.Duration `json:"cooldown"`
	Enabled  bool          `json:"enabled"`
}
