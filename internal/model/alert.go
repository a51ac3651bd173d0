package model

import "time"

// Alert is one raised alert. Alerts are created only by the rule evaluator
// when a rule fires, mutated only by an explicit resolve, and removed only
// by the periodic cleanup once resolved and past the retention window.
type Alert struct {
	ID         string         `json:"id"`
	RuleID     string         `json:"rule_id"`
	Name       string         `json:"name"`
	Severity   Severity       `json:"severity"`
	Message    string         `json:"message"`
	CreatedAt  time.Time      `json:"created_at"`
	Resolved   bool           `json:"resolved"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// AlertStats is the aggregate view over the alert store.
// ActiveBySeverity counts sum to Active; Active + Resolved = Total.
type AlertStats struct {
	Total            int              `json:"total_alerts"`
	Active           int              `json:"active_alerts"`
	Resolved         int              `json:"resolved_alerts"`
	ActiveBySeverity map[Severity]int `json:"active_by_severity"`
}
