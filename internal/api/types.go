package api

import (
	"time"

	"github.com/ZHONGZHENGXIN/investment-workflow-manager-sub003/internal/model"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status       string `json:"status"`
	ActiveAlerts int    `json:"active_alerts"`
	TotalRules   int    `json:"total_rules"`
	EnabledRules int    `json:"enabled_rules"`
}

// StatsResponse is the payload for GET /api/v1/stats. Per-severity counts
// cover active alerts and sum to ActiveAlerts;
// ActiveAlerts + ResolvedAlerts = TotalAlerts.
type StatsResponse struct {
	TotalAlerts      int                    `json:"total_alerts"`
	ActiveAlerts     int                    `json:"active_alerts"`
	ResolvedAlerts   int                    `json:"resolved_alerts"`
	ActiveBySeverity map[model.Severity]int `json:"active_by_severity"`
	TotalRules       int                    `json:"total_rules"`
	EnabledRules     int                    `json:"enabled_rules"`
}

// RuleResponse is one rule entry in GET /api/v1/rules.
type RuleResponse struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Condition   string         `json:"condition"`
	Severity    model.Severity `json:"severity"`
	Cooldown    string         `json:"cooldown"`
	Enabled     bool           `json:"enabled"`
}

// CreateRuleRequest is the body for POST /api/v1/rules. Cooldown is a Go
// duration string ("30s", "5m"); empty means no cooldown. Enabled defaults
// to true when omitted.
type CreateRuleRequest struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Condition   string         `json:"condition"`
	Severity    model.Severity `json:"severity"`
	Cooldown    string         `json:"cooldown"`
	Enabled     *bool          `json:"enabled"`
}

// UpdateRuleRequest is the body for PATCH /api/v1/rules/{id}. Only the
// enabled flag is mutable after registration.
type UpdateRuleRequest struct {
	Enabled *bool `json:"enabled"`
}

// FeedResponse is the live alert feed pushed over the WebSocket stream and
// mirrored by GET /api/v1/alerts/active consumers that also want stats.
type FeedResponse struct {
	Active      []model.Alert `json:"active"`
	Stats       StatsResponse `json:"stats"`
	GeneratedAt string        `json:"generated_at"` // RFC3339
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}

// toRuleResponse maps a rule to its JSON representation.
func toRuleResponse(r model.Rule) RuleResponse {
	return RuleResponse{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Condition:   r.Condition,
		Severity:    r.Severity,
		Cooldown:    r.Cooldown.String(),
		Enabled:     r.Enabled,
	}
}

// nowRFC3339 formats the current time for feed payloads.
func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
