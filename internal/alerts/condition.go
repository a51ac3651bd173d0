package alerts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ZHONGZHENGXIN/investment-workflow-manager-sub003/internal/metrics"
)

// counterPrefix selects a business counter from the snapshot,
// e.g. "counter.workflow_executions_started_total".
const counterPrefix = "counter."

// Predicate decides whether a rule fires for the given snapshot. It returns
// the triggering value for the alert message and metadata. An error (or a
// panic, which the evaluator recovers) skips the rule for that tick only.
type Predicate func(snap *metrics.Snapshot) (fires bool, value float64, err error)

// snapshotFields maps condition field names to their snapshot accessors.
var snapshotFields = map[string]func(*metrics.Snapshot) float64{
	"http_error_rate_pct": func(s *metrics.Snapshot) float64 { return s.HTTPErrorRatePct },
	"avg_latency_ms":      func(s *metrics.Snapshot) float64 { return s.AvgLatencyMs },
	"memory_used_pct":     func(s *metrics.Snapshot) float64 { return s.MemoryUsedPct },
	"active_users":        func(s *metrics.Snapshot) float64 { return s.ActiveUsers },
}

// Compile parses a "field op value" condition into a Predicate.
//
// Supported fields: http_error_rate_pct, avg_latency_ms, memory_used_pct,
// active_users, and counter.<family> for configured business counters.
// Supported operators: > >= < <= ==
//
// Unparseable expressions and unknown snapshot fields are rejected here;
// a counter missing from a particular snapshot surfaces as an evaluation
// error at tick time.
func Compile(cond string) (Predicate, error) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return nil, fmt.Errorf("condition %q: want \"field op value\"", cond)
	}
	field, op, rhs := parts[0], parts[1], parts[2]

	cmp, err := compareFunc(op)
	if err != nil {
		return nil, fmt.Errorf("condition %q: %w", cond, err)
	}
	threshold, err := strconv.ParseFloat(rhs, 64)
	if err != nil {
		return nil, fmt.Errorf("condition %q: threshold %q is not a number", cond, rhs)
	}

	if name, ok := strings.CutPrefix(field, counterPrefix); ok {
		if name == "" {
			return nil, fmt.Errorf("condition %q: empty counter name", cond)
		}
		return func(snap *metrics.Snapshot) (bool, float64, error) {
			v, ok := snap.Counters[name]
			if !ok {
				return false, 0, fmt.Errorf("counter %q not present in snapshot", name)
			}
			return cmp(v, threshold), v, nil
		}, nil
	}

	accessor, ok := snapshotFields[field]
	if !ok {
		return nil, fmt.Errorf("condition %q: unknown field %q", cond, field)
	}
	return func(snap *metrics.Snapshot) (bool, float64, error) {
		v := accessor(snap)
		return cmp(v, threshold), v, nil
	}, nil
}

// compareFunc maps an operator token to its comparison.
func compareFunc(op string) (func(v, threshold float64) bool, error) {
	switch op {
	case ">":
		return func(v, t float64) bool { return v > t }, nil
	case ">=":
		return func(v, t float64) bool { return v >= t }, nil
	case "<":
		return func(v, t float64) bool { return v < t }, nil
	case "<=":
		return func(v, t float64) bool { return v <= t }, nil
	case "==":
		return func(v, t float64) bool { return v == t }, nil
	default:
		return nil, fmt.Errorf("unknown operator %q", op)
	}
}
