package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ZHONGZHENGXIN/investment-workflow-manager-sub003/internal/model"
)

// DefaultRetention is how long a resolved alert is kept before the cleanup
// sweep removes it.
const DefaultRetention = 7 * 24 * time.Hour

// Store is a thread-safe in-memory alert store. Alerts are appended by the
// rule evaluator, resolved exactly once by an explicit Resolve call, and
// removed only by the periodic cleanup once resolved and older than the
// retention window. Unresolved alerts are never removed.
type Store struct {
	mu        sync.RWMutex
	alerts    []*model.Alert          // insertion order
	byID      map[string]*model.Alert
	retention time.Duration
	now       func() time.Time // injectable for deterministic tests
}

// New creates a Store with the given retention window. A retention of zero
// or less falls back to DefaultRetention.
func New(retention time.Duration) *Store {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Store{
		byID:      make(map[string]*model.Alert),
		retention: retention,
		now:       time.Now,
	}
}

// Append adds a new alert. The caller must not reuse IDs; an alert with an
// already-known ID is ignored.
func (s *Store) Append(a model.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[a.ID]; exists {
		return
	}
	cp := a
	s.alerts = append(s.alerts, &cp)
	s.byID[a.ID] = &cp
}

// Resolve marks the alert as resolved and stamps the resolution time.
// It is idempotent: resolving an unknown ID or an already-resolved alert is
// a no-op (the original resolution timestamp is kept). Returns true only
// when the alert transitioned from active to resolved by this call.
func (s *Store) Resolve(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok || a.Resolved {
		return false
	}
	t := s.now()
	a.Resolved = true
	a.ResolvedAt = &t
	return true
}

// Get returns a copy of the alert with the given ID.
func (s *Store) Get(id string) (model.Alert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[id]
	if !ok {
		return model.Alert{}, false
	}
	return *a, true
}

// Active returns copies of all unresolved alerts in insertion order.
func (s *Store) Active() []model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		if !a.Resolved {
			out = append(out, *a)
		}
	}
	return out
}

// All returns copies of every stored alert (active and resolved) in
// insertion order.
func (s *Store) All() []model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		out = append(out, *a)
	}
	return out
}

// Count returns the total number of stored alerts.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.alerts)
}

// Stats returns aggregate counts. Per-severity counts cover active alerts
// only and sum to Active; Active + Resolved = Total.
func (s *Store) Stats() model.AlertStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := model.AlertStats{
		Total:            len(s.alerts),
		ActiveBySeverity: make(map[model.Severity]int, len(model.Severities)),
	}
	for _, sev := range model.Severities {
		stats.ActiveBySeverity[sev] = 0
	}
	for _, a := range s.alerts {
		if a.Resolved {
			stats.Resolved++
			continue
		}
		stats.Active++
		stats.ActiveBySeverity[a.Severity]++
	}
	return stats
}

// Cleanup removes alerts that are resolved and whose resolution timestamp is
// strictly older than the retention window at the given time. It returns the
// number of alerts removed. Unresolved alerts are kept regardless of age.
func (s *Store) Cleanup(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-s.retention)
	kept := s.alerts[:0]
	removed := 0
	for _, a := range s.alerts {
		if a.Resolved && a.ResolvedAt != nil && a.ResolvedAt.Before(cutoff) {
			delete(s.byID, a.ID)
			removed++
			continue
		}
		kept = append(kept, a)
	}
	s.alerts = kept
	return removed
}

// Run starts the background cleanup loop, sweeping every interval.
// It blocks until ctx is cancelled.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Cleanup(now); n > 0 {
				slog.Debug("store: removed expired resolved alerts", "count", n)
			}
		}
	}
}
