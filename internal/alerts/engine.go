package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ZHONGZHENGXIN/investment-workflow-manager-sub003/internal/metrics"
	"github.com/ZHONGZHENGXIN/investment-workflow-manager-sub003/internal/model"
	"github.com/ZHONGZHENGXIN/investment-workflow-manager-sub003/internal/store"
)

// Notifier delivers a raised alert to the configured channels. Delivery
// failures stay inside the notifier; Notify never reports them back.
type Notifier interface {
	Notify(ctx context.Context, a *model.Alert)
}

// compiledRule pairs a registered rule with its predicate.
type compiledRule struct {
	rule model.Rule
	pred Predicate
}

// Evaluator holds the registered rule set and, on each tick, evaluates every
// enabled rule whose cooldown has elapsed against a freshly pulled metrics
// snapshot. Fired alerts are appended to the store and handed to the
// notifier. Safe for concurrent use.
type Evaluator struct {
	source   metrics.Source
	store    *store.Store
	notifier Notifier
	interval time.Duration

	mu       sync.Mutex
	rules    map[string]*compiledRule
	lastFire map[string]time.Time
	now      func() time.Time // injectable for deterministic tests
}

// New creates an Evaluator that ticks every interval.
func New(source metrics.Source, st *store.Store, notifier Notifier, interval time.Duration) *Evaluator {
	return &Evaluator{
		source:   source,
		store:    st,
		notifier: notifier,
		interval: interval,
		rules:    make(map[string]*compiledRule),
		lastFire: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Register compiles the rule's condition and adds it to the rule set.
// The rule is immutable once registered, except for its enabled flag.
func (e *Evaluator) Register(rule model.Rule) error {
	pred, err := Compile(rule.Condition)
	if err != nil {
		return err
	}
	return e.RegisterFunc(rule, pred)
}

// RegisterFunc adds a rule with a custom predicate. Used for rules whose
// condition cannot be expressed in the condition mini-language.
func (e *Evaluator) RegisterFunc(rule model.Rule, pred Predicate) error {
	if rule.ID == "" {
		return errors.New("alerts: rule id must not be empty")
	}
	if !rule.Severity.Valid() {
		return fmt.Errorf("alerts: rule %q: unknown severity %q", rule.ID, rule.Severity)
	}
	if rule.Cooldown < 0 {
		return fmt.Errorf("alerts: rule %q: negative cooldown", rule.ID)
	}
	if pred == nil {
		return fmt.Errorf("alerts: rule %q: nil predicate", rule.ID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.rules[rule.ID]; exists {
		return fmt.Errorf("alerts: rule %q already registered", rule.ID)
	}
	e.rules[rule.ID] = &compiledRule{rule: rule, pred: pred}
	return nil
}

// Remove deletes the rule with the given ID. Returns false if unknown.
// The rule's cooldown clock is dropped with it.
func (e *Evaluator) Remove(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.rules[id]; !ok {
		return false
	}
	delete(e.rules, id)
	delete(e.lastFire, id)
	return true
}

// SetEnabled toggles the rule's enabled flag, the only mutable rule field.
// Returns false if the rule is unknown.
func (e *Evaluator) SetEnabled(id string, enabled bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	cr, ok := e.rules[id]
	if !ok {
		return false
	}
	cr.rule.Enabled = enabled
	return true
}

// Rules returns copies of all registered rules, sorted by ID.
func (e *Evaluator) Rules() []model.Rule {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Rule, 0, len(e.rules))
	for _, cr := range e.rules {
		out = append(out, cr.rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RuleCounts returns the total and enabled rule counts.
func (e *Evaluator) RuleCounts() (total, enabled int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	total = len(e.rules)
	for _, cr := range e.rules {
		if cr.rule.Enabled {
			enabled++
		}
	}
	return total, enabled
}

// ReplaceRules swaps the entire rule set, keeping cooldown clocks for rule
// IDs that survive the swap. Rules that fail validation are logged and
// skipped. Used by config hot-reload.
func (e *Evaluator) ReplaceRules(rules []model.Rule) {
	next := make(map[string]*compiledRule, len(rules))
	for _, r := range rules {
		pred, err := Compile(r.Condition)
		if err != nil {
			slog.Error("alerts: skipping rule with invalid condition", "rule", r.ID, "err", err)
			continue
		}
		if r.ID == "" || !r.Severity.Valid() || r.Cooldown < 0 {
			slog.Error("alerts: skipping invalid rule", "rule", r.ID)
			continue
		}
		next[r.ID] = &compiledRule{rule: r, pred: pred}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for id := range e.lastFire {
		if _, ok := next[id]; !ok {
			delete(e.lastFire, id)
		}
	}
	e.rules = next
	slog.Info("alerts: rule set replaced", "rules", len(next))
}

// Tick runs one evaluation pass: pull a snapshot, evaluate every enabled
// rule whose cooldown has elapsed, store fired alerts, and hand each one to
// the notifier. Notification delivery for an alert settles across all
// channels before Tick returns.
func (e *Evaluator) Tick(ctx context.Context) {
	snap, err := e.source.Snapshot(ctx)
	if err != nil {
		if errors.Is(err, metrics.ErrNoBaseline) {
			slog.Debug("alerts: metrics baseline recorded, skipping tick")
		} else {
			slog.Warn("alerts: metrics snapshot failed, skipping tick", "err", err)
		}
		return
	}

	fired := e.evaluate(snap)
	for i := range fired {
		e.notifier.Notify(ctx, &fired[i])
	}
}

// evaluate checks every rule against snap under the lock and returns the
// alerts that fired, already appended to the store.
func (e *Evaluator) evaluate(snap *metrics.Snapshot) []model.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()

	// Deterministic rule order across ticks.
	ids := make([]string, 0, len(e.rules))
	for id := range e.rules {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var fired []model.Alert
	for _, id := range ids {
		cr := e.rules[id]
		if !cr.rule.Enabled {
			continue
		}
		if last, ok := e.lastFire[id]; ok && now.Sub(last) < cr.rule.Cooldown {
			continue
		}

		fires, value, err := safeEval(cr.pred, snap)
		if err != nil {
			slog.Error("alerts: rule evaluation failed, skipping rule", "rule", id, "err", err)
			continue
		}
		if !fires {
			continue
		}

		a := newAlert(cr.rule, value, now)
		e.store.Append(a)
		e.lastFire[id] = now
		slog.Warn("alert fired",
			"rule", id,
			"severity", a.Severity,
			"value", value,
		)
		fired = append(fired, a)
	}
	return fired
}

// Run starts the evaluation loop, ticking every interval until ctx is
// cancelled.
func (e *Evaluator) Run(ctx context.Context) {
	t := time.NewTicker(e.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			e.Tick(ctx)
		}
	}
}

// safeEval runs the predicate, converting a panic into an evaluation error
// so a bad rule cannot abort the tick.
func safeEval(p Predicate, snap *metrics.Snapshot) (fires bool, value float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			fires, value = false, 0
			err = fmt.Errorf("predicate panic: %v", r)
		}
	}()
	return p(snap)
}

// newAlert builds the alert record for a fired rule.
func newAlert(rule model.Rule, value float64, now time.Time) model.Alert {
	msg := fmt.Sprintf("[%s] %s", rule.Severity, rule.Name)
	if rule.Condition != "" {
		msg = fmt.Sprintf("%s: %s (value %.2f)", msg, rule.Condition, value)
	}
	return model.Alert{
		ID:        newAlertID(now),
		RuleID:    rule.ID,
		Name:      rule.Name,
		Severity:  rule.Severity,
		Message:   msg,
		CreatedAt: now,
		Metadata: map[string]any{
			"condition": rule.Condition,
			"value":     value,
		},
	}
}

// newAlertID derives an opaque alert identifier from the trigger time plus
// a random component.
func newAlertID(now time.Time) string {
	return fmt.Sprintf("%d-%s", now.UnixNano(), uuid.NewString()[:8])
}
