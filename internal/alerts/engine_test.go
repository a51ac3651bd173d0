package alerts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ZHONGZHENGXIN/investment-workflow-manager-sub003/internal/metrics"
	"github.com/ZHONGZHENGXIN/investment-workflow-manager-sub003/internal/model"
	"github.com/ZHONGZHENGXIN/investment-workflow-manager-sub003/internal/store"
)

// fakeSource returns a canned snapshot or error.
type fakeSource struct {
	snap *metrics.Snapshot
	err  error
}

func (f *fakeSource) Snapshot(ctx context.Context) (*metrics.Snapshot, error) {
	return f.snap, f.err
}

// recordingNotifier captures every alert it is handed.
type recordingNotifier struct {
	mu     sync.Mutex
	alerts []model.Alert
}

func (n *recordingNotifier) Notify(ctx context.Context, a *model.Alert) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, *a)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

func okSnapshot() *metrics.Snapshot {
	return &metrics.Snapshot{
		TakenAt:          time.Now(),
		HTTPErrorRatePct: 12.5,
		AvgLatencyMs:     800,
		MemoryUsedPct:    50,
		ActiveUsers:      3,
		Counters:         map[string]float64{"workflow_executions_started_total": 42},
	}
}

func alwaysTrue(snap *metrics.Snapshot) (bool, float64, error) { return true, 1, nil }

func newTestEvaluator(t *testing.T, src metrics.Source) (*Evaluator, *store.Store, *recordingNotifier) {
	t.Helper()
	st := store.New(store.DefaultRetention)
	n := &recordingNotifier{}
	e := New(src, st, n, time.Second)
	return e, st, n
}

func rule(id string, cooldown time.Duration) model.Rule {
	return model.Rule{
		ID:       id,
		Name:     "rule " + id,
		Severity: model.SeverityHigh,
		Cooldown: cooldown,
		Enabled:  true,
	}
}

func TestTick_FiresAlwaysTrueRule(t *testing.T) {
	e, st, n := newTestEvaluator(t, &fakeSource{snap: okSnapshot()})
	if err := e.RegisterFunc(rule("r1", 0), alwaysTrue); err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}

	e.Tick(context.Background())

	all := st.All()
	if len(all) != 1 {
		t.Fatalf("alerts stored: got %d, want 1", len(all))
	}
	a := all[0]
	if a.RuleID != "r1" {
		t.Errorf("RuleID: got %q, want r1", a.RuleID)
	}
	if a.Severity != model.SeverityHigh {
		t.Errorf("Severity: got %q, want high", a.Severity)
	}
	if a.Resolved {
		t.Error("new alert should not be resolved")
	}
	if a.ID == "" {
		t.Error("alert ID should not be empty")
	}
	if n.count() != 1 {
		t.Errorf("notifier calls: got %d, want 1", n.count())
	}
}

func TestTick_CooldownSuppressesRefire(t *testing.T) {
	e, st, _ := newTestEvaluator(t, &fakeSource{snap: okSnapshot()})
	if err := e.RegisterFunc(rule("r1", 10*time.Second), alwaysTrue); err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}

	base := time.Now()
	e.now = func() time.Time { return base }
	e.Tick(context.Background())

	// Second predicate-true tick within the cooldown: no new alert.
	e.now = func() time.Time { return base.Add(5 * time.Second) }
	e.Tick(context.Background())
	if n := st.Count(); n != 1 {
		t.Fatalf("alerts after tick inside cooldown: got %d, want 1", n)
	}

	// Separated by exactly the cooldown: fires again.
	e.now = func() time.Time { return base.Add(10 * time.Second) }
	e.Tick(context.Background())
	if n := st.Count(); n != 2 {
		t.Fatalf("alerts after tick at cooldown: got %d, want 2", n)
	}
}

func TestTick_ZeroCooldownFiresEveryTick(t *testing.T) {
	e, st, _ := newTestEvaluator(t, &fakeSource{snap: okSnapshot()})
	if err := e.RegisterFunc(rule("r1", 0), alwaysTrue); err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}

	e.Tick(context.Background())
	e.Tick(context.Background())
	if n := st.Count(); n != 2 {
		t.Errorf("alerts: got %d, want 2", n)
	}
}

func TestTick_PredicateErrorSkipsRuleOnly(t *testing.T) {
	e, st, _ := newTestEvaluator(t, &fakeSource{snap: okSnapshot()})

	failing := func(snap *metrics.Snapshot) (bool, float64, error) {
		return false, 0, errors.New("boom")
	}
	if err := e.RegisterFunc(rule("r-bad", 0), failing); err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}
	if err := e.RegisterFunc(rule("r-good", 0), alwaysTrue); err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}

	e.Tick(context.Background())

	all := st.All()
	if len(all) != 1 {
		t.Fatalf("alerts: got %d, want 1", len(all))
	}
	if all[0].RuleID != "r-good" {
		t.Errorf("RuleID: got %q, want r-good", all[0].RuleID)
	}
}

func TestTick_PredicatePanicIsRecovered(t *testing.T) {
	e, st, _ := newTestEvaluator(t, &fakeSource{snap: okSnapshot()})

	panicking := func(snap *metrics.Snapshot) (bool, float64, error) {
		panic("bad rule")
	}
	if err := e.RegisterFunc(rule("r-panic", 0), panicking); err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}
	if err := e.RegisterFunc(rule("r-ok", 0), alwaysTrue); err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}

	e.Tick(context.Background()) // must not panic

	if n := st.Count(); n != 1 {
		t.Errorf("alerts: got %d, want 1", n)
	}
}

func TestTick_MetricsFailureSkipsWholeTick(t *testing.T) {
	src := &fakeSource{err: errors.New("connection refused")}
	e, st, n := newTestEvaluator(t, src)
	if err := e.RegisterFunc(rule("r1", 0), alwaysTrue); err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}

	e.Tick(context.Background())

	if st.Count() != 0 {
		t.Errorf("alerts: got %d, want 0", st.Count())
	}
	if n.count() != 0 {
		t.Errorf("notifier calls: got %d, want 0", n.count())
	}
}

func TestTick_DisabledRuleNotEvaluated(t *testing.T) {
	e, st, _ := newTestEvaluator(t, &fakeSource{snap: okSnapshot()})

	calls := 0
	counting := func(snap *metrics.Snapshot) (bool, float64, error) {
		calls++
		return true, 0, nil
	}
	r := rule("r1", 0)
	r.Enabled = false
	if err := e.RegisterFunc(r, counting); err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}

	e.Tick(context.Background())

	if calls != 0 {
		t.Errorf("predicate calls: got %d, want 0", calls)
	}
	if st.Count() != 0 {
		t.Errorf("alerts: got %d, want 0", st.Count())
	}
}

func TestSetEnabled_TogglesEvaluation(t *testing.T) {
	e, st, _ := newTestEvaluator(t, &fakeSource{snap: okSnapshot()})
	r := rule("r1", 0)
	r.Enabled = false
	if err := e.RegisterFunc(r, alwaysTrue); err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}

	e.Tick(context.Background())
	if st.Count() != 0 {
		t.Fatalf("alerts while disabled: got %d, want 0", st.Count())
	}

	if !e.SetEnabled("r1", true) {
		t.Fatal("SetEnabled: expected true")
	}
	e.Tick(context.Background())
	if st.Count() != 1 {
		t.Errorf("alerts after enable: got %d, want 1", st.Count())
	}

	if e.SetEnabled("missing", true) {
		t.Error("SetEnabled on unknown rule: expected false")
	}
}

func TestRegister_Validation(t *testing.T) {
	e, _, _ := newTestEvaluator(t, &fakeSource{snap: okSnapshot()})

	if err := e.RegisterFunc(rule("dup", 0), alwaysTrue); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := e.RegisterFunc(rule("dup", 0), alwaysTrue); err == nil {
		t.Error("duplicate id: expected error")
	}

	bad := rule("", 0)
	if err := e.RegisterFunc(bad, alwaysTrue); err == nil {
		t.Error("empty id: expected error")
	}

	badSev := rule("r-sev", 0)
	badSev.Severity = "urgent"
	if err := e.RegisterFunc(badSev, alwaysTrue); err == nil {
		t.Error("unknown severity: expected error")
	}

	badCond := model.Rule{ID: "r-cond", Severity: model.SeverityLow, Condition: "nonsense"}
	if err := e.Register(badCond); err == nil {
		t.Error("invalid condition: expected error")
	}
}

func TestRegister_ConditionRuleFires(t *testing.T) {
	e, st, _ := newTestEvaluator(t, &fakeSource{snap: okSnapshot()})
	r := model.Rule{
		ID:        "high-error-rate",
		Name:      "High HTTP error rate",
		Condition: "http_error_rate_pct > 5",
		Severity:  model.SeverityCritical,
		Enabled:   true,
	}
	if err := e.Register(r); err != nil {
		t.Fatalf("Register: %v", err)
	}

	e.Tick(context.Background())

	all := st.All()
	if len(all) != 1 {
		t.Fatalf("alerts: got %d, want 1", len(all))
	}
	if all[0].Metadata["value"] != 12.5 {
		t.Errorf("metadata value: got %v, want 12.5", all[0].Metadata["value"])
	}
}

func TestRemove_DropsRuleAndCooldown(t *testing.T) {
	e, _, _ := newTestEvaluator(t, &fakeSource{snap: okSnapshot()})
	if err := e.RegisterFunc(rule("r1", time.Hour), alwaysTrue); err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}
	e.Tick(context.Background())

	if !e.Remove("r1") {
		t.Fatal("Remove: expected true")
	}
	if e.Remove("r1") {
		t.Error("second Remove: expected false")
	}
	if total, _ := e.RuleCounts(); total != 0 {
		t.Errorf("rule count: got %d, want 0", total)
	}
}

func TestReplaceRules_KeepsCooldownForSurvivingIDs(t *testing.T) {
	e, st, _ := newTestEvaluator(t, &fakeSource{snap: okSnapshot()})
	r := model.Rule{
		ID:        "r1",
		Condition: "active_users > 0",
		Severity:  model.SeverityMedium,
		Cooldown:  time.Hour,
		Enabled:   true,
	}
	if err := e.Register(r); err != nil {
		t.Fatalf("Register: %v", err)
	}

	base := time.Now()
	e.now = func() time.Time { return base }
	e.Tick(context.Background())
	if st.Count() != 1 {
		t.Fatalf("alerts: got %d, want 1", st.Count())
	}

	e.ReplaceRules([]model.Rule{r})

	// Still inside the original cooldown window: no re-fire.
	e.now = func() time.Time { return base.Add(time.Minute) }
	e.Tick(context.Background())
	if st.Count() != 1 {
		t.Errorf("alerts after replace inside cooldown: got %d, want 1", st.Count())
	}
}

func TestReplaceRules_SkipsInvalid(t *testing.T) {
	e, _, _ := newTestEvaluator(t, &fakeSource{snap: okSnapshot()})
	e.ReplaceRules([]model.Rule{
		{ID: "ok", Condition: "active_users > 0", Severity: model.SeverityLow, Enabled: true},
		{ID: "bad", Condition: "not a condition", Severity: model.SeverityLow, Enabled: true},
	})
	if total, _ := e.RuleCounts(); total != 1 {
		t.Errorf("rule count: got %d, want 1", total)
	}
}

func TestRules_SortedCopies(t *testing.T) {
	e, _, _ := newTestEvaluator(t, &fakeSource{snap: okSnapshot()})
	for _, id := range []string{"zeta", "alpha", "mid"} {
		if err := e.RegisterFunc(rule(id, 0), alwaysTrue); err != nil {
			t.Fatalf("RegisterFunc %q: %v", id, err)
		}
	}
	rules := e.Rules()
	if len(rules) != 3 {
		t.Fatalf("rules: got %d, want 3", len(rules))
	}
	if rules[0].ID != "alpha" || rules[2].ID != "zeta" {
		t.Errorf("rules not sorted: %q, %q, %q", rules[0].ID, rules[1].ID, rules[2].ID)
	}
}
