package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ZHONGZHENGXIN/investment-workflow-manager-sub003/internal/alerts"
	"github.com/ZHONGZHENGXIN/investment-workflow-manager-sub003/internal/model"
	"github.com/ZHONGZHENGXIN/investment-workflow-manager-sub003/internal/store"
)

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	store *store.Store
	eval  *alerts.Evaluator
	mux   *http.ServeMux
}

// New creates a Handler wired to the alert store and evaluator and registers
// all routes.
func New(st *store.Store, ev *alerts.Evaluator) http.Handler {
	h := &Handler{store: st, eval: ev, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/alerts", h.listAlerts)
	h.mux.HandleFunc("/api/v1/alerts/active", h.listActive)
	h.mux.HandleFunc("/api/v1/alerts/", h.alertByID) // subtree — {id} and {id}/resolve
	h.mux.HandleFunc("/api/v1/stats", h.stats)
	h.mux.HandleFunc("/api/v1/rules", h.rules)
	h.mux.HandleFunc("/api/v1/rules/", h.ruleByID) // subtree — {id}

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// BuildFeed assembles the live alert feed: active alerts plus aggregate
// stats. Shared by the WebSocket hub.
func BuildFeed(st *store.Store, ev *alerts.Evaluator) FeedResponse {
	return FeedResponse{
		Active:      st.Active(),
		Stats:       buildStats(st, ev),
		GeneratedAt: nowRFC3339(),
	}
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	total, enabled := h.eval.RuleCounts()
	jsonResp(w, http.StatusOK, HealthResponse{
		Status:       "ok",
		ActiveAlerts: len(h.store.Active()),
		TotalRules:   total,
		EnabledRules: enabled,
	})
}

// listAlerts returns GET /api/v1/alerts — every stored alert.
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, h.store.All())
}

// listActive returns GET /api/v1/alerts/active — unresolved alerts only.
func (h *Handler) listActive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, h.store.Active())
}

// alertByID serves the /api/v1/alerts/{id} subtree:
//
//	GET  /api/v1/alerts/{id}          — single alert
//	POST /api/v1/alerts/{id}/resolve  — idempotent resolve
func (h *Handler) alertByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/alerts/")
	if rest == "" {
		h.listAlerts(w, r)
		return
	}

	if id, ok := strings.CutSuffix(rest, "/resolve"); ok {
		if r.Method != http.MethodPost {
			jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.resolve(w, id)
		return
	}

	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	a, ok := h.store.Get(rest)
	if !ok {
		jsonErr(w, http.StatusNotFound, "alert not found")
		return
	}
	jsonResp(w, http.StatusOK, a)
}

// resolve marks the alert resolved. Resolving an already-resolved alert
// returns the unchanged record; an unknown ID is 404.
func (h *Handler) resolve(w http.ResponseWriter, id string) {
	if _, ok := h.store.Get(id); !ok {
		jsonErr(w, http.StatusNotFound, "alert not found")
		return
	}
	h.store.Resolve(id)
	a, _ := h.store.Get(id)
	jsonResp(w, http.StatusOK, a)
}

// stats returns GET /api/v1/stats.
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, buildStats(h.store, h.eval))
}

// rules serves GET (list) and POST (add) on /api/v1/rules.
func (h *Handler) rules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		rules := h.eval.Rules()
		out := make([]RuleResponse, 0, len(rules))
		for _, rule := range rules {
			out = append(out, toRuleResponse(rule))
		}
		jsonResp(w, http.StatusOK, out)

	case http.MethodPost:
		var req CreateRuleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonErr(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		rule, err := ruleFromRequest(req)
		if err != nil {
			jsonErr(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := h.eval.Register(rule); err != nil {
			jsonErr(w, http.StatusBadRequest, err.Error())
			return
		}
		jsonResp(w, http.StatusCreated, toRuleResponse(rule))

	default:
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// ruleByID serves DELETE and PATCH on /api/v1/rules/{id}.
func (h *Handler) ruleByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/rules/")
	if id == "" {
		h.rules(w, r)
		return
	}

	switch r.Method {
	case http.MethodDelete:
		if !h.eval.Remove(id) {
			jsonErr(w, http.StatusNotFound, "rule not found")
			return
		}
		jsonResp(w, http.StatusOK, map[string]string{"status": "removed"})

	case http.MethodPatch:
		var req UpdateRuleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonErr(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.Enabled == nil {
			jsonErr(w, http.StatusBadRequest, "enabled field is required")
			return
		}
		if !h.eval.SetEnabled(id, *req.Enabled) {
			jsonErr(w, http.StatusNotFound, "rule not found")
			return
		}
		jsonResp(w, http.StatusOK, map[string]bool{"enabled": *req.Enabled})

	default:
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// --- helpers ----------------------------------------------------------------

func buildStats(st *store.Store, ev *alerts.Evaluator) StatsResponse {
	s := st.Stats()
	total, enabled := ev.RuleCounts()
	return StatsResponse{
		TotalAlerts:      s.Total,
		ActiveAlerts:     s.Active,
		ResolvedAlerts:   s.Resolved,
		ActiveBySeverity: s.ActiveBySeverity,
		TotalRules:       total,
		EnabledRules:     enabled,
	}
}

// ruleFromRequest validates and converts the create-rule body.
func ruleFromRequest(req CreateRuleRequest) (model.Rule, error) {
	rule := model.Rule{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Condition:   req.Condition,
		Severity:    req.Severity,
		Enabled:     req.Enabled == nil || *req.Enabled,
	}
	if rule.Name == "" {
		rule.Name = rule.ID
	}
	if req.Cooldown != "" {
		d, err := time.ParseDuration(req.Cooldown)
		if err != nil {
			return model.Rule{}, err
		}
		rule.Cooldown = d
	}
	return rule, nil
}

func jsonResp(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
