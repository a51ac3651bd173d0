// Package api implements the HTTP REST surface of alerterd.
//
// New(store, evaluator) returns an http.Handler that serves:
//
//	GET    /api/v1/health               — liveness, alert and rule counts
//	GET    /api/v1/alerts               — all alerts (active + resolved)
//	GET    /api/v1/alerts/active        — unresolved alerts only
//	GET    /api/v1/alerts/{id}          — single alert; 404 if unknown
//	POST   /api/v1/alerts/{id}/resolve  — idempotent resolve
//	GET    /api/v1/stats                — aggregate alert statistics
//	GET    /api/v1/rules                — registered rules
//	POST   /api/v1/rules                — register a rule
//	DELETE /api/v1/rules/{id}           — remove a rule
//	PATCH  /api/v1/rules/{id}           — toggle the enabled flag
//
// All endpoints respond with Content-Type: application/json and return 405
// for unsupported methods. No external HTTP framework is used.
package api
