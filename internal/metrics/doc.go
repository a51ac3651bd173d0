// Package metrics polls the workflow application's Prometheus exposition
// endpoint and derives the typed Snapshot that rule predicates evaluate
// against.
//
// Counter families (requests, errors, request-duration histogram) are turned
// into rates by diffing consecutive polls; gauge families are copied as-is.
// The first successful poll only records the baseline and returns
// ErrNoBaseline.
package metrics
