// Package alerts implements the rule evaluation engine: a registered set of
// named rules evaluated on a fixed interval against the latest metrics
// snapshot, with a per-rule cooldown window. Fired alerts go to the store
// and to the notifier; a failing rule is logged and skipped without
// aborting the tick.
package alerts
