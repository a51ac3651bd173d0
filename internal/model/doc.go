// Package model defines the shared data types of the alerting service:
// rules, alerts, severities, and aggregate statistics.
package model
