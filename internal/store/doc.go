// Package store implements the in-memory alert store: append during normal
// operation, idempotent resolve, aggregate statistics, and a periodic
// cleanup sweep that removes resolved alerts past the retention window.
package store
