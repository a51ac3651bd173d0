// Package config loads and validates the alerterd YAML configuration and
// watches it for hot-reload of the rule set. Secrets (API key) resolve from
// the environment via *_env indirection; delivery channels are configured
// entirely through the environment (see package notify).
package config
