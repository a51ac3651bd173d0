package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ZHONGZHENGXIN/investment-workflow-manager-sub003/internal/model"
)

// Default values for the service configuration.
const (
	DefaultHTTPPort          = 8090
	DefaultEvaluateInterval  = 30 * time.Second
	DefaultCleanupInterval   = time.Hour
	DefaultRetention         = 7 * 24 * time.Hour
	DefaultBroadcastInterval = 5 * time.Second
	DefaultScrapeTimeout     = 10 * time.Second
	DefaultRuleCooldown      = 5 * time.Minute
)

// Config is the full service configuration parsed from config.yaml.
// Delivery channels are not configured here; they come from the environment
// (see package notify).
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Metrics MetricsConfig `yaml:"metrics"`
	Alerts  AlertsConfig  `yaml:"alerts"`
}

// ServerConfig holds the HTTP surface settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API and WebSocket stream listen on.
	HTTPPort int `yaml:"http_port"`

	// Auth configures API client authentication.
	Auth AuthConfig `yaml:"auth"`

	// BroadcastInterval is how often the WebSocket hub pushes the live
	// alert feed to connected clients.
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`
}

// AuthConfig controls API-key authentication on the HTTP surface.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable holding the expected
	// API key. Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header the key is read from. Defaults to "x-api-key".
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// MetricsConfig describes the workflow application's metrics endpoint.
type MetricsConfig struct {
	// Endpoint is the Prometheus exposition URL of the workflow app.
	Endpoint string `yaml:"endpoint"`

	// ScrapeTimeout bounds one poll of the endpoint.
	ScrapeTimeout time.Duration `yaml:"scrape_timeout"`

	// HostMemory fills the memory gauge from the local host instead of the
	// scraped exposition.
	HostMemory bool `yaml:"host_memory"`

	// Counters lists the business-counter families captured into snapshots,
	// e.g. workflow_executions_started_total.
	Counters []string `yaml:"counters"`
}

// AlertsConfig holds evaluator cadence, store retention, and the default
// rule set re-seeded on each process start.
type AlertsConfig struct {
	EvaluateInterval time.Duration `yaml:"evaluate_interval"`
	CleanupInterval  time.Duration `yaml:"cleanup_interval"`
	Retention        time.Duration `yaml:"retention"`
	Rules            []RuleConfig  `yaml:"rules"`
}

// RuleConfig is one default rule definition.
type RuleConfig struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Condition   string         `yaml:"condition"`
	Severity    model.Severity `yaml:"severity"`

	// Cooldown suppresses re-fires after the rule triggers. Unset defaults
	// to DefaultRuleCooldown; an explicit 0 means fire on every tick.
	Cooldown *time.Duration `yaml:"cooldown"`

	// Enabled defaults to true when omitted.
	Enabled *bool `yaml:"enabled"`
}

// Rule converts the config entry to the runtime rule model.
func (r RuleConfig) Rule() model.Rule {
	cooldown := DefaultRuleCooldown
	if r.Cooldown != nil {
		cooldown = *r.Cooldown
	}
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	name := r.Name
	if name == "" {
		name = r.ID
	}
	return model.Rule{
		ID:          r.ID,
		Name:        name,
		Description: r.Description,
		Condition:   r.Condition,
		Severity:    r.Severity,
		Cooldown:    cooldown,
		Enabled:     enabled,
	}
}

// Load reads and parses the config file at path. Missing fields are filled
// with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:          DefaultHTTPPort,
			BroadcastInterval: DefaultBroadcastInterval,
		},
		Metrics: MetricsConfig{
			ScrapeTimeout: DefaultScrapeTimeout,
		},
		Alerts: AlertsConfig{
			EvaluateInterval: DefaultEvaluateInterval,
			CleanupInterval:  DefaultCleanupInterval,
			Retention:        DefaultRetention,
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}
	switch cfg.Server.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", cfg.Server.Auth.Mode)
	}
	if cfg.Server.BroadcastInterval <= 0 {
		return fmt.Errorf("server.broadcast_interval must be positive")
	}
	if cfg.Metrics.Endpoint == "" {
		return fmt.Errorf("metrics.endpoint is required")
	}
	if cfg.Metrics.ScrapeTimeout <= 0 {
		return fmt.Errorf("metrics.scrape_timeout must be positive")
	}
	if cfg.Alerts.EvaluateInterval <= 0 {
		return fmt.Errorf("alerts.evaluate_interval must be positive")
	}
	if cfg.Alerts.CleanupInterval <= 0 {
		return fmt.Errorf("alerts.cleanup_interval must be positive")
	}
	if cfg.Alerts.Retention <= 0 {
		return fmt.Errorf("alerts.retention must be positive")
	}

	seen := make(map[string]struct{}, len(cfg.Alerts.Rules))
	for _, r := range cfg.Alerts.Rules {
		if r.ID == "" {
			return fmt.Errorf("alerts.rules: rule with empty id")
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("alerts.rules: duplicate rule id %q", r.ID)
		}
		seen[r.ID] = struct{}{}
		if !r.Severity.Valid() {
			return fmt.Errorf("alerts.rules: rule %q: unknown severity %q", r.ID, r.Severity)
		}
		if r.Condition == "" {
			return fmt.Errorf("alerts.rules: rule %q: condition is required", r.ID)
		}
		if r.Cooldown != nil && *r.Cooldown < 0 {
			return fmt.Errorf("alerts.rules: rule %q: cooldown must not be negative", r.ID)
		}
	}
	return nil
}
