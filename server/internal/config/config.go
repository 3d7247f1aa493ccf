package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultHTTPPort      = 8080
	DefaultSnapshotTTL   = 30 * time.Minute
	DefaultWSInterval    = 5 * time.Second
	DefaultUsageHistory  = 1000
	DefaultAPIKeyHeader  = "x-api-key"
	DefaultAlertCooldown = 15 * time.Minute
)

// EnvPrefix prefixes every environment override, e.g. APIBADGES_SERVER_HTTP_PORT.
const EnvPrefix = "APIBADGES_SERVER_"

// Config holds the server-side configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// HTTPPort serves the REST API, ingest, WebSocket stream and /metrics.
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`

	Auth     AuthConfig     `yaml:"auth" envPrefix:"AUTH_"`
	Snapshot SnapshotConfig `yaml:"snapshot" envPrefix:"SNAPSHOT_"`
	WS       WSConfig       `yaml:"ws" envPrefix:"WS_"`
	Usage    UsageConfig    `yaml:"usage" envPrefix:"USAGE_"`
	Alerts   AlertsConfig   `yaml:"alerts"`
}

// AuthConfig controls client authentication on ingest and usage writes.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode" env:"MODE"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	KeyEnv string `yaml:"key_env" env:"KEY_ENV"`

	// Header is the HTTP header to read the key from. Defaults to "x-api-key".
	Header string `yaml:"header" env:"HEADER"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default.
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return DefaultAPIKeyHeader
}

// SnapshotConfig controls in-memory snapshot retention.
type SnapshotConfig struct {
	// TTL is how long an entity's snapshot stays live after its last update.
	TTL time.Duration `yaml:"ttl" env:"TTL"`
}

// WSConfig controls the live stream.
type WSConfig struct {
	Interval time.Duration `yaml:"interval" env:"INTERVAL"`
}

// UsageConfig controls the usage ledger.
type UsageConfig struct {
	// History caps the records kept per entity.
	History int `yaml:"history" env:"HISTORY"`
}

// AlertsConfig holds alerting rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`

	// BadgeChanges emits an info alert whenever an entity earns or loses a badge.
	BadgeChanges bool `yaml:"badge_changes"`
}

// AlertRule defines one threshold-based alert condition.
type AlertRule struct {
	// Name is the human-readable alert identifier, used as the deduplication key.
	Name string `yaml:"name"`

	// Condition is a simple expression: "avg_uptime < 99", "reliability < 80",
	// "cert_days_left < 14", "stability == unstable".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	// Defaults to 15 minutes if zero.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}
	if err := env.ParseWithOptions(&cfg.Server, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("server config: env: %w", err)
	}
	applyRuleDefaults(cfg.Server.Alerts.Rules)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
			Snapshot: SnapshotConfig{TTL: DefaultSnapshotTTL},
			WS:       WSConfig{Interval: DefaultWSInterval},
			Usage:    UsageConfig{History: DefaultUsageHistory},
		},
	}
}

func applyRuleDefaults(rules []AlertRule) {
	for i := range rules {
		if rules[i].Cooldown == 0 {
			rules[i].Cooldown = DefaultAlertCooldown
		}
		if rules[i].Severity == "" {
			rules[i].Severity = "warning"
		}
	}
}

func validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	switch s.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}
	if s.Auth.Mode == "apikey" && s.Auth.KeyEnv == "" {
		return fmt.Errorf("server.auth.key_env is required when mode is apikey")
	}
	if s.Snapshot.TTL <= 0 {
		return fmt.Errorf("server.snapshot.ttl must be positive")
	}
	if s.WS.Interval <= 0 {
		return fmt.Errorf("server.ws.interval must be positive")
	}
	if s.Usage.History <= 0 {
		return fmt.Errorf("server.usage.history must be positive")
	}

	seen := make(map[string]bool, len(s.Alerts.Rules))
	for i, r := range s.Alerts.Rules {
		if r.Name == "" {
			return fmt.Errorf("server.alerts.rules[%d]: name is required", i)
		}
		if seen[r.Name] {
			return fmt.Errorf("server.alerts.rules[%d]: duplicate name %q", i, r.Name)
		}
		seen[r.Name] = true
		if strings.TrimSpace(r.Condition) == "" {
			return fmt.Errorf("server.alerts.rules[%d] (%s): condition is required", i, r.Name)
		}
		switch r.Severity {
		case "critical", "warning", "info":
		default:
			return fmt.Errorf("server.alerts.rules[%d] (%s): severity %q unknown", i, r.Name, r.Severity)
		}
	}
	for i, w := range s.Alerts.Webhooks {
		switch w.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("server.alerts.webhooks[%d]: type %q unknown: want slack|teams|http", i, w.Type)
		}
		if w.URLEnv == "" {
			return fmt.Errorf("server.alerts.webhooks[%d]: url_env is required", i)
		}
	}
	return nil
}
