package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/obsidianstack/apibadges/pkg/types"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultProbeInterval = 5 * time.Minute
	DefaultProbeSpacing  = time.Second
	DefaultProbeTimeout  = 10 * time.Second
	DefaultShipInterval  = 15 * time.Second
	DefaultBufferSize    = 1000
	DefaultMetricsAddr   = ":9464"
	DefaultAPIKeyHeader  = "x-api-key"

	DefaultActiveUsersMetric = "api_active_users"
	DefaultUpHoursMetric     = "api_consecutive_up_hours"
)

// EnvPrefix prefixes every environment override, e.g. APIBADGES_AGENT_PROBE_INTERVAL.
const EnvPrefix = "APIBADGES_AGENT_"

// Config is the top-level agent configuration.
type Config struct {
	Agent AgentConfig `yaml:"agent"`
}

// AgentConfig holds all agent-side settings.
type AgentConfig struct {
	// ID identifies this agent in ingest requests. Defaults to the hostname.
	ID string `yaml:"id" env:"ID"`

	// ServerEndpoint is the base URL of the apibadges server.
	ServerEndpoint string `yaml:"server_endpoint" env:"SERVER_ENDPOINT"`

	// ProbeInterval is the length of one monitoring round.
	ProbeInterval time.Duration `yaml:"probe_interval" env:"PROBE_INTERVAL"`

	// ProbeSpacing separates consecutive probes within a round.
	ProbeSpacing time.Duration `yaml:"probe_spacing" env:"PROBE_SPACING"`

	// ProbeTimeout aborts a single probe.
	ProbeTimeout time.Duration `yaml:"probe_timeout" env:"PROBE_TIMEOUT"`

	// ShipInterval controls how often buffered snapshots are sent to the server.
	ShipInterval time.Duration `yaml:"ship_interval" env:"SHIP_INTERVAL"`

	// BufferSize is the maximum number of snapshots held in memory when
	// the server is unreachable.
	BufferSize int `yaml:"buffer_size" env:"BUFFER_SIZE"`

	// MetricsAddr is the listen address of the agent's own /metrics endpoint.
	// Empty disables it.
	MetricsAddr string `yaml:"metrics_addr" env:"METRICS_ADDR"`

	Storage StorageConfig `yaml:"storage" envPrefix:"STORAGE_"`

	// ServerAuth configures how the agent authenticates to the server.
	ServerAuth AuthConfig `yaml:"server_auth"`

	Targets []Target `yaml:"targets"`
}

// StorageConfig selects the sample history backend.
type StorageConfig struct {
	// Backend is one of: memory | file | postgres.
	Backend string `yaml:"backend" env:"BACKEND"`

	// Path is the data directory of the file backend.
	Path string `yaml:"path" env:"PATH"`

	// DSNEnv names the environment variable holding the postgres DSN.
	DSNEnv string `yaml:"dsn_env" env:"DSN_ENV"`
}

// DSN returns the postgres connection string resolved from the environment.
func (s StorageConfig) DSN() string {
	if s.DSNEnv == "" {
		return ""
	}
	return os.Getenv(s.DSNEnv)
}

// Target is one monitored endpoint.
type Target struct {
	// URL is probed with a GET on every round.
	URL string `yaml:"url"`

	// ID overrides the entity ID derived from URL.
	ID string `yaml:"id"`

	// Name is a display label.
	Name string `yaml:"name"`

	// Revenue is the base revenue used by revenue reports.
	Revenue float64 `yaml:"revenue"`

	// External holds static usage counters for the usage-based badges.
	External *types.External `yaml:"external"`

	// Usage optionally scrapes live usage counters.
	Usage *UsageConfig `yaml:"usage"`

	TLS TLSConfig `yaml:"tls"`
}

// UsageConfig points at a Prometheus exposition endpoint publishing usage
// counters for a target.
type UsageConfig struct {
	Endpoint          string     `yaml:"endpoint"`
	ActiveUsersMetric string     `yaml:"active_users_metric"`
	UpHoursMetric     string     `yaml:"up_hours_metric"`
	Auth              AuthConfig `yaml:"auth"`
	TLS               TLSConfig  `yaml:"tls"`
}

// AuthConfig specifies an authentication mode.
type AuthConfig struct {
	// Mode is one of: mtls | apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// mTLS fields, used when Mode == "mtls".
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// Header carries the API key when Mode == "apikey".
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv holds the bearer token when Mode == "bearer".
	TokenEnv string `yaml:"token_env"`

	// Basic auth fields, used when Mode == "basic".
	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string {
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string {
	if a.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(a.PasswordEnv)
}

// HeaderName returns Header, or DefaultAPIKeyHeader when unset.
func (a AuthConfig) HeaderName() string {
	if a.Header == "" {
		return DefaultAPIKeyHeader
	}
	return a.Header
}

// TLSConfig holds per-endpoint TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this for internal CAs in development environments.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults, then environment
// overrides are applied.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := env.ParseWithOptions(&cfg.Agent, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("config: env overrides: %w", err)
	}

	if cfg.Agent.ID == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.Agent.ID = host
		}
	}
	applyTargetDefaults(cfg.Agent.Targets)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			ProbeInterval: DefaultProbeInterval,
			ProbeSpacing:  DefaultProbeSpacing,
			ProbeTimeout:  DefaultProbeTimeout,
			ShipInterval:  DefaultShipInterval,
			BufferSize:    DefaultBufferSize,
			MetricsAddr:   DefaultMetricsAddr,
			Storage:       StorageConfig{Backend: "memory"},
		},
	}
}

func applyTargetDefaults(targets []Target) {
	for i := range targets {
		u := targets[i].Usage
		if u == nil {
			continue
		}
		if u.ActiveUsersMetric == "" {
			u.ActiveUsersMetric = DefaultActiveUsersMetric
		}
		if u.UpHoursMetric == "" {
			u.UpHoursMetric = DefaultUpHoursMetric
		}
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	a := cfg.Agent
	if a.ServerEndpoint == "" {
		return fmt.Errorf("agent.server_endpoint is required")
	}
	if err := validateURL(a.ServerEndpoint); err != nil {
		return fmt.Errorf("agent.server_endpoint: %w", err)
	}
	if a.ProbeInterval <= 0 {
		return fmt.Errorf("agent.probe_interval must be positive")
	}
	if a.ProbeSpacing < 0 {
		return fmt.Errorf("agent.probe_spacing must not be negative")
	}
	if a.ProbeTimeout <= 0 {
		return fmt.Errorf("agent.probe_timeout must be positive")
	}
	if a.ShipInterval <= 0 {
		return fmt.Errorf("agent.ship_interval must be positive")
	}
	if a.BufferSize <= 0 {
		return fmt.Errorf("agent.buffer_size must be positive")
	}

	switch a.Storage.Backend {
	case "memory", "":
	case "file":
		if a.Storage.Path == "" {
			return fmt.Errorf("agent.storage.path is required for the file backend")
		}
	case "postgres":
		if a.Storage.DSNEnv == "" {
			return fmt.Errorf("agent.storage.dsn_env is required for the postgres backend")
		}
	default:
		return fmt.Errorf("agent.storage: unknown backend %q", a.Storage.Backend)
	}

	switch a.ServerAuth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("agent.server_auth: unknown mode %q", a.ServerAuth.Mode)
	}

	seen := make(map[string]bool, len(a.Targets))
	for i, tgt := range a.Targets {
		if tgt.URL == "" {
			return fmt.Errorf("targets[%d]: url is required", i)
		}
		if err := validateURL(tgt.URL); err != nil {
			return fmt.Errorf("targets[%d]: %w", i, err)
		}
		if seen[tgt.URL] {
			return fmt.Errorf("targets[%d]: duplicate url %q", i, tgt.URL)
		}
		seen[tgt.URL] = true
		if tgt.Revenue < 0 {
			return fmt.Errorf("targets[%d]: revenue must not be negative", i)
		}
		if tgt.Usage != nil {
			if tgt.Usage.Endpoint == "" {
				return fmt.Errorf("targets[%d].usage: endpoint is required", i)
			}
			switch tgt.Usage.Auth.Mode {
			case "mtls", "apikey", "bearer", "basic", "none", "":
			default:
				return fmt.Errorf("targets[%d].usage: unknown auth mode %q", i, tgt.Usage.Auth.Mode)
			}
		}
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url %q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q has no host", raw)
	}
	return nil
}
