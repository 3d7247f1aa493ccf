package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const minimal = `
agent:
  server_endpoint: "http://localhost:8080"
  targets:
    - url: "https://api.example.com/health"
`

func TestLoad_Valid(t *testing.T) {
	yaml := `
agent:
  id: edge-1
  server_endpoint: "http://localhost:8080"
  probe_interval: 1m
  probe_spacing: 250ms
  probe_timeout: 3s
  buffer_size: 500
  metrics_addr: ":9999"
  storage:
    backend: file
    path: /var/lib/apibadges
  server_auth:
    mode: apikey
    key_env: APIBADGES_KEY
  targets:
    - url: "https://api.example.com/health"
      name: Example
      revenue: 1200
      external:
        active_users: 1500
        consecutive_up_hours: 800
    - url: "http://internal.example.com"
      id: internal
      usage:
        endpoint: "http://internal.example.com/metrics"
`
	cfg := loadFromString(t, yaml)
	a := cfg.Agent

	if a.ID != "edge-1" {
		t.Errorf("id: got %q", a.ID)
	}
	if a.ProbeInterval != time.Minute || a.ProbeSpacing != 250*time.Millisecond || a.ProbeTimeout != 3*time.Second {
		t.Errorf("probe timings: got %v/%v/%v", a.ProbeInterval, a.ProbeSpacing, a.ProbeTimeout)
	}
	if a.BufferSize != 500 {
		t.Errorf("buffer_size: got %d", a.BufferSize)
	}
	if a.Storage.Backend != "file" || a.Storage.Path != "/var/lib/apibadges" {
		t.Errorf("storage: got %+v", a.Storage)
	}
	if len(a.Targets) != 2 {
		t.Fatalf("targets: got %d, want 2", len(a.Targets))
	}
	first := a.Targets[0]
	if first.Revenue != 1200 || first.External == nil || first.External.ActiveUsers != 1500 {
		t.Errorf("targets[0]: got %+v", first)
	}
	second := a.Targets[1]
	if second.ID != "internal" || second.Usage == nil {
		t.Fatalf("targets[1]: got %+v", second)
	}
	if second.Usage.ActiveUsersMetric != DefaultActiveUsersMetric || second.Usage.UpHoursMetric != DefaultUpHoursMetric {
		t.Errorf("usage metric defaults: got %q / %q", second.Usage.ActiveUsersMetric, second.Usage.UpHoursMetric)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadFromString(t, minimal)
	a := cfg.Agent

	if a.ProbeInterval != DefaultProbeInterval {
		t.Errorf("default probe_interval: got %v, want %v", a.ProbeInterval, DefaultProbeInterval)
	}
	if a.ProbeSpacing != DefaultProbeSpacing {
		t.Errorf("default probe_spacing: got %v, want %v", a.ProbeSpacing, DefaultProbeSpacing)
	}
	if a.ProbeTimeout != DefaultProbeTimeout {
		t.Errorf("default probe_timeout: got %v, want %v", a.ProbeTimeout, DefaultProbeTimeout)
	}
	if a.BufferSize != DefaultBufferSize {
		t.Errorf("default buffer_size: got %d, want %d", a.BufferSize, DefaultBufferSize)
	}
	if a.MetricsAddr != DefaultMetricsAddr {
		t.Errorf("default metrics_addr: got %q", a.MetricsAddr)
	}
	if a.Storage.Backend != "memory" {
		t.Errorf("default storage backend: got %q", a.Storage.Backend)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("APIBADGES_AGENT_PROBE_INTERVAL", "30s")
	t.Setenv("APIBADGES_AGENT_SERVER_ENDPOINT", "https://badges.example.com")
	t.Setenv("APIBADGES_AGENT_STORAGE_BACKEND", "postgres")
	t.Setenv("APIBADGES_AGENT_STORAGE_DSN_ENV", "PG_DSN")

	cfg := loadFromString(t, minimal)
	a := cfg.Agent
	if a.ProbeInterval != 30*time.Second {
		t.Errorf("probe_interval override: got %v", a.ProbeInterval)
	}
	if a.ServerEndpoint != "https://badges.example.com" {
		t.Errorf("server_endpoint override: got %q", a.ServerEndpoint)
	}
	if a.Storage.Backend != "postgres" || a.Storage.DSNEnv != "PG_DSN" {
		t.Errorf("storage override: got %+v", a.Storage)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing server endpoint", `
agent:
  targets:
    - url: "https://api.example.com"
`},
		{"server endpoint without scheme", `
agent:
  server_endpoint: "localhost:8080"
`},
		{"target without url", `
agent:
  server_endpoint: "http://localhost:8080"
  targets:
    - name: nothing
`},
		{"target with ftp url", `
agent:
  server_endpoint: "http://localhost:8080"
  targets:
    - url: "ftp://files.example.com"
`},
		{"duplicate target", `
agent:
  server_endpoint: "http://localhost:8080"
  targets:
    - url: "https://api.example.com"
    - url: "https://api.example.com"
`},
		{"negative revenue", `
agent:
  server_endpoint: "http://localhost:8080"
  targets:
    - url: "https://api.example.com"
      revenue: -5
`},
		{"unknown storage backend", `
agent:
  server_endpoint: "http://localhost:8080"
  storage:
    backend: sqlite
`},
		{"file backend without path", `
agent:
  server_endpoint: "http://localhost:8080"
  storage:
    backend: file
`},
		{"unknown usage auth mode", `
agent:
  server_endpoint: "http://localhost:8080"
  targets:
    - url: "https://api.example.com"
      usage:
        endpoint: "https://api.example.com/metrics"
        auth:
          mode: magictoken
`},
		{"zero probe timeout", `
agent:
  server_endpoint: "http://localhost:8080"
  probe_timeout: 0s
`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := loadStringErr(t, tc.yaml); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestAuthConfig_Secrets(t *testing.T) {
	t.Setenv("TEST_API_KEY", "supersecret")
	t.Setenv("TEST_BEARER_TOKEN", "mytoken")
	t.Setenv("TEST_PASSWORD", "hunter2")

	a := AuthConfig{KeyEnv: "TEST_API_KEY", TokenEnv: "TEST_BEARER_TOKEN", PasswordEnv: "TEST_PASSWORD"}
	if got := a.Key(); got != "supersecret" {
		t.Errorf("Key(): got %q", got)
	}
	if got := a.Token(); got != "mytoken" {
		t.Errorf("Token(): got %q", got)
	}
	if got := a.Password(); got != "hunter2" {
		t.Errorf("Password(): got %q", got)
	}
	if got := (AuthConfig{}).Key(); got != "" {
		t.Errorf("Key() with no KeyEnv: got %q, want empty", got)
	}
}

func TestAuthConfig_HeaderName(t *testing.T) {
	if got := (AuthConfig{}).HeaderName(); got != DefaultAPIKeyHeader {
		t.Errorf("default header: got %q", got)
	}
	if got := (AuthConfig{Header: "X-Token"}).HeaderName(); got != "X-Token" {
		t.Errorf("custom header: got %q", got)
	}
}

func TestStorageConfig_DSN(t *testing.T) {
	t.Setenv("TEST_PG_DSN", "postgres://u:p@localhost/db")
	if got := (StorageConfig{DSNEnv: "TEST_PG_DSN"}).DSN(); got != "postgres://u:p@localhost/db" {
		t.Errorf("DSN(): got %q", got)
	}
}

// --- watch ------------------------------------------------------------------

func TestWatch_ReloadsAndSkipsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(minimal), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 4)
	go Watch(ctx, path, func(c *Config) { got <- c }) //nolint:errcheck
	time.Sleep(100 * time.Millisecond)

	// Invalid content is ignored.
	if err := os.WriteFile(path, []byte("agent: {}\n"), 0o600); err != nil {
		t.Fatalf("write invalid: %v", err)
	}
	select {
	case c := <-got:
		t.Fatalf("onChange called for invalid config: %+v", c)
	case <-time.After(200 * time.Millisecond):
	}

	updated := minimal + `    - url: "https://second.example.com"
`
	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		t.Fatalf("write valid: %v", err)
	}
	select {
	case c := <-got:
		if len(c.Agent.Targets) != 2 {
			t.Errorf("reloaded targets: got %d, want 2", len(c.Agent.Targets))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("onChange not called after a valid write")
	}
}

// loadFromString writes yaml to a temp file and calls Load, failing on error.
func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := loadStringErr(t, content)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	return cfg
}

// loadStringErr writes yaml to a temp file and calls Load, returning any error.
func loadStringErr(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return Load(path)
}
