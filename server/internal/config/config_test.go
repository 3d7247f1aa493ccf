package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	// The agent section is ignored; server section absent.
	p := writeConfig(t, `agent:
  server_endpoint: "http://localhost:8080"
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.Server
	if s.HTTPPort != DefaultHTTPPort {
		t.Errorf("http_port: got %d, want %d", s.HTTPPort, DefaultHTTPPort)
	}
	if s.Snapshot.TTL != DefaultSnapshotTTL {
		t.Errorf("snapshot.ttl: got %v, want %v", s.Snapshot.TTL, DefaultSnapshotTTL)
	}
	if s.WS.Interval != DefaultWSInterval {
		t.Errorf("ws.interval: got %v, want %v", s.WS.Interval, DefaultWSInterval)
	}
	if s.Usage.History != DefaultUsageHistory {
		t.Errorf("usage.history: got %d, want %d", s.Usage.History, DefaultUsageHistory)
	}
}

func TestLoad_FullServer(t *testing.T) {
	p := writeConfig(t, `server:
  http_port: 9091
  auth:
    mode: apikey
    key_env: MY_KEY
    header: x-badges-key
  snapshot:
    ttl: 10m
  ws:
    interval: 2s
  usage:
    history: 50
  alerts:
    badge_changes: true
    rules:
      - name: slow
        condition: "avg_response_ms > 500"
        severity: critical
        cooldown: 1m
      - name: flaky
        condition: "stability == unstable"
    webhooks:
      - type: slack
        url_env: SLACK_URL
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.Server
	if s.HTTPPort != 9091 {
		t.Errorf("http_port: got %d, want 9091", s.HTTPPort)
	}
	if s.Auth.EffectiveHeader() != "x-badges-key" {
		t.Errorf("header: got %q, want x-badges-key", s.Auth.EffectiveHeader())
	}
	if s.Snapshot.TTL != 10*time.Minute || s.WS.Interval != 2*time.Second || s.Usage.History != 50 {
		t.Errorf("durations: ttl=%v ws=%v history=%d", s.Snapshot.TTL, s.WS.Interval, s.Usage.History)
	}
	if !s.Alerts.BadgeChanges {
		t.Error("badge_changes: got false, want true")
	}
	if len(s.Alerts.Rules) != 2 {
		t.Fatalf("rules: got %d, want 2", len(s.Alerts.Rules))
	}
	if s.Alerts.Rules[0].Cooldown != time.Minute {
		t.Errorf("rules[0].cooldown: got %v, want 1m", s.Alerts.Rules[0].Cooldown)
	}
	if r := s.Alerts.Rules[1]; r.Cooldown != DefaultAlertCooldown || r.Severity != "warning" {
		t.Errorf("rules[1] defaults: cooldown=%v severity=%q", r.Cooldown, r.Severity)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("APIBADGES_SERVER_HTTP_PORT", "9999")
	t.Setenv("APIBADGES_SERVER_SNAPSHOT_TTL", "1h")
	t.Setenv("APIBADGES_SERVER_AUTH_MODE", "none")
	p := writeConfig(t, `server:
  http_port: 8081
  auth:
    mode: apikey
    key_env: K
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.HTTPPort != 9999 {
		t.Errorf("http_port: got %d, want 9999", cfg.Server.HTTPPort)
	}
	if cfg.Server.Snapshot.TTL != time.Hour {
		t.Errorf("snapshot.ttl: got %v, want 1h", cfg.Server.Snapshot.TTL)
	}
	if cfg.Server.Auth.Mode != "none" {
		t.Errorf("auth.mode: got %q, want none", cfg.Server.Auth.Mode)
	}
}

func TestLoad_DefaultHeader(t *testing.T) {
	p := writeConfig(t, `server:
  auth:
    mode: apikey
    key_env: K
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if h := cfg.Server.Auth.EffectiveHeader(); h != "x-api-key" {
		t.Errorf("EffectiveHeader: got %q, want x-api-key", h)
	}
}

func TestLoad_KeyEnvResolution(t *testing.T) {
	t.Setenv("TEST_SERVER_KEY", "supersecret")
	t.Setenv("TEST_WEBHOOK", "https://hooks.example.com/x")
	p := writeConfig(t, `server:
  auth:
    mode: apikey
    key_env: TEST_SERVER_KEY
  alerts:
    webhooks:
      - type: http
        url_env: TEST_WEBHOOK
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if k := cfg.Server.Auth.Key(); k != "supersecret" {
		t.Errorf("Key(): got %q, want supersecret", k)
	}
	if u := cfg.Server.Alerts.Webhooks[0].URL(); u != "https://hooks.example.com/x" {
		t.Errorf("URL(): got %q", u)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown auth mode", "server:\n  auth:\n    mode: oauth2\n", "auth.mode"},
		{"apikey without key_env", "server:\n  auth:\n    mode: apikey\n", "key_env"},
		{"port out of range", "server:\n  http_port: 70000\n", "http_port"},
		{"zero ttl", "server:\n  snapshot:\n    ttl: 0s\n", "snapshot.ttl"},
		{"negative history", "server:\n  usage:\n    history: -1\n", "usage.history"},
		{"rule without name", "server:\n  alerts:\n    rules:\n      - condition: \"reliability < 50\"\n", "name is required"},
		{"rule without condition", "server:\n  alerts:\n    rules:\n      - name: x\n", "condition is required"},
		{"duplicate rule", "server:\n  alerts:\n    rules:\n      - name: x\n        condition: \"a > 1\"\n      - name: x\n        condition: \"a > 2\"\n", "duplicate"},
		{"bad severity", "server:\n  alerts:\n    rules:\n      - name: x\n        condition: \"a > 1\"\n        severity: panic\n", "severity"},
		{"pagerduty webhook", "server:\n  alerts:\n    webhooks:\n      - type: pagerduty\n        url_env: X\n", "type"},
		{"webhook without url_env", "server:\n  alerts:\n    webhooks:\n      - type: slack\n", "url_env"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}
