// Package config loads and watches the agent configuration file.
//
// Top-level types:
//   - Config{Agent}: full tree parsed from YAML
//   - AgentConfig: server_endpoint, probe_interval, probe_spacing,
//     probe_timeout, ship_interval, buffer_size, metrics_addr, storage,
//     server_auth, targets[]
//   - Target: url, id, name, revenue, external counters, usage endpoint, tls
//   - AuthConfig: mode (mtls|apikey|bearer|basic|none) plus the env var names
//     that hold secrets; Key(), Token() and Password() resolve them
//
// Load(path) applies defaults (5m probe interval, 1s spacing, 10s timeout,
// 1000 buffer, :9464 metrics), parses the YAML, applies APIBADGES_AGENT_*
// environment overrides and validates.
//
// Watch(ctx, path, onChange) uses fsnotify to reload the file on write and
// keeps the previous config when the new one does not validate.
package config
