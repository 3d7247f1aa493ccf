package types

import "time"

// Uptime values carried by a Sample. Uptime is a binary signal per probe.
const (
	UptimeUp   = 100.0
	UptimeDown = 0.0
)

// Sample is the immutable result of one probe against one entity.
type Sample struct {
	EntityID       string    `json:"entity_id"`
	Timestamp      time.Time `json:"timestamp"`
	Success        bool      `json:"success"`
	StatusCode     int       `json:"status_code"`
	ResponseTimeMs float64   `json:"response_time_ms"`
	Uptime         float64   `json:"uptime"`
	ErrorMessage   string    `json:"error_message,omitempty"`
}

// Badge is a derived, recomputed-on-demand certification. It is a view over
// the sample history and is never stored as authoritative state.
type Badge struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"name"`
	Icon        string    `json:"icon"`
	Description string    `json:"description"`
	EarnedAt    time.Time `json:"earned_at"`
	Confidence  string    `json:"confidence"`
}

// External holds usage counters that cannot be derived from probe history.
// A nil *External means "not supplied" and the rules that depend on it never fire.
type External struct {
	ActiveUsers        float64 `json:"active_users" yaml:"active_users"`
	ConsecutiveUpHours float64 `json:"consecutive_up_hours" yaml:"consecutive_up_hours"`
}

// CertStatus describes the TLS leaf certificate of an https target.
type CertStatus struct {
	Endpoint string `json:"endpoint"`
	Status   string `json:"status"` // valid | expiring | expired | unreachable
	DaysLeft int    `json:"days_left"`
	Issuer   string `json:"issuer,omitempty"`
	NotAfter string `json:"not_after,omitempty"` // RFC3339
}

// Snapshot is the state of one monitored entity after a monitoring cycle.
// The agent ships it to the server, which keeps the latest one per entity.
type Snapshot struct {
	EntityID    string    `json:"entity_id"`
	Name        string    `json:"name,omitempty"`
	URL         string    `json:"url"`
	GeneratedAt time.Time `json:"generated_at"`

	Latest      Sample `json:"latest"`
	SampleCount int    `json:"sample_count"`

	AvgUptime float64 `json:"avg_uptime"`
	// AvgResponseMs is nil when the history holds no successful sample.
	AvgResponseMs *float64 `json:"avg_response_ms,omitempty"`
	Stability     string   `json:"stability"`
	Trend         string   `json:"trend"`
	Reliability   int      `json:"reliability"`
	Anomalies     int      `json:"anomalies"`
	Confidence    string   `json:"confidence"`

	Badges   []Badge     `json:"badges"`
	External *External   `json:"external,omitempty"`
	Cert     *CertStatus `json:"cert,omitempty"`

	// Revenue is the configured base revenue used for revenue reporting.
	Revenue float64 `json:"revenue,omitempty"`
}

// IngestRequest is the body an agent POSTs to the server's ingest endpoint.
type IngestRequest struct {
	AgentID   string      `json:"agent_id,omitempty"`
	Snapshots []*Snapshot `json:"snapshots"`
}

// IngestResponse acknowledges an IngestRequest.
type IngestResponse struct {
	OK       bool   `json:"ok"`
	Accepted int    `json:"accepted"`
	Message  string `json:"message,omitempty"`
}

// UsageRecord is one analytics data point for an entity: traffic, revenue and
// the number of badges active at the time.
type UsageRecord struct {
	EntityID     string    `json:"entity_id"`
	Timestamp    time.Time `json:"timestamp"`
	Requests     int64     `json:"requests"`
	UniqueUsers  int64     `json:"unique_users"`
	Revenue      float64   `json:"revenue"`
	BadgesActive int       `json:"badges_active"`
}
