package api

import (
	"github.com/obsidianstack/apibadges/pkg/badges"
	"github.com/obsidianstack/apibadges/pkg/revenue"
	"github.com/obsidianstack/apibadges/pkg/stats"
	"github.com/obsidianstack/apibadges/pkg/types"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status         string  `json:"status"`
	EntityCount    int     `json:"entity_count"`
	BadgedCount    int     `json:"badged_count"`
	AvgReliability float64 `json:"avg_reliability"`
	AlertCount     int     `json:"alert_count"`
	GeneratedAt    string  `json:"generated_at"` // RFC3339
}

// EntityResponse is one entity in GET /api/v1/entities or
// GET /api/v1/entities/{id}.
type EntityResponse struct {
	*types.Snapshot
	Diagnostics []DiagnosticHint `json:"diagnostics"`
	LastSeen    string           `json:"last_seen"` // RFC3339
}

// BadgesResponse is the payload for GET /api/v1/entities/{id}/badges.
type BadgesResponse struct {
	EntityID   string        `json:"entity_id"`
	Badges     []types.Badge `json:"badges"`
	Count      int           `json:"count"`
	Confidence string        `json:"confidence"`
}

// TierResponse is one row of the commission structure.
type TierResponse struct {
	Tier      string `json:"tier"`
	MinBadges int    `json:"min_badges"`
	// RatePct is the commission rate in percent.
	RatePct float64 `json:"commission_rate"`
}

// RulesResponse is the payload for GET /api/v1/badges/rules.
type RulesResponse struct {
	Rules      []badges.Rule  `json:"available_badges"`
	Commission []TierResponse `json:"commission_structure"`
	MinSamples int            `json:"min_samples"`
}

// EvaluateRequest is the body of POST /api/v1/evaluate and one element of a
// bulk request.
type EvaluateRequest struct {
	EntityID string          `json:"entity_id"`
	History  []types.Sample  `json:"history"`
	External *types.External `json:"external,omitempty"`
	// BaseRevenue feeds the business impact; zero when absent.
	BaseRevenue float64 `json:"base_revenue,omitempty"`
}

// BadgeSummary condenses the earned badges.
type BadgeSummary struct {
	Total      int      `json:"total_badges"`
	BadgeTypes []string `json:"badge_types"`
	Confidence string   `json:"confidence"`
}

// EvaluateResponse is the payload for POST /api/v1/evaluate.
type EvaluateResponse struct {
	EntityID       string            `json:"entity_id"`
	Badges         []types.Badge     `json:"badges"`
	Summary        BadgeSummary      `json:"badge_summary"`
	Aggregates     badges.Aggregates `json:"aggregates"`
	Pattern        stats.Pattern     `json:"pattern"`
	Trend          stats.Trend       `json:"trend"`
	BusinessImpact revenue.Result    `json:"business_impact"`
	EvaluatedAt    string            `json:"evaluated_at"` // RFC3339
}

// BulkRequest is the body of POST /api/v1/evaluate/bulk.
type BulkRequest struct {
	Entities []EvaluateRequest `json:"entities"`
}

// BulkSummary totals a bulk evaluation.
type BulkSummary struct {
	TotalEntities    int     `json:"processed_apis"`
	TotalBadges      int     `json:"total_badges_awarded"`
	AvgBadgesPerAPI  float64 `json:"avg_badges_per_api"`
	ProcessingTimeMs int64   `json:"processing_time_ms"`
}

// BulkResponse is the payload for POST /api/v1/evaluate/bulk.
type BulkResponse struct {
	Results []EvaluateResponse `json:"results"`
	Summary BulkSummary        `json:"processing_summary"`
}

// SnapshotResponse is the payload for GET /api/v1/snapshot and the data of
// every WebSocket message.
type SnapshotResponse struct {
	Entities    []EntityResponse `json:"entities"`
	GeneratedAt string           `json:"generated_at"` // RFC3339
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
