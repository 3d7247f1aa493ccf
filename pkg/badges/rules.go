package badges

import (
	"fmt"
	"math"

	"github.com/obsidianstack/apibadges/pkg/stats"
)

// Badge identifiers.
const (
	TrustedAPI      = "trusted_api"
	LightningFast   = "lightning_fast"
	BlazingSpeed    = "blazing_speed"
	EnterpriseReady = "enterprise_ready"
	CommunityProven = "community_proven"
	HighlyAdopted   = "highly_adopted"
	ZeroDowntime    = "zero_downtime"
)

// Criterion fields.
const (
	FieldAvgUptime          = "avg_uptime"
	FieldAvgResponseMs      = "avg_response_ms"
	FieldSamples            = "samples"
	FieldReliability        = "reliability"
	FieldStability          = "stability"
	FieldActiveUsers        = "active_users"
	FieldConsecutiveUpHours = "consecutive_up_hours"
)

// Criterion is one threshold test: Field Op Value, or Field == Class for
// the stability classification.
type Criterion struct {
	Field string  `json:"field"`
	Op    string  `json:"op"`
	Value float64 `json:"value,omitempty"`
	Class string  `json:"class,omitempty"`
}

func (c Criterion) String() string {
	if c.Class != "" {
		return fmt.Sprintf("%s %s %s", c.Field, c.Op, c.Class)
	}
	return fmt.Sprintf("%s %s %g", c.Field, c.Op, c.Value)
}

// Met reports whether a satisfies c. Unknown fields and operators never match.
func (c Criterion) Met(a Aggregates) bool {
	if c.Field == FieldStability {
		return c.Op == "==" && string(a.Stability) == c.Class
	}
	v, ok := a.field(c.Field)
	if !ok {
		return false
	}
	return compareFloat(v, c.Op, c.Value)
}

// Rule is one badge definition.
type Rule struct {
	ID          string      `json:"id"`
	DisplayName string      `json:"name"`
	Icon        string      `json:"icon"`
	Summary     string      `json:"summary"`
	Criteria    []Criterion `json:"criteria"`

	// External marks rules that need externally supplied usage counters.
	External bool `json:"requires_external"`

	describe func(Aggregates) string
}

// Match reports whether every criterion of r holds for a.
func (r Rule) Match(a Aggregates) bool {
	if r.External && a.External == nil {
		return false
	}
	for _, c := range r.Criteria {
		if !c.Met(a) {
			return false
		}
	}
	return true
}

// Describe renders the earned-badge description for a.
func (r Rule) Describe(a Aggregates) string {
	if r.describe == nil {
		return r.Summary
	}
	return r.describe(a)
}

var catalogue = []Rule{
	{
		ID:          TrustedAPI,
		DisplayName: "Trusted API",
		Icon:        "🟢",
		Summary:     "99%+ uptime over at least 50 probes",
		Criteria: []Criterion{
			{Field: FieldAvgUptime, Op: ">=", Value: 99},
			{Field: FieldSamples, Op: ">=", Value: 50},
		},
		describe: func(a Aggregates) string {
			return fmt.Sprintf("%.1f%% uptime verified", a.AvgUptime)
		},
	},
	{
		ID:          LightningFast,
		DisplayName: "Lightning Fast",
		Icon:        "⚡",
		Summary:     "Average response time at or under 100ms",
		Criteria: []Criterion{
			{Field: FieldAvgResponseMs, Op: "<=", Value: 100},
		},
		describe: func(a Aggregates) string {
			return fmt.Sprintf("%dms average response", roundMs(a.AvgResponseMs))
		},
	},
	{
		ID:          BlazingSpeed,
		DisplayName: "Blazing Speed",
		Icon:        "🚀",
		Summary:     "Average response time at or under 50ms with excellent stability",
		Criteria: []Criterion{
			{Field: FieldAvgResponseMs, Op: "<=", Value: 50},
			{Field: FieldStability, Op: "==", Class: string(stats.StabilityExcellent)},
		},
		describe: func(a Aggregates) string {
			return fmt.Sprintf("%dms with excellent stability", roundMs(a.AvgResponseMs))
		},
	},
	{
		ID:          EnterpriseReady,
		DisplayName: "Enterprise Ready",
		Icon:        "🛡️",
		Summary:     "99.9%+ uptime, 200ms responses and a reliability score of 90+",
		Criteria: []Criterion{
			{Field: FieldAvgUptime, Op: ">=", Value: 99.9},
			{Field: FieldAvgResponseMs, Op: "<=", Value: 200},
			{Field: FieldReliability, Op: ">=", Value: 90},
		},
		describe: func(a Aggregates) string {
			return fmt.Sprintf("%d%% reliability score", a.Reliability)
		},
	},
	{
		ID:          CommunityProven,
		DisplayName: "Community Proven",
		Icon:        "👥",
		Summary:     "1000+ active users with reliable performance",
		External:    true,
		Criteria: []Criterion{
			{Field: FieldActiveUsers, Op: ">=", Value: 1000},
			{Field: FieldAvgUptime, Op: ">=", Value: 95},
		},
		describe: func(a Aggregates) string {
			return fmt.Sprintf("%.0f active users with reliable performance", a.External.ActiveUsers)
		},
	},
	{
		ID:          HighlyAdopted,
		DisplayName: "Highly Adopted",
		Icon:        "🌍",
		Summary:     "10000+ active users",
		External:    true,
		Criteria: []Criterion{
			{Field: FieldActiveUsers, Op: ">=", Value: 10000},
		},
		describe: func(a Aggregates) string {
			return fmt.Sprintf("%.0f active users", a.External.ActiveUsers)
		},
	},
	{
		ID:          ZeroDowntime,
		DisplayName: "Zero Downtime",
		Icon:        "💎",
		Summary:     "99.99%+ uptime sustained for 720 consecutive hours",
		External:    true,
		Criteria: []Criterion{
			{Field: FieldAvgUptime, Op: ">=", Value: 99.99},
			{Field: FieldConsecutiveUpHours, Op: ">=", Value: 720},
		},
		describe: func(a Aggregates) string {
			return fmt.Sprintf("%.2f%% uptime over %.0f consecutive hours",
				a.AvgUptime, a.External.ConsecutiveUpHours)
		},
	},
}

// Rules returns a copy of the badge catalogue in evaluation order.
func Rules() []Rule {
	out := make([]Rule, len(catalogue))
	copy(out, catalogue)
	return out
}

// Lookup returns the rule with the given badge ID.
func Lookup(id string) (Rule, bool) {
	for _, r := range catalogue {
		if r.ID == id {
			return r, true
		}
	}
	return Rule{}, false
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	default:
		return false
	}
}

func roundMs(v float64) int {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0
	}
	return int(math.Round(v))
}
