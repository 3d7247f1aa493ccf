package revenue

import (
	"fmt"
	"sort"
	"time"

	"github.com/obsidianstack/apibadges/pkg/types"
)

// HighPerformerBadges is the badge count from which an entity counts as a
// high performer in the recommendations.
const HighPerformerBadges = 3

// Report is the impact of badges across all tracked entities.
type Report struct {
	TotalEntities  int `json:"total_apis_monitored"`
	BadgedEntities int `json:"badged_apis_count"`

	// AdoptionRate is the fraction of entities holding at least one badge.
	AdoptionRate float64 `json:"badge_adoption_rate"`

	TotalBonus float64 `json:"total_revenue_boost"`

	// AverageROI is the mean ROI improvement in percent.
	AverageROI float64 `json:"average_roi_improvement"`

	Recommendations Recommendations `json:"recommendations"`
	GeneratedAt     time.Time       `json:"generated_at"`
}

// Recommendations are the follow-ups derived from the badge distribution.
type Recommendations struct {
	FocusImprovement string   `json:"focus_improvement"`
	ScaleSuccess     string   `json:"scale_success"`
	NextSteps        []string `json:"next_steps"`
}

var nextSteps = []string{
	"Notify providers when they earn a badge",
	"Publish a badge leaderboard",
	"Feature badged APIs in marketplace listings",
}

// Impact aggregates records into a Report. Only the newest record per entity
// is counted. An empty input yields a zero report.
func Impact(records []types.UsageRecord, now time.Time) Report {
	latest := Latest(records)

	rep := Report{TotalEntities: len(latest), GeneratedAt: now}
	var low, high int
	var roi float64
	for _, r := range latest {
		res := Enhanced(r.Revenue, r.BadgesActive)
		rep.TotalBonus += res.Bonus
		roi += res.ROIImprovement

		switch {
		case r.BadgesActive <= 0:
			low++
		case r.BadgesActive >= HighPerformerBadges:
			high++
		}
		if r.BadgesActive > 0 {
			rep.BadgedEntities++
		}
	}

	if rep.TotalEntities > 0 {
		n := float64(rep.TotalEntities)
		rep.AdoptionRate = float64(rep.BadgedEntities) / n
		rep.AverageROI = round2(roi / n)
	}
	rep.TotalBonus = round2(rep.TotalBonus)

	rep.Recommendations = Recommendations{
		FocusImprovement: fmt.Sprintf("%d APIs need performance optimization", low),
		ScaleSuccess:     fmt.Sprintf("%d APIs demonstrate badge system value", high),
		NextSteps:        append([]string(nil), nextSteps...),
	}
	return rep
}

// Latest returns the newest record per entity, ordered by entity ID. Ties on
// timestamp keep the later record in input order.
func Latest(records []types.UsageRecord) []types.UsageRecord {
	byID := make(map[string]types.UsageRecord, len(records))
	for _, r := range records {
		if prev, ok := byID[r.EntityID]; ok && r.Timestamp.Before(prev.Timestamp) {
			continue
		}
		byID[r.EntityID] = r
	}

	out := make([]types.UsageRecord, 0, len(byID))
	for _, r := range byID {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}
