package revenue

import "math"

// Commission rates by badge tier.
const (
	RateNoBadges         = 0.20
	RateSingleBadge      = 0.22
	RateMultiBadges      = 0.25
	RatePremiumCertified = 0.30
)

// Tier names, reported alongside the rate.
const (
	TierNone    = "no_badges"
	TierSingle  = "single_badge"
	TierMulti   = "multi_badges"
	TierPremium = "premium_certified"
)

// CommissionTier returns the commission rate for badgeCount. It is monotonic
// non-decreasing; negative counts are treated as zero.
func CommissionTier(badgeCount int) float64 {
	switch {
	case badgeCount <= 0:
		return RateNoBadges
	case badgeCount == 1:
		return RateSingleBadge
	case badgeCount <= 3:
		return RateMultiBadges
	default:
		return RatePremiumCertified
	}
}

// TierName returns the tier label for badgeCount.
func TierName(badgeCount int) string {
	switch {
	case badgeCount <= 0:
		return TierNone
	case badgeCount == 1:
		return TierSingle
	case badgeCount <= 3:
		return TierMulti
	default:
		return TierPremium
	}
}

// Result is the commission earned on a base revenue at a badge count.
type Result struct {
	BaseRevenue float64 `json:"base_revenue"`
	BadgeCount  int     `json:"badges_count"`
	Tier        string  `json:"tier"`

	// RatePct is the commission rate in percent.
	RatePct float64 `json:"commission_rate"`

	Commission float64 `json:"enhanced_commission"`

	// Bonus is the commission above what zero badges would earn.
	Bonus float64 `json:"badge_bonus"`

	// ROIImprovement is the commission uplift over the no-badge tier, in percent.
	ROIImprovement float64 `json:"roi_improvement"`
}

// Enhanced computes the commission and bonus over baseline for baseRevenue.
func Enhanced(baseRevenue float64, badgeCount int) Result {
	rate := CommissionTier(badgeCount)
	commission := baseRevenue * rate
	return Result{
		BaseRevenue:    baseRevenue,
		BadgeCount:     max(badgeCount, 0),
		Tier:           TierName(badgeCount),
		RatePct:        round2(rate * 100),
		Commission:     commission,
		Bonus:          commission - baseRevenue*RateNoBadges,
		ROIImprovement: round2((rate/RateNoBadges - 1) * 100),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
