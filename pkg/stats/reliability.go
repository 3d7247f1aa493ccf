package stats

import "github.com/obsidianstack/apibadges/pkg/types"

// Points of the reliability score. They must sum to 100.
const (
	pointsUptime      = 40
	pointsSpeed       = 30
	pointsConsistency = 30
)

// Cut-offs used by the reliability score.
const (
	// UptimeFloor is the per-sample uptime a sample must exceed to count as up.
	UptimeFloor = 95.0

	// FastResponseMs is the response time a sample must stay under to count as fast.
	FastResponseMs = 500.0

	// pointsConsistencyPartial is the consistency credit when response times
	// are anything other than Excellent.
	pointsConsistencyPartial = pointsConsistency / 2
)

// Confidence values reported by Analyze.
const (
	ConfidenceHigh = "high"
	ConfidenceLow  = "low"

	PatternInsufficientData = "insufficient_data"
)

// MinPatternSamples is the history length below which Analyze reports
// insufficient data.
const MinPatternSamples = 10

// ReliabilityScore returns the weighted composite reliability of history as an
// integer in [0, 100], rounded half-up. An empty history scores 0.
func ReliabilityScore(history []types.Sample) int {
	if len(history) == 0 {
		return 0
	}

	n := len(history)
	var up, fast int
	responses := make([]float64, 0, len(history))
	for _, s := range history {
		if s.Uptime > UptimeFloor {
			up++
		}
		if s.ResponseTimeMs < FastResponseMs {
			fast++
		}
		responses = append(responses, s.ResponseTimeMs)
	}

	consistency := pointsConsistencyPartial
	if StabilityOf(responses) == StabilityExcellent {
		consistency = pointsConsistency
	}

	// Score = num/n exactly; integer division keeps x.5 from rounding down.
	num := pointsUptime*up + pointsSpeed*fast + consistency*n
	return clampScore((2*num + n) / (2 * n))
}

// Pattern is the summary of a history used to qualify badge confidence.
type Pattern struct {
	Confidence        string    `json:"confidence"`
	Pattern           string    `json:"pattern,omitempty"`
	UptimeTrend       Trend     `json:"uptime_trend,omitempty"`
	ResponseStability Stability `json:"response_stability,omitempty"`
	ReliabilityScore  int       `json:"reliability_score"`
}

// Analyze summarises history. Below MinPatternSamples it only reports low
// confidence with the insufficient_data pattern.
func Analyze(history []types.Sample) Pattern {
	if len(history) < MinPatternSamples {
		return Pattern{Confidence: ConfidenceLow, Pattern: PatternInsufficientData}
	}

	uptimes := make([]float64, len(history))
	responses := make([]float64, len(history))
	for i, s := range history {
		uptimes[i] = s.Uptime
		responses[i] = s.ResponseTimeMs
	}

	return Pattern{
		Confidence:        ConfidenceHigh,
		UptimeTrend:       TrendOf(uptimes),
		ResponseStability: StabilityOf(responses),
		ReliabilityScore:  ReliabilityScore(history),
	}
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
