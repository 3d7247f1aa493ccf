package badges

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/obsidianstack/apibadges/pkg/stats"
	"github.com/obsidianstack/apibadges/pkg/types"
)

// Sample-count gates.
const (
	// MinSamples is the history length below which no badge is evaluated.
	MinSamples = 10

	// HighConfidenceSamples is the history length at which every earned
	// badge carries high confidence.
	HighConfidenceSamples = 50

	// MaxHistory is the longest history an entity keeps. Evaluations over
	// supplied histories use only the newest MaxHistory samples.
	MaxHistory = 1000
)

// ConfidenceInsufficient is reported when the history is shorter than MinSamples.
const ConfidenceInsufficient = stats.PatternInsufficientData

// Aggregates is the snapshot of history-derived values every rule sees.
type Aggregates struct {
	SampleCount int `json:"sample_count"`

	// AvgUptime is the mean per-sample uptime over the whole history.
	AvgUptime float64 `json:"avg_uptime"`

	// AvgResponseMs is the mean response time over successful samples only.
	// It is +Inf when none succeeded, so response rules never fire.
	AvgResponseMs float64 `json:"-"`

	// Stability classifies the response times of successful samples.
	Stability stats.Stability `json:"stability"`

	Reliability int             `json:"reliability"`
	External    *types.External `json:"external,omitempty"`
}

// HasResponse reports whether at least one successful sample contributed to
// AvgResponseMs.
func (a Aggregates) HasResponse() bool {
	return !math.IsInf(a.AvgResponseMs, 1)
}

// MarshalJSON renders AvgResponseMs as null when there is no successful sample.
func (a Aggregates) MarshalJSON() ([]byte, error) {
	type plain Aggregates
	var resp *float64
	if a.HasResponse() {
		v := a.AvgResponseMs
		resp = &v
	}
	return json.Marshal(struct {
		plain
		AvgResponseMs *float64 `json:"avg_response_ms"`
	}{plain(a), resp})
}

func (a Aggregates) field(name string) (float64, bool) {
	switch name {
	case FieldAvgUptime:
		return a.AvgUptime, true
	case FieldAvgResponseMs:
		return a.AvgResponseMs, true
	case FieldSamples:
		return float64(a.SampleCount), true
	case FieldReliability:
		return float64(a.Reliability), true
	case FieldActiveUsers:
		if a.External == nil {
			return 0, false
		}
		return a.External.ActiveUsers, true
	case FieldConsecutiveUpHours:
		if a.External == nil {
			return 0, false
		}
		return a.External.ConsecutiveUpHours, true
	default:
		return 0, false
	}
}

// Aggregate computes the rule inputs for history.
func Aggregate(history []types.Sample, ext *types.External) Aggregates {
	a := Aggregates{
		SampleCount:   len(history),
		AvgResponseMs: math.Inf(1),
		Stability:     stats.StabilityUnstable,
		External:      ext,
	}
	if len(history) == 0 {
		return a
	}

	var uptime float64
	for _, s := range history {
		uptime += s.Uptime
	}
	a.AvgUptime = uptime / float64(len(history))

	ok := successfulResponseTimes(history)
	if s, err := stats.MeanStd(ok); err == nil {
		a.AvgResponseMs = s.Mean
	}
	a.Stability = stats.StabilityOf(ok)
	a.Reliability = stats.ReliabilityScore(history)
	return a
}

func successfulResponseTimes(history []types.Sample) []float64 {
	out := make([]float64, 0, len(history))
	for _, s := range history {
		if s.Success {
			out = append(out, s.ResponseTimeMs)
		}
	}
	return out
}

// Result is the full outcome of one evaluation.
type Result struct {
	EntityID   string        `json:"entity_id"`
	Badges     []types.Badge `json:"badges"`
	Aggregates Aggregates    `json:"aggregates"`
	Pattern    stats.Pattern `json:"pattern"`

	// Confidence is "high" at HighConfidenceSamples or more, the pattern
	// confidence between MinSamples and that, and insufficient_data below.
	Confidence string `json:"confidence"`

	// Trend is the least-squares direction of per-sample uptime.
	Trend stats.Trend `json:"trend"`

	// Anomalies are the successful response times more than two standard
	// deviations from their mean.
	Anomalies []float64 `json:"anomalies,omitempty"`
}

// EvaluateHistory applies the rule table to history. It never fails: a
// history of failed probes simply earns fewer badges.
func EvaluateHistory(entityID string, history []types.Sample, ext *types.External, now time.Time) Result {
	res := Result{
		EntityID:   entityID,
		Badges:     []types.Badge{},
		Aggregates: Aggregate(history, ext),
		Pattern:    stats.Analyze(history),
		Trend:      stats.TrendOf(uptimes(history)),
		Anomalies:  stats.Anomalies(successfulResponseTimes(history)),
	}

	if len(history) < MinSamples {
		res.Confidence = ConfidenceInsufficient
		return res
	}

	res.Confidence = res.Pattern.Confidence
	if len(history) >= HighConfidenceSamples {
		res.Confidence = stats.ConfidenceHigh
	}

	for _, r := range catalogue {
		if !r.Match(res.Aggregates) {
			continue
		}
		res.Badges = append(res.Badges, types.Badge{
			ID:          r.ID,
			DisplayName: r.DisplayName,
			Icon:        r.Icon,
			Description: r.Describe(res.Aggregates),
			EarnedAt:    now,
			Confidence:  res.Confidence,
		})
	}
	return res
}

func uptimes(history []types.Sample) []float64 {
	out := make([]float64, len(history))
	for i, s := range history {
		out[i] = s.Uptime
	}
	return out
}

// HistoryLoader returns the stored history of one entity, oldest first.
type HistoryLoader interface {
	Load(ctx context.Context, entityID string) ([]types.Sample, error)
}

// Engine evaluates badges from freshly loaded history on every call. The
// cost is linear in the history length, which the store caps.
type Engine struct {
	loader HistoryLoader
	now    func() time.Time // injectable for deterministic tests
}

// NewEngine returns an Engine reading history from loader.
func NewEngine(loader HistoryLoader) *Engine {
	return &Engine{loader: loader, now: time.Now}
}

// Evaluate returns the badges currently earned by entityID. The only error
// is a failure to load history.
func (e *Engine) Evaluate(ctx context.Context, entityID string, ext *types.External) ([]types.Badge, error) {
	res, err := e.Report(ctx, entityID, ext)
	if err != nil {
		return nil, err
	}
	return res.Badges, nil
}

// Report is Evaluate with the aggregates and pattern summary attached.
func (e *Engine) Report(ctx context.Context, entityID string, ext *types.External) (Result, error) {
	history, err := e.loader.Load(ctx, entityID)
	if err != nil {
		return Result{}, err
	}
	return EvaluateHistory(entityID, history, ext, e.now().UTC()), nil
}
