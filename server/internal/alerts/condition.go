package alerts

import (
	"strconv"
	"strings"

	"github.com/obsidianstack/apibadges/pkg/types"
)

// evalCondition evaluates a rule condition string against a Snapshot.
//
// Supported expressions (field operator value):
//
//	avg_uptime < 99
//	avg_response_ms > 500
//	reliability < 80
//	badge_count < 1
//	sample_count >= 10
//	anomalies > 3
//	cert_days_left < 14
//	stability == unstable
//	trend == degrading
//	confidence == low
//
// Returns (fires bool, triggering value float64).
// Returns (false, 0) if the expression cannot be parsed, the field is unknown
// or the snapshot has no value for it (no successful probe, plain http).
func evalCondition(cond string, snap *types.Snapshot) (bool, float64) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return false, 0
	}
	field, op, rhs := parts[0], parts[1], parts[2]

	switch field {
	case "stability", "trend", "confidence":
		if op != "==" && op != "!=" {
			return false, 0
		}
		eq := classField(field, snap) == rhs
		return eq == (op == "=="), 0
	}

	threshold, err := strconv.ParseFloat(rhs, 64)
	if err != nil {
		return false, 0
	}
	v, ok := numericField(field, snap)
	if !ok {
		return false, 0
	}
	return compareFloat(v, op, threshold), v
}

func classField(field string, snap *types.Snapshot) string {
	switch field {
	case "stability":
		return snap.Stability
	case "trend":
		return snap.Trend
	default:
		return snap.Confidence
	}
}

// numericField maps a field name to its value in the snapshot.
func numericField(field string, snap *types.Snapshot) (float64, bool) {
	switch field {
	case "avg_uptime":
		return snap.AvgUptime, true
	case "avg_response_ms":
		if snap.AvgResponseMs == nil {
			return 0, false
		}
		return *snap.AvgResponseMs, true
	case "reliability":
		return float64(snap.Reliability), true
	case "badge_count":
		return float64(len(snap.Badges)), true
	case "sample_count":
		return float64(snap.SampleCount), true
	case "anomalies":
		return float64(snap.Anomalies), true
	case "cert_days_left":
		if snap.Cert == nil || snap.Cert.Status == "unreachable" {
			return 0, false
		}
		return float64(snap.Cert.DaysLeft), true
	default:
		return 0, false
	}
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
	case "!=":
		return v != threshold
	default:
		return false
	}
}
