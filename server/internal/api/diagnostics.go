package api

import (
	"fmt"
	"math"
	"sort"

	"github.com/obsidianstack/apibadges/pkg/badges"
	"github.com/obsidianstack/apibadges/pkg/stats"
	"github.com/obsidianstack/apibadges/pkg/types"
)

// DiagnosticHint is one human-readable insight about an entity.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier (used for dedup/ordering).
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical"
	Level string `json:"level"`
	// Title is a short label (5 words or fewer).
	Title string `json:"title"`
	// Detail is the full explanation.
	Detail string `json:"detail"`
	// Value is an optional numeric value associated with this hint.
	Value *float64 `json:"value,omitempty"`
}

// Speed badge thresholds, used to report the distance to the next badge.
const (
	lightningMs  = 100.0
	blazingMs    = 50.0
	slowMs       = 200.0
	verySlowMs   = 1000.0
	uptimeWarn   = 99.0
	uptimeCrit   = 95.0
	certWarnDays = 14
)

var levelRank = map[string]int{"critical": 0, "warning": 1, "info": 2, "ok": 3}

// computeDiagnostics derives hints from a snapshot, ordered critical first,
// then warnings, then info.
func computeDiagnostics(snap *types.Snapshot) []DiagnosticHint {
	var hints []DiagnosticHint

	// ── Latest probe ─────────────────────────────────────────────────────────
	if !snap.Latest.Success && !snap.Latest.Timestamp.IsZero() {
		msg := snap.Latest.ErrorMessage
		if msg == "" {
			msg = "unknown error"
		}
		hints = append(hints, DiagnosticHint{
			Key:   "probe_failed",
			Level: "critical",
			Title: "Latest probe failed",
			Detail: fmt.Sprintf("The most recent probe of %s failed with %q. "+
				"Every failed probe lowers the uptime average that most badges depend on.", snap.URL, msg),
		})
	}

	// ── Warming up ───────────────────────────────────────────────────────────
	if snap.SampleCount < badges.MinSamples {
		left := float64(badges.MinSamples - snap.SampleCount)
		hints = append(hints, DiagnosticHint{
			Key:   "warming_up",
			Level: "info",
			Title: "Collecting baseline",
			Detail: fmt.Sprintf("Badges are evaluated once %d probes are recorded. "+
				"%.0f more probes are needed.", badges.MinSamples, left),
			Value: &left,
		})
		return sortHints(hints)
	}

	// ── Uptime ───────────────────────────────────────────────────────────────
	if snap.AvgUptime < uptimeWarn {
		v := snap.AvgUptime
		level := "warning"
		if v < uptimeCrit {
			level = "critical"
		}
		hints = append(hints, DiagnosticHint{
			Key:   "low_uptime",
			Level: level,
			Title: fmt.Sprintf("%.1f%% uptime", v),
			Detail: fmt.Sprintf("Uptime over the last %d probes is %.2f%%. "+
				"Trusted API needs 99%% and Enterprise Ready needs 99.9%%.", snap.SampleCount, v),
			Value: &v,
		})
	}

	// ── Response time ────────────────────────────────────────────────────────
	switch {
	case snap.AvgResponseMs == nil:
		hints = append(hints, DiagnosticHint{
			Key:    "no_response",
			Level:  "critical",
			Title:  "No successful probe",
			Detail: "No probe in the history succeeded, so no response-time badge can be earned.",
		})
	case *snap.AvgResponseMs > slowMs:
		v := *snap.AvgResponseMs
		level := "warning"
		if v > verySlowMs {
			level = "critical"
		}
		hints = append(hints, DiagnosticHint{
			Key:   "slow",
			Level: level,
			Title: fmt.Sprintf("%.0fms average", v),
			Detail: fmt.Sprintf("Successful probes average %.0fms, above the %.0fms Enterprise Ready limit.",
				v, slowMs),
			Value: &v,
		})
	default:
		if h, ok := nextSpeedBadge(snap, *snap.AvgResponseMs); ok {
			hints = append(hints, h)
		}
	}

	// ── Stability and trend ──────────────────────────────────────────────────
	if snap.Stability == string(stats.StabilityUnstable) {
		hints = append(hints, DiagnosticHint{
			Key:   "unstable",
			Level: "warning",
			Title: "Unstable response times",
			Detail: fmt.Sprintf("Response times vary by more than %.0f%% of their mean. "+
				"Blazing Speed needs variation under %.0f%%.", stats.CVGood, stats.CVExcellent),
		})
	}
	if snap.Trend == string(stats.TrendDegrading) {
		hints = append(hints, DiagnosticHint{
			Key:    "degrading",
			Level:  "warning",
			Title:  "Uptime trending down",
			Detail: "Recent probes fail more often than earlier ones.",
		})
	}
	if snap.Anomalies > 0 {
		v := float64(snap.Anomalies)
		hints = append(hints, DiagnosticHint{
			Key:   "anomalies",
			Level: "info",
			Title: fmt.Sprintf("%d outlier responses", snap.Anomalies),
			Detail: fmt.Sprintf("%d response times lie more than %.0f standard deviations from the mean.",
				snap.Anomalies, stats.AnomalySigma),
			Value: &v,
		})
	}

	// ── Certificate ──────────────────────────────────────────────────────────
	if c := snap.Cert; c != nil {
		switch {
		case c.Status == "expired":
			hints = append(hints, DiagnosticHint{Key: "cert_expired", Level: "critical", Title: "Certificate expired",
				Detail: fmt.Sprintf("The TLS certificate of %s expired on %s.", c.Endpoint, c.NotAfter)})
		case c.Status == "unreachable":
			hints = append(hints, DiagnosticHint{Key: "cert_unreachable", Level: "warning", Title: "Certificate unreadable",
				Detail: fmt.Sprintf("The TLS handshake with %s failed, so its certificate could not be checked.", c.Endpoint)})
		case c.DaysLeft < certWarnDays:
			v := float64(c.DaysLeft)
			hints = append(hints, DiagnosticHint{Key: "cert_expiring", Level: "warning",
				Title:  fmt.Sprintf("Cert expires in %dd", c.DaysLeft),
				Detail: fmt.Sprintf("The TLS certificate of %s expires on %s.", c.Endpoint, c.NotAfter),
				Value:  &v})
		}
	}

	// ── All clear ────────────────────────────────────────────────────────────
	if len(hints) == 0 {
		v := float64(snap.Reliability)
		hints = append(hints, DiagnosticHint{
			Key:   "healthy",
			Level: "ok",
			Title: "All clear",
			Detail: fmt.Sprintf("Reliability score %d/100 with %d badges earned.",
				snap.Reliability, len(snap.Badges)),
			Value: &v,
		})
	}
	return sortHints(hints)
}

// nextSpeedBadge reports how many milliseconds separate avg from the next
// response-time badge the entity does not hold yet.
func nextSpeedBadge(snap *types.Snapshot, avg float64) (DiagnosticHint, bool) {
	target, name := lightningMs, "Lightning Fast"
	if avg <= lightningMs {
		if hasBadge(snap, badges.BlazingSpeed) {
			return DiagnosticHint{}, false
		}
		target, name = blazingMs, "Blazing Speed"
	}
	gap := math.Ceil(avg - target)
	if gap <= 0 {
		// Fast enough; the missing badge is held back by stability.
		return DiagnosticHint{}, false
	}
	return DiagnosticHint{
		Key:    "next_speed_badge",
		Level:  "info",
		Title:  fmt.Sprintf("%.0fms from %s", gap, name),
		Detail: fmt.Sprintf("Average response is %.0fms; %s needs %.0fms or less.", avg, name, target),
		Value:  &gap,
	}, true
}

func hasBadge(snap *types.Snapshot, id string) bool {
	for _, b := range snap.Badges {
		if b.ID == id {
			return true
		}
	}
	return false
}

func sortHints(h []DiagnosticHint) []DiagnosticHint {
	sort.SliceStable(h, func(i, j int) bool { return levelRank[h[i].Level] < levelRank[h[j].Level] })
	return h
}
