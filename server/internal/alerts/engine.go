package alerts

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/obsidianstack/apibadges/pkg/types"
	"github.com/obsidianstack/apibadges/server/internal/config"
)

const (
	defaultCooldown = 15 * time.Minute
	maxHistoryLen   = 200
	recentWindow    = time.Hour
)

// Alert states.
const (
	StateFiring   = "firing"
	StateResolved = "resolved"
	StateEvent    = "event"
)

// Rule names of badge change events.
const (
	RuleBadgeEarned = "badge_earned"
	RuleBadgeLost   = "badge_lost"
)

// Alert represents a single alert or badge event produced by the engine.
type Alert struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	EntityID   string     `json:"entity_id"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"` // firing | resolved | event
}

// Engine evaluates alert rules against incoming snapshots and delivers
// webhook notifications when rules fire or resolve.
//
// Engine is safe for concurrent use.
type Engine struct {
	rules        []config.AlertRule
	badgeChanges bool
	notifier     *Notifier
	now          func() time.Time
	dispatch     func(Alert) // async webhook delivery; replaced in tests

	mu       sync.Mutex
	active   map[string]*Alert    // key: "ruleName:entityID"
	lastFire map[string]time.Time // last fire time per key (for cooldown)
	history  []*Alert             // resolved alerts and badge events
	badges   map[string]map[string]string // entity -> badge ID -> display name
}

// New creates an Engine from the server alert configuration.
// An Engine with no rules and badge changes off is a no-op.
func New(cfg config.AlertsConfig) *Engine {
	e := &Engine{
		rules:        cfg.Rules,
		badgeChanges: cfg.BadgeChanges,
		notifier:     NewNotifier(cfg.Webhooks),
		now:          time.Now,
		active:       make(map[string]*Alert),
		lastFire:     make(map[string]time.Time),
		badges:       make(map[string]map[string]string),
	}
	e.dispatch = func(a Alert) { go e.notifier.Deliver(a) }
	return e
}

// Evaluate tests all configured rules against snap and records badge changes.
// Alerts that fire are stored and webhook delivery is triggered asynchronously.
// Alerts that were firing but whose condition is now false are resolved.
func (e *Engine) Evaluate(snap *types.Snapshot) {
	now := e.now()
	var out []Alert

	e.mu.Lock()
	for _, rule := range e.rules {
		if a := e.evalRule(rule, snap, now); a != nil {
			out = append(out, *a)
		}
	}
	if e.badgeChanges {
		out = append(out, e.badgeEvents(snap, now)...)
	}
	e.mu.Unlock()

	for _, a := range out {
		switch a.State {
		case StateFiring:
			slog.Warn("alerts: fired", "rule", a.RuleName, "entity", a.EntityID, "value", a.Value, "severity", a.Severity)
		case StateResolved:
			slog.Info("alerts: resolved", "rule", a.RuleName, "entity", a.EntityID)
		default:
			slog.Info("alerts: badge change", "rule", a.RuleName, "entity", a.EntityID, "msg", a.Message)
		}
		e.dispatch(a)
	}
}

// Caller holds e.mu.
func (e *Engine) evalRule(rule config.AlertRule, snap *types.Snapshot, now time.Time) *Alert {
	key := rule.Name + ":" + snap.EntityID
	fires, value := evalCondition(rule.Condition, snap)

	if !fires {
		a, ok := e.active[key]
		if !ok {
			return nil
		}
		resolved := now
		a.State = StateResolved
		a.ResolvedAt = &resolved
		delete(e.active, key)
		e.remember(a)
		cp := *a
		return &cp
	}

	if _, firing := e.active[key]; firing {
		e.active[key].Value = value
		return nil
	}
	cooldown := rule.Cooldown
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	if last, ok := e.lastFire[key]; ok && now.Sub(last) < cooldown {
		return nil
	}

	sev := rule.Severity
	if sev == "" {
		sev = "warning"
	}
	a := &Alert{
		ID:       fmt.Sprintf("%s:%s:%d", rule.Name, snap.EntityID, now.UnixNano()),
		RuleName: rule.Name,
		EntityID: snap.EntityID,
		Severity: sev,
		Value:    value,
		Message:  fmt.Sprintf("[%s] %s fired on %s: %s (value %.2f)", sev, rule.Name, label(snap), rule.Condition, value),
		FiredAt:  now,
		State:    StateFiring,
	}
	e.active[key] = a
	e.lastFire[key] = now
	cp := *a
	return &cp
}

// badgeEvents diffs the badge set of snap against the previous one. The first
// snapshot of an entity only seeds the set. Caller holds e.mu.
func (e *Engine) badgeEvents(snap *types.Snapshot, now time.Time) []Alert {
	cur := make(map[string]string, len(snap.Badges))
	for _, b := range snap.Badges {
		cur[b.ID] = b.DisplayName
	}
	prev, seen := e.badges[snap.EntityID]
	e.badges[snap.EntityID] = cur
	if !seen {
		return nil
	}

	var out []Alert
	for _, id := range sortedKeys(cur) {
		if _, had := prev[id]; !had {
			out = append(out, e.event(RuleBadgeEarned, snap, now,
				fmt.Sprintf("%s earned %s", label(snap), cur[id])))
		}
	}
	for _, id := range sortedKeys(prev) {
		if _, has := cur[id]; !has {
			out = append(out, e.event(RuleBadgeLost, snap, now,
				fmt.Sprintf("%s lost %s", label(snap), prev[id])))
		}
	}
	return out
}

// Caller holds e.mu.
func (e *Engine) event(rule string, snap *types.Snapshot, now time.Time, msg string) Alert {
	a := &Alert{
		ID:       fmt.Sprintf("%s:%s:%d:%d", rule, snap.EntityID, now.UnixNano(), len(e.history)),
		RuleName: rule,
		EntityID: snap.EntityID,
		Severity: "info",
		Message:  msg,
		Value:    float64(len(snap.Badges)),
		FiredAt:  now,
		State:    StateEvent,
	}
	e.remember(a)
	return *a
}

// Caller holds e.mu.
func (e *Engine) remember(a *Alert) {
	e.history = append(e.history, a)
	if len(e.history) > maxHistoryLen {
		e.history = e.history[len(e.history)-maxHistoryLen:]
	}
}

// Active returns copies of all currently firing alerts plus alerts resolved
// and badge events within the past hour, sorted newest first.
func (e *Engine) Active() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindow)
	out := make([]*Alert, 0, len(e.active))
	for _, a := range e.active {
		cp := *a
		out = append(out, &cp)
	}
	for _, a := range e.history {
		at := a.FiredAt
		if a.ResolvedAt != nil {
			at = *a.ResolvedAt
		}
		if at.After(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].FiredAt.After(out[j].FiredAt) })
	return out
}

func label(snap *types.Snapshot) string {
	if snap.Name != "" {
		return snap.Name
	}
	return snap.EntityID
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
