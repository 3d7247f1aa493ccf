package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/obsidianstack/apibadges/agent/internal/config"
	"github.com/obsidianstack/apibadges/agent/internal/metricstore"
	"github.com/obsidianstack/apibadges/agent/internal/prober"
	"github.com/obsidianstack/apibadges/agent/internal/usage"
	"github.com/obsidianstack/apibadges/pkg/badges"
	"github.com/obsidianstack/apibadges/pkg/types"
)

// certTTL is how long a certificate check result is reused.
const certTTL = time.Hour

// Prober runs one probe.
type Prober interface {
	Probe(ctx context.Context, url string, timeout time.Duration) types.Sample
}

// CertChecker inspects the certificate of an https URL; nil for other schemes.
type CertChecker interface {
	Check(ctx context.Context, url string, insecure bool) *types.CertStatus
}

// UsageScraper fetches live usage counters of one target.
type UsageScraper interface {
	Scrape(ctx context.Context) (*types.External, error)
}

// Sink receives finished snapshots.
type Sink interface {
	Ship(snap *types.Snapshot)
}

// Observer records cycle outcomes. telemetry.Metrics implements it.
type Observer interface {
	ObserveProbe(success bool, responseTimeMs float64)
	StorageError()
	SetEntity(entityID string, badges, reliability int)
	ForgetEntity(entityID string)
}

// Target is a configured endpoint with its resolved entity ID.
type Target struct {
	EntityID string
	Name     string
	URL      string
	Revenue  float64
	Insecure bool
	External *types.External
	Usage    UsageScraper
}

// Monitor owns the target list and runs cycles against it.
type Monitor struct {
	prober  Prober
	store   *metricstore.Store
	engine  *badges.Engine
	checker CertChecker
	sink    Sink
	obs     Observer
	timeout time.Duration
	now     func() time.Time

	mu      sync.RWMutex
	targets map[string]Target
	order   []string

	certMu    sync.Mutex
	certCache map[string]certEntry
}

type certEntry struct {
	status  *types.CertStatus
	checked time.Time
}

// Options wires a Monitor's collaborators.
type Options struct {
	Prober  Prober
	Store   *metricstore.Store
	Certs   CertChecker
	Sink    Sink
	Obs     Observer
	Timeout time.Duration
}

// New returns a Monitor with an empty target list.
func New(o Options) *Monitor {
	return &Monitor{
		prober:    o.Prober,
		store:     o.Store,
		engine:    badges.NewEngine(o.Store),
		checker:   o.Certs,
		sink:      o.Sink,
		obs:       o.Obs,
		timeout:   o.Timeout,
		now:       time.Now,
		targets:   make(map[string]Target),
		certCache: make(map[string]certEntry),
	}
}

// ResolveTargets turns config targets into monitor targets. A usage endpoint
// whose client cannot be built is logged and skipped.
func ResolveTargets(cfg []config.Target) []Target {
	out := make([]Target, 0, len(cfg))
	for _, t := range cfg {
		id := t.ID
		if id == "" {
			id = prober.EntityID(t.URL)
		}
		tgt := Target{
			EntityID: id,
			Name:     t.Name,
			URL:      t.URL,
			Revenue:  t.Revenue,
			Insecure: t.TLS.InsecureSkipVerify,
			External: t.External,
		}
		if t.Usage != nil {
			sc, err := usage.New(*t.Usage)
			if err != nil {
				slog.Warn("monitor: usage scraper disabled", "target", t.URL, "err", err)
			} else {
				tgt.Usage = sc
			}
		}
		out = append(out, tgt)
	}
	return out
}

// SetTargets replaces the target list. Entities that disappear lose their
// per-entity telemetry; their history stays in storage.
func (m *Monitor) SetTargets(targets []Target) {
	next := make(map[string]Target, len(targets))
	order := make([]string, 0, len(targets))
	for _, t := range targets {
		if _, dup := next[t.EntityID]; dup {
			slog.Warn("monitor: duplicate entity id, keeping first", "entity", t.EntityID, "url", t.URL)
			continue
		}
		next[t.EntityID] = t
		order = append(order, t.EntityID)
	}

	m.mu.Lock()
	prev := m.targets
	m.targets = next
	m.order = order
	m.mu.Unlock()

	for id := range prev {
		if _, ok := next[id]; !ok && m.obs != nil {
			m.obs.ForgetEntity(id)
		}
	}
	slog.Info("monitor: targets updated", "count", len(order))
}

// Keys returns the entity IDs in configuration order.
func (m *Monitor) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

// Run is the scheduler task for one entity. Failures are logged.
func (m *Monitor) Run(ctx context.Context, entityID string) {
	if _, err := m.Check(ctx, entityID); err != nil && ctx.Err() == nil {
		slog.Warn("monitor: cycle failed", "entity", entityID, "err", err)
	}
}

// ErrUnknownTarget is returned by Check for an entity that is not configured.
var ErrUnknownTarget = errors.New("monitor: unknown target")

// Check runs one full cycle for entityID and returns the shipped snapshot.
// A cycle interrupted by ctx records nothing.
func (m *Monitor) Check(ctx context.Context, entityID string) (*types.Snapshot, error) {
	m.mu.RLock()
	tgt, ok := m.targets[entityID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTarget, entityID)
	}

	sample := m.prober.Probe(ctx, tgt.URL, m.timeout)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	sample.EntityID = tgt.EntityID
	m.observeProbe(sample)

	if err := m.store.Append(ctx, tgt.EntityID, sample); err != nil {
		m.storageError(tgt.EntityID, err)
	}

	ext := m.external(ctx, tgt)

	res, err := m.engine.Report(ctx, tgt.EntityID, ext)
	if err != nil {
		m.storageError(tgt.EntityID, err)
		// Nothing readable beyond the sample we just took.
		res = badges.EvaluateHistory(tgt.EntityID, []types.Sample{sample}, ext, m.now().UTC())
	}

	snap := BuildSnapshot(tgt, sample, res, m.now().UTC())
	snap.Cert = m.cert(ctx, tgt)

	if m.obs != nil {
		m.obs.SetEntity(tgt.EntityID, len(snap.Badges), snap.Reliability)
	}
	if m.sink != nil {
		m.sink.Ship(snap)
	}

	slog.Debug("monitor: cycle complete",
		"entity", tgt.EntityID,
		"success", sample.Success,
		"response_ms", sample.ResponseTimeMs,
		"samples", snap.SampleCount,
		"badges", len(snap.Badges))
	return snap, nil
}

// BuildSnapshot assembles the shipped view of an evaluation.
func BuildSnapshot(tgt Target, latest types.Sample, res badges.Result, now time.Time) *types.Snapshot {
	snap := &types.Snapshot{
		EntityID:    tgt.EntityID,
		Name:        tgt.Name,
		URL:         tgt.URL,
		GeneratedAt: now,
		Latest:      latest,
		SampleCount: res.Aggregates.SampleCount,
		AvgUptime:   res.Aggregates.AvgUptime,
		Stability:   string(res.Aggregates.Stability),
		Trend:       string(res.Trend),
		Reliability: res.Aggregates.Reliability,
		Anomalies:   len(res.Anomalies),
		Confidence:  res.Confidence,
		Badges:      res.Badges,
		External:    res.Aggregates.External,
		Revenue:     tgt.Revenue,
	}
	if res.Aggregates.HasResponse() {
		v := res.Aggregates.AvgResponseMs
		snap.AvgResponseMs = &v
	}
	return snap
}

// --- internal ---------------------------------------------------------------

func (m *Monitor) observeProbe(s types.Sample) {
	if !s.Success {
		slog.Debug("monitor: probe failed", "entity", s.EntityID, "status", s.StatusCode, "err", s.ErrorMessage)
	}
	if m.obs != nil {
		m.obs.ObserveProbe(s.Success, s.ResponseTimeMs)
	}
}

func (m *Monitor) storageError(entityID string, err error) {
	var se *metricstore.StorageError
	if errors.As(err, &se) {
		slog.Warn("monitor: storage error", "entity", entityID, "op", se.Op, "err", se.Err)
	} else {
		slog.Warn("monitor: storage error", "entity", entityID, "err", err)
	}
	if m.obs != nil {
		m.obs.StorageError()
	}
}

func (m *Monitor) external(ctx context.Context, tgt Target) *types.External {
	if tgt.Usage == nil {
		return usage.Merge(tgt.External, nil)
	}
	scraped, err := tgt.Usage.Scrape(ctx)
	if err != nil {
		slog.Warn("monitor: usage scrape failed", "entity", tgt.EntityID, "err", err)
	}
	return usage.Merge(tgt.External, scraped)
}

func (m *Monitor) cert(ctx context.Context, tgt Target) *types.CertStatus {
	if m.checker == nil {
		return nil
	}
	m.certMu.Lock()
	e, ok := m.certCache[tgt.EntityID]
	m.certMu.Unlock()
	if ok && m.now().Sub(e.checked) < certTTL {
		return e.status
	}

	cs := m.checker.Check(ctx, tgt.URL, tgt.Insecure)
	m.certMu.Lock()
	m.certCache[tgt.EntityID] = certEntry{status: cs, checked: m.now()}
	m.certMu.Unlock()
	return cs
}
