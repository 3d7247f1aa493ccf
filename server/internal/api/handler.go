package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"github.com/obsidianstack/apibadges/pkg/badges"
	"github.com/obsidianstack/apibadges/pkg/revenue"
	"github.com/obsidianstack/apibadges/pkg/types"
	"github.com/obsidianstack/apibadges/server/internal/alerts"
	"github.com/obsidianstack/apibadges/server/internal/store"
)

const (
	maxBody = 4 << 20

	// maxBulk bounds the entities of one bulk evaluation.
	maxBulk = 500
)

// Options wires the optional parts of the API.
type Options struct {
	// Alerts serves GET /api/v1/alerts; nil serves an empty list.
	Alerts *alerts.Engine

	// Ingest handles POST /api/v1/ingest; nil leaves the route unregistered.
	Ingest http.Handler

	// Protect wraps the write endpoints (ingest, usage); nil means open.
	Protect func(http.Handler) http.Handler
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	store  *store.Store
	alerts *alerts.Engine
	now    func() time.Time
}

// New creates the router wired to the given snapshot store.
func New(st *store.Store, o Options) http.Handler {
	h := &Handler{store: st, alerts: o.Alerts, now: time.Now}
	protect := o.Protect
	if protect == nil {
		protect = func(next http.Handler) http.Handler { return next }
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.health)
		r.Get("/snapshot", h.snapshot)
		r.Get("/alerts", h.listAlerts)
		r.Get("/impact", h.impact)
		r.Get("/badges/rules", h.rules)

		r.Route("/entities", func(r chi.Router) {
			r.Get("/", h.listEntities)
			r.Get("/{id}", h.getEntity)
			r.Get("/{id}/badges", h.entityBadges)
			r.Get("/{id}/revenue", h.entityRevenue)
		})

		r.Post("/evaluate", h.evaluate)
		r.Post("/evaluate/bulk", h.evaluateBulk)

		r.With(protect).Post("/usage", h.recordUsage)
		if o.Ingest != nil {
			r.With(protect).Post("/ingest", o.Ingest.ServeHTTP)
		}
	})
	return r
}

// --- route handlers ---------------------------------------------------------

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	entries := h.store.List()
	resp := HealthResponse{
		Status:      "ok",
		EntityCount: len(entries),
		GeneratedAt: h.now().UTC().Format(time.RFC3339),
	}
	if h.alerts != nil {
		for _, a := range h.alerts.Active() {
			if a.State == alerts.StateFiring {
				resp.AlertCount++
			}
		}
	}

	var total int
	for _, e := range entries {
		total += e.Snapshot.Reliability
		if len(e.Snapshot.Badges) > 0 {
			resp.BadgedCount++
		}
	}
	if len(entries) > 0 {
		resp.AvgReliability = math.Round(float64(total)/float64(len(entries))*100) / 100
	}
	jsonResp(w, http.StatusOK, resp)
}

func (h *Handler) listEntities(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, h.entities())
}

func (h *Handler) getEntity(w http.ResponseWriter, r *http.Request) {
	e, ok := h.lookup(w, r)
	if !ok {
		return
	}
	jsonResp(w, http.StatusOK, toEntityResponse(e))
}

func (h *Handler) entityBadges(w http.ResponseWriter, r *http.Request) {
	e, ok := h.lookup(w, r)
	if !ok {
		return
	}
	bs := e.Snapshot.Badges
	if bs == nil {
		bs = []types.Badge{}
	}
	jsonResp(w, http.StatusOK, BadgesResponse{
		EntityID:   e.Snapshot.EntityID,
		Badges:     bs,
		Count:      len(bs),
		Confidence: e.Snapshot.Confidence,
	})
}

// entityRevenue returns the commission for ?base=N, defaulting to the
// entity's configured revenue.
func (h *Handler) entityRevenue(w http.ResponseWriter, r *http.Request) {
	e, ok := h.lookup(w, r)
	if !ok {
		return
	}
	base := e.Snapshot.Revenue
	if raw := r.URL.Query().Get("base"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			jsonErr(w, http.StatusBadRequest, "base must be a non-negative number")
			return
		}
		base = v
	}
	jsonResp(w, http.StatusOK, revenue.Enhanced(base, len(e.Snapshot.Badges)))
}

func (h *Handler) rules(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, RulesResponse{
		Rules: badges.Rules(),
		Commission: []TierResponse{
			{Tier: revenue.TierNone, MinBadges: 0, RatePct: revenue.RateNoBadges * 100},
			{Tier: revenue.TierSingle, MinBadges: 1, RatePct: revenue.RateSingleBadge * 100},
			{Tier: revenue.TierMulti, MinBadges: 2, RatePct: revenue.RateMultiBadges * 100},
			{Tier: revenue.TierPremium, MinBadges: 4, RatePct: revenue.RatePremiumCertified * 100},
		},
		MinSamples: badges.MinSamples,
	})
}

func (h *Handler) evaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := validateEvaluate(req); err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	jsonResp(w, http.StatusOK, h.evaluateOne(req))
}

func (h *Handler) evaluateBulk(w http.ResponseWriter, r *http.Request) {
	start := h.now()
	var req BulkRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Entities) == 0 {
		jsonErr(w, http.StatusBadRequest, "entities is required")
		return
	}
	if len(req.Entities) > maxBulk {
		jsonErr(w, http.StatusBadRequest, fmt.Sprintf("at most %d entities per request", maxBulk))
		return
	}
	for i, e := range req.Entities {
		if err := validateEvaluate(e); err != nil {
			jsonErr(w, http.StatusBadRequest, fmt.Sprintf("entities[%d]: %v", i, err))
			return
		}
	}

	resp := BulkResponse{Results: make([]EvaluateResponse, 0, len(req.Entities))}
	for _, e := range req.Entities {
		res := h.evaluateOne(e)
		resp.Results = append(resp.Results, res)
		resp.Summary.TotalBadges += len(res.Badges)
	}
	resp.Summary.TotalEntities = len(resp.Results)
	resp.Summary.AvgBadgesPerAPI = math.Round(float64(resp.Summary.TotalBadges)/float64(len(resp.Results))*100) / 100
	resp.Summary.ProcessingTimeMs = h.now().Sub(start).Milliseconds()
	jsonResp(w, http.StatusOK, resp)
}

func (h *Handler) recordUsage(w http.ResponseWriter, r *http.Request) {
	var rec types.UsageRecord
	if !decodeBody(w, r, &rec) {
		return
	}
	switch {
	case rec.EntityID == "":
		jsonErr(w, http.StatusBadRequest, "entity_id is required")
		return
	case rec.Requests < 0 || rec.UniqueUsers < 0 || rec.Revenue < 0 || rec.BadgesActive < 0:
		jsonErr(w, http.StatusBadRequest, "usage values must not be negative")
		return
	}
	jsonResp(w, http.StatusCreated, h.store.RecordUsage(rec))
}

func (h *Handler) impact(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, revenue.Impact(h.store.Usage(), h.now().UTC()))
}

func (h *Handler) listAlerts(w http.ResponseWriter, _ *http.Request) {
	if h.alerts == nil {
		jsonResp(w, http.StatusOK, []*alerts.Alert{})
		return
	}
	jsonResp(w, http.StatusOK, h.alerts.Active())
}

func (h *Handler) snapshot(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, BuildSnapshot(h.store))
}

// BuildSnapshot assembles the full dump of live entities. The WebSocket hub
// broadcasts the same payload.
func BuildSnapshot(st *store.Store) SnapshotResponse {
	entries := st.List()
	out := make([]EntityResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntityResponse(e))
	}
	return SnapshotResponse{
		Entities:    out,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// --- helpers ----------------------------------------------------------------

func (h *Handler) entities() []EntityResponse {
	entries := h.store.List()
	out := make([]EntityResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntityResponse(e))
	}
	return out
}

// lookup resolves {id} to a live entry or writes a 404.
func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*store.Entry, bool) {
	e, ok := h.store.Get(chi.URLParam(r, "id"))
	if !ok {
		jsonErr(w, http.StatusNotFound, "entity not found")
		return nil, false
	}
	return e, true
}

// evaluateOne evaluates the newest badges.MaxHistory samples of req, the
// same window an agent-side store keeps.
func (h *Handler) evaluateOne(req EvaluateRequest) EvaluateResponse {
	now := h.now().UTC()
	history := req.History
	if len(history) > badges.MaxHistory {
		history = history[len(history)-badges.MaxHistory:]
	}
	res := badges.EvaluateHistory(req.EntityID, history, req.External, now)

	ids := make([]string, 0, len(res.Badges))
	for _, b := range res.Badges {
		ids = append(ids, b.ID)
	}
	return EvaluateResponse{
		EntityID: req.EntityID,
		Badges:   res.Badges,
		Summary: BadgeSummary{
			Total:      len(res.Badges),
			BadgeTypes: ids,
			Confidence: res.Confidence,
		},
		Aggregates:     res.Aggregates,
		Pattern:        res.Pattern,
		Trend:          res.Trend,
		BusinessImpact: revenue.Enhanced(req.BaseRevenue, len(res.Badges)),
		EvaluatedAt:    now.Format(time.RFC3339),
	}
}

func validateEvaluate(req EvaluateRequest) error {
	switch {
	case req.EntityID == "":
		return errors.New("entity_id is required")
	case req.BaseRevenue < 0:
		return errors.New("base_revenue must not be negative")
	}
	for i, s := range req.History {
		if s.ResponseTimeMs < 0 || s.Uptime < 0 || s.Uptime > 100 {
			return fmt.Errorf("history[%d]: response_time_ms must be >= 0 and uptime within [0, 100]", i)
		}
	}
	return nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(v); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

func toEntityResponse(e *store.Entry) EntityResponse {
	return EntityResponse{
		Snapshot:    e.Snapshot,
		Diagnostics: computeDiagnostics(e.Snapshot),
		LastSeen:    e.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
