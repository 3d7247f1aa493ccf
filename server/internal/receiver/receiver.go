package receiver

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/obsidianstack/apibadges/pkg/types"
	"github.com/obsidianstack/apibadges/server/internal/store"
)

// maxBody bounds an ingest request.
const maxBody = 4 << 20

// Evaluator is notified of every stored snapshot. alerts.Engine implements it.
type Evaluator interface {
	Evaluate(snap *types.Snapshot)
}

// Chain fans every snapshot out to evals in order. Nil entries are skipped.
func Chain(evals ...Evaluator) Evaluator {
	return chain(evals)
}

type chain []Evaluator

func (c chain) Evaluate(snap *types.Snapshot) {
	for _, e := range c {
		if e != nil {
			e.Evaluate(snap)
		}
	}
}

// Receiver accepts agent snapshots and writes them to the state store.
type Receiver struct {
	store *store.Store
	eval  Evaluator
}

// New creates a Receiver that writes accepted snapshots to st. eval may be nil.
func New(st *store.Store, eval Evaluator) *Receiver {
	return &Receiver{store: st, eval: eval}
}

// ServeHTTP handles POST /api/v1/ingest.
func (r *Receiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		reply(w, http.StatusMethodNotAllowed, types.IngestResponse{Message: "method not allowed"})
		return
	}

	var body types.IngestRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBody))
	if err := dec.Decode(&body); err != nil {
		reply(w, http.StatusBadRequest, types.IngestResponse{Message: "invalid JSON body: " + err.Error()})
		return
	}
	if len(body.Snapshots) == 0 {
		reply(w, http.StatusBadRequest, types.IngestResponse{Message: "snapshots is required"})
		return
	}

	accepted, skipped := 0, 0
	for _, snap := range body.Snapshots {
		if snap == nil || snap.EntityID == "" {
			skipped++
			continue
		}
		if !r.store.Put(snap) {
			slog.Debug("receiver: out-of-order snapshot ignored", "entity", snap.EntityID, "generated_at", snap.GeneratedAt)
			continue
		}
		accepted++
		if r.eval != nil {
			r.eval.Evaluate(snap)
		}
		slog.Debug("receiver: snapshot stored",
			"agent", body.AgentID,
			"entity", snap.EntityID,
			"samples", snap.SampleCount,
			"badges", len(snap.Badges),
			"reliability", snap.Reliability,
		)
	}

	if skipped == len(body.Snapshots) {
		reply(w, http.StatusBadRequest, types.IngestResponse{Message: "entity_id is required"})
		return
	}
	resp := types.IngestResponse{OK: true, Accepted: accepted}
	if skipped > 0 {
		slog.Warn("receiver: snapshots without entity_id skipped", "agent", body.AgentID, "count", skipped)
		resp.Message = "some snapshots were missing entity_id"
	}
	reply(w, http.StatusOK, resp)
}

func reply(w http.ResponseWriter, status int, v types.IngestResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
