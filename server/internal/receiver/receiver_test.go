package receiver_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/obsidianstack/apibadges/pkg/types"
	"github.com/obsidianstack/apibadges/server/internal/auth"
	"github.com/obsidianstack/apibadges/server/internal/receiver"
	"github.com/obsidianstack/apibadges/server/internal/store"
)

var baseTime = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type recordingEvaluator struct {
	mu   sync.Mutex
	seen []string
}

func (r *recordingEvaluator) Evaluate(s *types.Snapshot) {
	r.mu.Lock()
	r.seen = append(r.seen, s.EntityID)
	r.mu.Unlock()
}

func (r *recordingEvaluator) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}

// startServer serves the receiver behind mw and returns its URL.
func startServer(t *testing.T, mw func(http.Handler) http.Handler) (string, *store.Store, *recordingEvaluator) {
	t.Helper()
	st := store.New(5*time.Minute, 100)
	ev := &recordingEvaluator{}
	srv := httptest.NewServer(mw(receiver.New(st, ev)))
	t.Cleanup(srv.Close)
	return srv.URL, st, ev
}

func noAuth(next http.Handler) http.Handler { return next }

func post(t *testing.T, url string, body any, header map[string]string) (*http.Response, types.IngestResponse) {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		json.NewEncoder(&buf).Encode(b) //nolint:errcheck
	}
	req, _ := http.NewRequest(http.MethodPost, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	var out types.IngestResponse
	json.NewDecoder(resp.Body).Decode(&out) //nolint:errcheck
	return resp, out
}

func snap(id string, at time.Time, reliability int) *types.Snapshot {
	return &types.Snapshot{EntityID: id, URL: "https://" + id, GeneratedAt: at, Reliability: reliability}
}

// --- tests ------------------------------------------------------------------

func TestIngest_StoresSnapshots(t *testing.T) {
	url, st, ev := startServer(t, noAuth)

	resp, out := post(t, url, types.IngestRequest{AgentID: "agent-1", Snapshots: []*types.Snapshot{
		snap("payments", baseTime, 92),
		snap("search", baseTime, 80),
	}}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	if !out.OK || out.Accepted != 2 {
		t.Errorf("response: got %+v", out)
	}

	e, ok := st.Get("payments")
	if !ok {
		t.Fatal("store.Get: expected entry, got none")
	}
	if e.Snapshot.Reliability != 92 {
		t.Errorf("Reliability: got %d, want 92", e.Snapshot.Reliability)
	}
	if len(ev.seen) != 2 {
		t.Errorf("evaluated: got %v", ev.seen)
	}
}

func TestIngest_UpdatesExistingEntity(t *testing.T) {
	url, st, _ := startServer(t, noAuth)

	post(t, url, types.IngestRequest{Snapshots: []*types.Snapshot{snap("api", baseTime, 90)}}, nil)
	post(t, url, types.IngestRequest{Snapshots: []*types.Snapshot{snap("api", baseTime.Add(time.Minute), 70)}}, nil)

	if st.Count() != 1 {
		t.Errorf("store.Count: got %d, want 1 (updates, not appends)", st.Count())
	}
	e, _ := st.Get("api")
	if e.Snapshot.Reliability != 70 {
		t.Errorf("Reliability: got %d, want 70", e.Snapshot.Reliability)
	}
}

func TestIngest_OutOfOrderIgnored(t *testing.T) {
	url, st, ev := startServer(t, noAuth)

	post(t, url, types.IngestRequest{Snapshots: []*types.Snapshot{snap("api", baseTime.Add(time.Minute), 90)}}, nil)
	_, out := post(t, url, types.IngestRequest{Snapshots: []*types.Snapshot{snap("api", baseTime, 10)}}, nil)

	if !out.OK || out.Accepted != 0 {
		t.Errorf("response: got %+v, want ok with 0 accepted", out)
	}
	e, _ := st.Get("api")
	if e.Snapshot.Reliability != 90 {
		t.Errorf("Reliability: got %d, want 90", e.Snapshot.Reliability)
	}
	if len(ev.seen) != 1 {
		t.Errorf("evaluated: got %d, want 1", len(ev.seen))
	}
}

func TestIngest_SkipsMissingEntityID(t *testing.T) {
	url, st, _ := startServer(t, noAuth)

	resp, out := post(t, url, types.IngestRequest{Snapshots: []*types.Snapshot{
		snap("api", baseTime, 90),
		{URL: "https://anonymous"},
	}}, nil)
	if resp.StatusCode != http.StatusOK || out.Accepted != 1 || out.Message == "" {
		t.Errorf("partial batch: status %d, %+v", resp.StatusCode, out)
	}
	if st.Count() != 1 {
		t.Errorf("store.Count: got %d, want 1", st.Count())
	}
}

func TestIngest_BadRequests(t *testing.T) {
	url, _, _ := startServer(t, noAuth)
	cases := []struct {
		name string
		body any
	}{
		{"malformed json", `{"snapshots": [`},
		{"empty batch", types.IngestRequest{}},
		{"all missing entity id", types.IngestRequest{Snapshots: []*types.Snapshot{{URL: "x"}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, out := post(t, url, tc.body, nil)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status: got %d, want 400", resp.StatusCode)
			}
			if out.OK || out.Message == "" {
				t.Errorf("response: got %+v", out)
			}
		})
	}
}

func TestIngest_MethodNotAllowed(t *testing.T) {
	url, _, _ := startServer(t, noAuth)
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", resp.StatusCode)
	}
}

func TestIngest_WithAPIKey(t *testing.T) {
	url, st, _ := startServer(t, auth.APIKey("apikey", "x-api-key", "testkey"))
	batch := types.IngestRequest{Snapshots: []*types.Snapshot{snap("api", baseTime, 90)}}

	if resp, _ := post(t, url, batch, map[string]string{"x-api-key": "wrongkey"}); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong key: got %d, want 401", resp.StatusCode)
	}
	if resp, _ := post(t, url, batch, nil); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("missing key: got %d, want 401", resp.StatusCode)
	}
	if st.Count() != 0 {
		t.Fatalf("rejected batch stored %d snapshots", st.Count())
	}

	if resp, _ := post(t, url, batch, map[string]string{"x-api-key": "testkey"}); resp.StatusCode != http.StatusOK {
		t.Errorf("correct key: got %d, want 200", resp.StatusCode)
	}
	if st.Count() != 1 {
		t.Errorf("store.Count: got %d, want 1", st.Count())
	}
}

func TestChain_FansOutAndSkipsNil(t *testing.T) {
	a, b := &recordingEvaluator{}, &recordingEvaluator{}
	c := receiver.Chain(a, nil, b)

	c.Evaluate(snap("x", time.Now(), 90))
	c.Evaluate(snap("y", time.Now(), 90))

	for i, r := range []*recordingEvaluator{a, b} {
		if got := r.ids(); len(got) != 2 || got[0] != "x" || got[1] != "y" {
			t.Errorf("evaluator %d: got %v, want [x y]", i, got)
		}
	}
}
