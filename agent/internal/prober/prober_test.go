package prober

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var baseTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

// clientFunc adapts a function to NetworkClient.
type clientFunc func(ctx context.Context, url string, timeout time.Duration) (Response, error)

func (f clientFunc) Request(ctx context.Context, url string, timeout time.Duration) (Response, error) {
	return f(ctx, url, timeout)
}

func newProber(c NetworkClient) *Prober {
	p := New(c)
	p.now = fixedClock(baseTime)
	return p
}

// --- Probe with fake clients ------------------------------------------------

func TestProbe_Outcomes(t *testing.T) {
	tests := []struct {
		name        string
		resp        Response
		err         error
		wantSuccess bool
		wantUptime  float64
		wantStatus  int
		wantMs      float64
		wantErrMsg  string
	}{
		{"200", Response{StatusCode: 200, Elapsed: 42 * time.Millisecond}, nil, true, 100, 200, 42, ""},
		{"204", Response{StatusCode: 204, Elapsed: 1500 * time.Microsecond}, nil, true, 100, 204, 2, ""},
		{"301 is not 2xx", Response{StatusCode: 301, Elapsed: 5 * time.Millisecond}, nil, false, 0, 301, 5, "HTTP 301"},
		{"503", Response{StatusCode: 503, Elapsed: 80 * time.Millisecond}, nil, false, 0, 503, 80, "HTTP 503"},
		{"connection refused", Response{}, errors.New("dial tcp: connection refused"), false, 0, 0, 3000, "dial tcp: connection refused"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := newProber(clientFunc(func(context.Context, string, time.Duration) (Response, error) {
				return tc.resp, tc.err
			}))
			s := p.Probe(context.Background(), "https://api.example.com/health", 3*time.Second)

			if s.Success != tc.wantSuccess {
				t.Errorf("Success: got %v, want %v", s.Success, tc.wantSuccess)
			}
			if s.Uptime != tc.wantUptime {
				t.Errorf("Uptime: got %v, want %v", s.Uptime, tc.wantUptime)
			}
			if s.StatusCode != tc.wantStatus {
				t.Errorf("StatusCode: got %d, want %d", s.StatusCode, tc.wantStatus)
			}
			if s.ResponseTimeMs != tc.wantMs {
				t.Errorf("ResponseTimeMs: got %v, want %v", s.ResponseTimeMs, tc.wantMs)
			}
			if s.ErrorMessage != tc.wantErrMsg {
				t.Errorf("ErrorMessage: got %q, want %q", s.ErrorMessage, tc.wantErrMsg)
			}
			if !s.Timestamp.Equal(baseTime) {
				t.Errorf("Timestamp: got %v, want %v", s.Timestamp, baseTime)
			}
			if s.EntityID != EntityID("https://api.example.com/health") {
				t.Errorf("EntityID: got %q", s.EntityID)
			}
		})
	}
}

func TestProbe_TimeoutWithUncooperativeClient(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	// Ignores ctx entirely; only the prober's own deadline can end the probe.
	p := newProber(clientFunc(func(context.Context, string, time.Duration) (Response, error) {
		<-release
		return Response{StatusCode: 200}, nil
	}))

	start := time.Now()
	s := p.Probe(context.Background(), "http://slow.example.com", 30*time.Millisecond)
	if time.Since(start) > time.Second {
		t.Fatal("Probe did not abort at the timeout")
	}

	if s.Success {
		t.Error("Success: got true, want false")
	}
	if s.ResponseTimeMs != 30 {
		t.Errorf("ResponseTimeMs: got %v, want 30 (the timeout)", s.ResponseTimeMs)
	}
	if s.ErrorMessage != "request timed out" {
		t.Errorf("ErrorMessage: got %q, want request timed out", s.ErrorMessage)
	}
}

func TestProbe_ParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newProber(clientFunc(func(ctx context.Context, _ string, _ time.Duration) (Response, error) {
		<-ctx.Done()
		return Response{}, ctx.Err()
	}))
	s := p.Probe(ctx, "http://x.example.com", time.Second)
	if s.Success || s.ErrorMessage != "probe cancelled" {
		t.Errorf("cancelled probe: got success=%v msg=%q", s.Success, s.ErrorMessage)
	}
	if s.ResponseTimeMs != 1000 {
		t.Errorf("ResponseTimeMs: got %v, want 1000", s.ResponseTimeMs)
	}
}

func TestProbe_DefaultTimeout(t *testing.T) {
	var got time.Duration
	p := newProber(clientFunc(func(_ context.Context, _ string, timeout time.Duration) (Response, error) {
		got = timeout
		return Response{}, errors.New("boom")
	}))
	s := p.Probe(context.Background(), "http://x.example.com", 0)
	if got != DefaultTimeout {
		t.Errorf("client timeout: got %v, want %v", got, DefaultTimeout)
	}
	if s.ResponseTimeMs != 10000 {
		t.Errorf("ResponseTimeMs: got %v, want 10000", s.ResponseTimeMs)
	}
}

// --- RestyClient against httptest --------------------------------------------

func TestRestyClient_Statuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != UserAgent {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		switch r.URL.Path {
		case "/ok":
			w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck
		case "/fail":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p := New(NewRestyClient())
	ctx := context.Background()

	ok := p.Probe(ctx, srv.URL+"/ok", time.Second)
	if !ok.Success || ok.StatusCode != 200 {
		t.Errorf("/ok: got success=%v status=%d msg=%q", ok.Success, ok.StatusCode, ok.ErrorMessage)
	}
	if ok.ResponseTimeMs < 0 || ok.ResponseTimeMs >= 1000 {
		t.Errorf("/ok: ResponseTimeMs out of range: %v", ok.ResponseTimeMs)
	}

	fail := p.Probe(ctx, srv.URL+"/fail", time.Second)
	if fail.Success || fail.StatusCode != 500 || fail.ErrorMessage != "HTTP 500" {
		t.Errorf("/fail: got %+v", fail)
	}
}

func TestRestyClient_Timeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	s := New(NewRestyClient()).Probe(context.Background(), srv.URL, 50*time.Millisecond)
	if s.Success {
		t.Fatal("slow server: expected failed sample")
	}
	if s.ResponseTimeMs != 50 {
		t.Errorf("ResponseTimeMs: got %v, want 50", s.ResponseTimeMs)
	}
}

func TestRestyClient_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	s := New(NewRestyClient()).Probe(context.Background(), url, time.Second)
	if s.Success || s.StatusCode != 0 || s.ErrorMessage == "" {
		t.Errorf("closed server: got %+v", s)
	}
	if s.ResponseTimeMs != 1000 {
		t.Errorf("ResponseTimeMs: got %v, want 1000", s.ResponseTimeMs)
	}
}

// --- EntityID ---------------------------------------------------------------

func TestEntityID_Equivalents(t *testing.T) {
	same := []string{
		"https://API.Example.com",
		"https://api.example.com/",
		"https://api.example.com:443/",
		"HTTPS://api.example.com/#section",
		"  https://api.example.com  ",
	}
	want := EntityID(same[0])
	for _, u := range same[1:] {
		if got := EntityID(u); got != want {
			t.Errorf("EntityID(%q) = %s, want %s", u, got, want)
		}
	}
	if len(want) != 16 {
		t.Errorf("EntityID length: got %d, want 16", len(want))
	}
}

func TestEntityID_Distinct(t *testing.T) {
	a := EntityID("https://api.example.com/v1")
	b := EntityID("https://api.example.com/v2")
	c := EntityID("http://api.example.com/v1")
	if a == b || a == c {
		t.Errorf("distinct URLs share an ID: %s %s %s", a, b, c)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct{ in, want string }{
		{"http://Example.com:80", "http://example.com/"},
		{"https://example.com:8443/x?q=1#frag", "https://example.com:8443/x?q=1"},
		{"http://[::1]:80/", "http://[::1]/"},
		{"not a url", "not a url"},
	}
	for _, tc := range tests {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q): got %q, want %q", tc.in, got, tc.want)
		}
	}
}
