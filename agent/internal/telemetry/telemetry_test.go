package telemetry

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveProbe(t *testing.T) {
	m := New()
	m.ObserveProbe(true, 120)
	m.ObserveProbe(true, 80)
	m.ObserveProbe(false, 10000)

	if got := testutil.ToFloat64(m.probes.WithLabelValues(ResultSuccess)); got != 2 {
		t.Errorf("success probes: got %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.probes.WithLabelValues(ResultFailure)); got != 1 {
		t.Errorf("failure probes: got %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.probeLatency); n != 1 {
		t.Errorf("latency histogram series: got %d, want 1", n)
	}
}

func TestCounters(t *testing.T) {
	m := New()
	m.StorageError()
	m.Shipped(3)
	m.Dropped(2)
	m.Dropped(1)

	if got := testutil.ToFloat64(m.storageErrors); got != 1 {
		t.Errorf("storage errors: got %v", got)
	}
	if got := testutil.ToFloat64(m.shipped); got != 3 {
		t.Errorf("shipped: got %v", got)
	}
	if got := testutil.ToFloat64(m.dropped); got != 3 {
		t.Errorf("dropped: got %v", got)
	}
}

func TestSetAndForgetEntity(t *testing.T) {
	m := New()
	m.SetEntity("abc", 4, 97)
	m.SetEntity("def", 0, 30)

	if got := testutil.ToFloat64(m.badges.WithLabelValues("abc")); got != 4 {
		t.Errorf("badges abc: got %v", got)
	}
	if n := testutil.CollectAndCount(m.reliability); n != 2 {
		t.Errorf("reliability series: got %d, want 2", n)
	}

	m.ForgetEntity("def")
	if n := testutil.CollectAndCount(m.badges); n != 1 {
		t.Errorf("badge series after forget: got %d, want 1", n)
	}
}

func TestHandler_Exposition(t *testing.T) {
	m := New()
	m.ObserveProbe(false, 0)
	m.SetEntity("abc", 2, 90)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{
		`apibadges_agent_probes_total{result="failure"} 1`,
		`apibadges_agent_badges{entity="abc"} 2`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestNew_Independent(t *testing.T) {
	// Two instances must not panic on duplicate registration.
	a, b := New(), New()
	a.Shipped(1)
	if got := testutil.ToFloat64(b.shipped); got != 0 {
		t.Errorf("instances share state: got %v", got)
	}
}
