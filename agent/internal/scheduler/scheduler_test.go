package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// recorder collects task executions in order.
type recorder struct {
	mu   sync.Mutex
	keys []string
	at   []time.Time
}

func (r *recorder) fn(_ context.Context, key string) {
	r.mu.Lock()
	r.keys = append(r.keys, key)
	r.at = append(r.at, time.Now())
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.keys...)
}

// --- Stagger ----------------------------------------------------------------

func TestStagger_RunsInOrderWithSpacing(t *testing.T) {
	rec := &recorder{}
	start := time.Now()
	r := Stagger(context.Background(), []string{"a", "b", "c"}, 20*time.Millisecond, rec.fn)
	r.Wait()

	got := rec.snapshot()
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("order: got %v, want [a b c]", got)
	}
	if elapsed := rec.at[2].Sub(start); elapsed < 40*time.Millisecond {
		t.Errorf("third task ran after %v, want >= 40ms", elapsed)
	}
}

func TestStagger_CancelSkipsPending(t *testing.T) {
	rec := &recorder{}
	r := Stagger(context.Background(), []string{"now", "later"}, time.Hour, rec.fn)

	time.Sleep(20 * time.Millisecond)
	r.Cancel()

	done := make(chan struct{})
	go func() { r.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait blocked after Cancel")
	}

	got := rec.snapshot()
	if len(got) != 1 || got[0] != "now" {
		t.Errorf("executed: got %v, want [now]", got)
	}
}

func TestStagger_CancelCancelsRunningTask(t *testing.T) {
	var sawCancel atomic.Bool
	started := make(chan struct{})
	r := Stagger(context.Background(), []string{"k"}, 0, func(ctx context.Context, _ string) {
		close(started)
		<-ctx.Done()
		sawCancel.Store(true)
	})

	<-started
	r.Cancel()
	r.Wait()
	if !sawCancel.Load() {
		t.Error("running task did not observe cancellation")
	}
}

func TestStagger_Empty(t *testing.T) {
	r := Stagger(context.Background(), nil, time.Second, func(context.Context, string) {
		t.Error("fn called for empty key set")
	})
	r.Wait()
	r.Cancel()
}

// --- Run --------------------------------------------------------------------

func TestRun_RepeatsAndPicksUpNewKeys(t *testing.T) {
	var mu sync.Mutex
	keys := []string{"a"}
	rec := &recorder{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Run(ctx, 30*time.Millisecond, time.Millisecond, func() []string {
			mu.Lock()
			defer mu.Unlock()
			return append([]string(nil), keys...)
		}, rec.fn)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	keys = []string{"a", "b"}
	mu.Unlock()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	sawB := false
	countA := 0
	for _, k := range rec.snapshot() {
		switch k {
		case "a":
			countA++
		case "b":
			sawB = true
		}
	}
	if countA < 2 {
		t.Errorf("a ran %d times, want >= 2", countA)
	}
	if !sawB {
		t.Error("b was never scheduled after the key set changed")
	}
}

func TestRun_EveryKeyRunsWhenRoundOutlastsInterval(t *testing.T) {
	var mu sync.Mutex
	runs := map[string]int{}
	var inFlightCancelled atomic.Int32

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		// 4 keys * 40ms spacing is longer than the 100ms interval.
		Run(ctx, 100*time.Millisecond, 40*time.Millisecond, func() []string {
			return []string{"a", "b", "c", "d"}
		}, func(taskCtx context.Context, key string) {
			select {
			case <-time.After(5 * time.Millisecond):
			case <-taskCtx.Done():
				if ctx.Err() == nil {
					inFlightCancelled.Add(1)
				}
			}
			mu.Lock()
			runs[key]++
			mu.Unlock()
		})
		close(done)
	}()

	time.Sleep(600 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	for _, k := range []string{"a", "b", "c", "d"} {
		if runs[k] < 2 {
			t.Errorf("key %s ran %d times, want >= 2 (runs=%v)", k, runs[k], runs)
		}
	}
	if n := inFlightCancelled.Load(); n != 0 {
		t.Errorf("%d running tasks were cancelled by a following round", n)
	}
}

func TestRound_DoneClosesAfterAllTasks(t *testing.T) {
	rec := &recorder{}
	r := Stagger(context.Background(), []string{"a", "b"}, 5*time.Millisecond, rec.fn)

	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed")
	}
	if got := rec.snapshot(); len(got) != 2 {
		t.Errorf("ran %v, want both keys", got)
	}

	empty := Stagger(context.Background(), nil, time.Millisecond, rec.fn)
	select {
	case <-empty.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed for an empty round")
	}
}
