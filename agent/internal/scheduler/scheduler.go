// Package scheduler spreads periodic work over time: one task per key, a
// fixed spacing between tasks, each backed by its own cancellable timer.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Round is one staggered pass over a set of keys.
type Round struct {
	mu     sync.Mutex
	timers []*time.Timer
	wg     sync.WaitGroup
	cancel context.CancelFunc
	done   chan struct{}
}

// Stagger schedules fn(ctx, keys[i]) at i*spacing from now. Tasks run on
// their own goroutines; a task that is still waiting when the round is
// cancelled never runs.
func Stagger(ctx context.Context, keys []string, spacing time.Duration, fn func(context.Context, string)) *Round {
	rctx, cancel := context.WithCancel(ctx)
	r := &Round{cancel: cancel, done: make(chan struct{})}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, key := range keys {
		r.wg.Add(1)
		t := time.AfterFunc(time.Duration(i)*spacing, func() {
			defer r.wg.Done()
			if rctx.Err() != nil {
				return
			}
			fn(rctx, key)
		})
		r.timers = append(r.timers, t)
	}
	go func() {
		r.wg.Wait()
		cancel()
		close(r.done)
	}()
	return r
}

// Cancel stops all timers that have not fired and cancels the context of
// tasks already running.
func (r *Round) Cancel() {
	r.cancel()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.timers {
		if t.Stop() {
			// The task will never run; release its slot.
			r.wg.Done()
		}
	}
	r.timers = nil
}

// Wait blocks until every task of the round has run or been cancelled.
func (r *Round) Wait() { r.wg.Wait() }

// Done is closed once every task of the round has run or been cancelled.
func (r *Round) Done() <-chan struct{} { return r.done }

// Run starts a staggered round over keys() immediately and then every
// interval until ctx is cancelled. keys is re-evaluated each round so target
// list changes take effect on the next round.
//
// A round always runs to completion. Ticks that arrive while it is still
// running collapse into one catch-up round started as soon as it finishes,
// so every key runs once per round even when len(keys)*spacing exceeds
// interval.
func Run(ctx context.Context, interval, spacing time.Duration, keys func() []string, fn func(context.Context, string)) {
	t := time.NewTicker(interval)
	defer t.Stop()

	round := Stagger(ctx, keys(), spacing, fn)
	running := round.Done()
	missed := false
	for {
		select {
		case <-ctx.Done():
			round.Cancel()
			round.Wait()
			return
		case <-t.C:
			if running != nil {
				if !missed {
					slog.Debug("scheduler: round overran interval, next round deferred", "interval", interval)
				}
				missed = true
				continue
			}
			round = Stagger(ctx, keys(), spacing, fn)
			running = round.Done()
		case <-running:
			running = nil
			if missed {
				missed = false
				round = Stagger(ctx, keys(), spacing, fn)
				running = round.Done()
			}
		}
	}
}
