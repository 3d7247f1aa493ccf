package prober

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/obsidianstack/apibadges/pkg/types"
)

// DefaultTimeout bounds a probe when the caller passes zero.
const DefaultTimeout = 10 * time.Second

// Prober turns NetworkClient calls into samples.
type Prober struct {
	client NetworkClient
	now    func() time.Time // injectable for deterministic tests
}

// New returns a Prober using client.
func New(client NetworkClient) *Prober {
	return &Prober{client: client, now: time.Now}
}

type result struct {
	resp Response
	err  error
}

// Probe checks rawURL once. The request is abandoned when timeout elapses,
// yielding a failed sample whose ResponseTimeMs equals the timeout.
func (p *Prober) Probe(ctx context.Context, rawURL string, timeout time.Duration) types.Sample {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	s := types.Sample{
		EntityID:  EntityID(rawURL),
		Timestamp: p.now().UTC(),
	}
	timeoutMs := float64(timeout.Milliseconds())

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// The client runs in its own goroutine so the deadline holds even when a
	// client does not honour ctx.
	done := make(chan result, 1)
	go func() {
		resp, err := p.client.Request(probeCtx, rawURL, timeout)
		done <- result{resp: resp, err: err}
	}()

	var r result
	select {
	case r = <-done:
	case <-probeCtx.Done():
		r = result{err: probeCtx.Err()}
	}

	if r.err != nil {
		s.Success = false
		s.Uptime = types.UptimeDown
		s.ResponseTimeMs = timeoutMs
		s.ErrorMessage = failureMessage(ctx, r.err)
		return s
	}

	s.StatusCode = r.resp.StatusCode
	s.ResponseTimeMs = math.Round(float64(r.resp.Elapsed) / float64(time.Millisecond))
	if isSuccess(r.resp.StatusCode) {
		s.Success = true
		s.Uptime = types.UptimeUp
	} else {
		s.Uptime = types.UptimeDown
		s.ErrorMessage = fmt.Sprintf("HTTP %d", r.resp.StatusCode)
	}
	return s
}

func failureMessage(parent context.Context, err error) string {
	switch {
	case parent.Err() != nil:
		return "probe cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "request timed out"
	default:
		return err.Error()
	}
}
