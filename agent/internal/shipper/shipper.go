package shipper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/obsidianstack/apibadges/agent/internal/config"
	"github.com/obsidianstack/apibadges/pkg/types"
)

const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 60 * time.Second
	backoffMultiplier = 2.0
	sendTimeout       = 10 * time.Second

	// IngestPath is the server endpoint snapshots are POSTed to.
	IngestPath = "/api/v1/ingest"

	maxBatch = 50
)

// Recorder receives delivery outcomes. telemetry.Metrics implements it.
type Recorder interface {
	Shipped(n int)
	Dropped(n int)
}

type nopRecorder struct{}

func (nopRecorder) Shipped(int) {}
func (nopRecorder) Dropped(int) {}

// Shipper buffers snapshots and ships them to the server.
// Run() must be called in a goroutine to drain the buffer.
type Shipper struct {
	cfg     config.AgentConfig
	client  *resty.Client
	buf     chan *types.Snapshot
	rec     Recorder
	initial time.Duration // first backoff step; shortened in tests
}

// New creates a Shipper using the given agent config. rec may be nil.
func New(cfg config.AgentConfig, rec Recorder) *Shipper {
	if rec == nil {
		rec = nopRecorder{}
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = config.DefaultBufferSize
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.ServerEndpoint, "/")).
		SetTimeout(sendTimeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.ServerAuth.Mode == "apikey" {
		client.SetHeader(cfg.ServerAuth.HeaderName(), cfg.ServerAuth.Key())
	}

	return &Shipper{
		cfg:     cfg,
		client:  client,
		buf:     make(chan *types.Snapshot, size),
		rec:     rec,
		initial: backoffInitial,
	}
}

// Ship enqueues snap. If the buffer is full the oldest entry is evicted to
// make room.
func (s *Shipper) Ship(snap *types.Snapshot) {
	for {
		select {
		case s.buf <- snap:
			return
		default:
		}
		select {
		case old := <-s.buf:
			s.rec.Dropped(1)
			slog.Warn("shipper: buffer full, evicted oldest snapshot",
				"entity", old.EntityID, "buffer_cap", cap(s.buf))
		default:
		}
	}
}

// Run drains the buffer until ctx is cancelled. A batch that fails with a
// transient error is retried, unchanged and in order, after a backoff.
func (s *Shipper) Run(ctx context.Context) {
	bo := newBackoff(s.initial)

	for {
		batch, ok := s.next(ctx)
		if !ok {
			return
		}

		for {
			err := s.send(ctx, batch)
			if err == nil {
				s.rec.Shipped(len(batch))
				bo.reset()
				slog.Debug("shipper: batch delivered", "snapshots", len(batch))
				break
			}
			if isPermanent(err) {
				s.rec.Dropped(len(batch))
				slog.Error("shipper: permanent send error, discarding batch",
					"snapshots", len(batch), "err", err)
				break
			}

			wait := bo.next()
			slog.Warn("shipper: send failed, will retry",
				"endpoint", s.cfg.ServerEndpoint, "err", err, "retry_in", wait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}
	}
}

// next blocks for the first snapshot, then takes whatever else is already
// buffered, up to maxBatch.
func (s *Shipper) next(ctx context.Context) ([]*types.Snapshot, bool) {
	var batch []*types.Snapshot
	select {
	case <-ctx.Done():
		return nil, false
	case snap := <-s.buf:
		batch = append(batch, snap)
	}
	for len(batch) < maxBatch {
		select {
		case snap := <-s.buf:
			batch = append(batch, snap)
		default:
			return batch, true
		}
	}
	return batch, true
}

// statusError is a non-2xx answer from the server.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.code, e.body)
}

func (s *Shipper) send(ctx context.Context, batch []*types.Snapshot) error {
	var out types.IngestResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(types.IngestRequest{AgentID: s.cfg.ID, Snapshots: batch}).
		SetResult(&out).
		Post(IngestPath)
	if err != nil {
		return fmt.Errorf("shipper: post: %w", err)
	}
	if resp.IsError() || resp.StatusCode() >= http.StatusMultipleChoices {
		return &statusError{code: resp.StatusCode(), body: strings.TrimSpace(resp.String())}
	}
	if !out.OK {
		slog.Warn("shipper: server did not accept all snapshots",
			"accepted", out.Accepted, "sent", len(batch), "message", out.Message)
	}
	return nil
}

// isPermanent reports whether err means the batch will never be accepted.
// Rate limiting is transient.
func isPermanent(err error) bool {
	var se *statusError
	if !errors.As(err, &se) {
		return false
	}
	return se.code >= 400 && se.code < 500 && se.code != http.StatusTooManyRequests
}

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	initial time.Duration
	current time.Duration
}

func newBackoff(initial time.Duration) *backoff {
	return &backoff{initial: initial, current: initial}
}

// next returns the current backoff duration and advances the internal state.
func (b *backoff) next() time.Duration {
	d := b.current
	// ±25% jitter
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}

func (b *backoff) reset() {
	b.current = b.initial
}
