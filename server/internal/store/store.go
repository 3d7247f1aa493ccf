package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/obsidianstack/apibadges/pkg/types"
)

// Entry is a snapshot together with the time it was last received.
type Entry struct {
	Snapshot  *types.Snapshot
	UpdatedAt time.Time
}

// Store is a thread-safe in-memory snapshot store, keyed by entity ID.
// A background goroutine (Run) periodically evicts entries that have not
// been updated within the configured TTL.
type Store struct {
	mu   sync.RWMutex
	data map[string]*Entry
	ttl  time.Duration
	now  func() time.Time // injectable for deterministic tests

	usageMu    sync.RWMutex
	usage      map[string][]types.UsageRecord
	usageLimit int
}

// New creates a Store with the given TTL and a usage ledger keeping at most
// usageLimit records per entity.
func New(ttl time.Duration, usageLimit int) *Store {
	if usageLimit <= 0 {
		usageLimit = 1
	}
	return &Store{
		data:       make(map[string]*Entry),
		ttl:        ttl,
		now:        time.Now,
		usage:      make(map[string][]types.UsageRecord),
		usageLimit: usageLimit,
	}
}

// Put stores or replaces the snapshot for snap.EntityID. A snapshot generated
// before the one already held is ignored and Put reports false; agents retry
// batches, so deliveries can arrive out of order.
// Callers must not modify snap after calling Put.
func (s *Store) Put(snap *types.Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.data[snap.EntityID]; ok && snap.GeneratedAt.Before(prev.Snapshot.GeneratedAt) {
		return false
	}
	s.data[snap.EntityID] = &Entry{
		Snapshot:  snap,
		UpdatedAt: s.now(),
	}
	return true
}

// Get returns the Entry for the given entity ID if it is present and live.
func (s *Store) Get(entityID string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[entityID]
	if !ok || !e.UpdatedAt.After(s.now().Add(-s.ttl)) {
		return nil, false
	}
	return e, true
}

// List returns all live entries ordered by entity ID.
// Stale entries that have not yet been evicted are excluded.
func (s *Store) List() []*Entry {
	s.mu.RLock()
	cutoff := s.now().Add(-s.ttl)
	out := make([]*Entry, 0, len(s.data))
	for _, e := range s.data {
		if e.UpdatedAt.After(cutoff) {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Snapshot.EntityID < out[j].Snapshot.EntityID
	})
	return out
}

// Count returns the total number of entries currently held, including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Evict removes entries whose UpdatedAt is older than now minus TTL.
// It returns the number of entries removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.ttl)
	removed := 0
	for id, e := range s.data {
		if !e.UpdatedAt.After(cutoff) {
			delete(s.data, id)
			removed++
		}
	}
	return removed
}

// Run starts the background TTL eviction loop. It ticks at half the TTL
// (minimum 1 second). Run blocks until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted stale snapshots", "count", n)
			}
		}
	}
}

// --- usage ledger -----------------------------------------------------------

// RecordUsage appends rec to the entity's ledger, dropping the oldest record
// once the per-entity limit is reached. A zero Timestamp is set to now.
func (s *Store) RecordUsage(rec types.UsageRecord) types.UsageRecord {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now().UTC()
	}

	s.usageMu.Lock()
	defer s.usageMu.Unlock()
	recs := append(s.usage[rec.EntityID], rec)
	if over := len(recs) - s.usageLimit; over > 0 {
		kept := make([]types.UsageRecord, s.usageLimit)
		copy(kept, recs[over:])
		recs = kept
	}
	s.usage[rec.EntityID] = recs
	return rec
}

// Usage returns a copy of every ledger record, grouped by entity ID and
// oldest first within an entity.
func (s *Store) Usage() []types.UsageRecord {
	s.usageMu.RLock()
	defer s.usageMu.RUnlock()

	ids := make([]string, 0, len(s.usage))
	n := 0
	for id, recs := range s.usage {
		ids = append(ids, id)
		n += len(recs)
	}
	sort.Strings(ids)

	out := make([]types.UsageRecord, 0, n)
	for _, id := range ids {
		out = append(out, s.usage[id]...)
	}
	return out
}

// UsageFor returns a copy of the ledger of one entity, oldest first.
func (s *Store) UsageFor(entityID string) []types.UsageRecord {
	s.usageMu.RLock()
	defer s.usageMu.RUnlock()
	return append([]types.UsageRecord(nil), s.usage[entityID]...)
}
