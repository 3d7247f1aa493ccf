package metricstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/obsidianstack/apibadges/agent/internal/storage"
	"github.com/obsidianstack/apibadges/pkg/badges"
	"github.com/obsidianstack/apibadges/pkg/types"
)

// MaxHistory is the retention cap per entity. Older samples are evicted first.
const MaxHistory = badges.MaxHistory

// keyPrefix namespaces history keys in the shared key/value backend.
const keyPrefix = "metrics_"

// StorageError reports a backend failure during Op ("load", "decode",
// "encode" or "persist") of Key.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("metricstore: %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Store is the per-entity history store.
type Store struct {
	adapter storage.Adapter
	limit   int

	mu      sync.Mutex
	entries map[string]*entry
}

// entry is the cached history of one entity. hydrated is false until the
// persisted history has been read once; samples appended before that are
// merged behind the persisted ones.
type entry struct {
	mu       sync.Mutex
	samples  []types.Sample
	hydrated bool
}

// New returns a Store persisting through adapter.
func New(adapter storage.Adapter) *Store {
	return &Store{
		adapter: adapter,
		limit:   MaxHistory,
		entries: make(map[string]*entry),
	}
}

// Key returns the storage key under which entityID's history is persisted.
func Key(entityID string) string { return keyPrefix + entityID }

// Append adds sample to the history of entityID, truncates it to the most
// recent MaxHistory samples and persists it before returning.
//
// A non-nil error is always a *StorageError. The sample is in the in-memory
// history regardless.
func (s *Store) Append(ctx context.Context, entityID string, sample types.Sample) error {
	e := s.entry(entityID)
	e.mu.Lock()
	defer e.mu.Unlock()

	loadErr := s.hydrate(ctx, entityID, e)

	e.samples = append(e.samples, sample)
	if over := len(e.samples) - s.limit; over > 0 {
		// Copy to a fresh slice so the evicted prefix can be collected.
		kept := make([]types.Sample, s.limit)
		copy(kept, e.samples[over:])
		e.samples = kept
	}

	if loadErr != nil {
		// Persisting now would overwrite the history we failed to read.
		return loadErr
	}
	return s.persist(ctx, entityID, e.samples)
}

// Load returns a copy of the history of entityID, oldest first. An entity
// with nothing stored yields an empty slice and no error.
func (s *Store) Load(ctx context.Context, entityID string) ([]types.Sample, error) {
	e := s.entry(entityID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := s.hydrate(ctx, entityID, e); err != nil {
		return nil, err
	}
	out := make([]types.Sample, len(e.samples))
	copy(out, e.samples)
	return out, nil
}

// Len returns the number of cached samples for entityID without touching the
// backend.
func (s *Store) Len(entityID string) int {
	e := s.entry(entityID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.samples)
}

// --- internal ---------------------------------------------------------------

func (s *Store) entry(entityID string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[entityID]
	if !ok {
		e = &entry{}
		s.entries[entityID] = e
	}
	return e
}

// hydrate reads the persisted history once per entity. Caller holds e.mu.
func (s *Store) hydrate(ctx context.Context, entityID string, e *entry) error {
	if e.hydrated {
		return nil
	}
	key := Key(entityID)

	data, ok, err := s.adapter.Get(ctx, key)
	if err != nil {
		return &StorageError{Op: "load", Key: key, Err: err}
	}

	var persisted []types.Sample
	if ok && len(data) > 0 {
		if err := json.Unmarshal(data, &persisted); err != nil {
			return &StorageError{Op: "decode", Key: key, Err: err}
		}
	}

	merged := append(persisted, e.samples...)
	if over := len(merged) - s.limit; over > 0 {
		merged = merged[over:]
	}
	e.samples = merged
	e.hydrated = true
	return nil
}

func (s *Store) persist(ctx context.Context, entityID string, samples []types.Sample) error {
	key := Key(entityID)
	data, err := json.Marshal(samples)
	if err != nil {
		return &StorageError{Op: "encode", Key: key, Err: err}
	}
	if err := s.adapter.Set(ctx, key, data); err != nil {
		return &StorageError{Op: "persist", Key: key, Err: err}
	}
	return nil
}
