// Package metricstore keeps a bounded, append-only sample history per entity
// and persists it through a storage.Adapter.
//
// Appends and loads for the same entity are serialised by a per-entity lock,
// so the load-append-truncate-persist sequence never loses or double-evicts a
// sample. Different entities proceed in parallel.
//
// The in-memory history is authoritative for the running process: when a
// persist fails the new sample is kept, a *StorageError is returned, and the
// next successful persist writes the accumulated history.
package metricstore
