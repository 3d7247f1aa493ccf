// Package storage provides the byte-level key/value backends the metric store
// persists sample histories into.
//
// Three backends implement Adapter:
//
//   - Memory: process-scoped map, lost on restart. Used as the fallback.
//   - File: one file per key under a directory, replaced atomically on write.
//   - Postgres: a kv_store table, schema managed by embedded migrations.
//
// Open picks a backend from Config and falls back to Memory when the durable
// backend cannot be opened, so the agent always starts probing.
package storage
