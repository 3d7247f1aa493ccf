// Package store holds the server's view of monitored entities: the latest
// snapshot per entity with TTL eviction, and a bounded usage ledger that feeds
// the impact report.
package store
