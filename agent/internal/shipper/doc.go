// Package shipper sends entity snapshots to the apibadges server as JSON over
// HTTP (POST /api/v1/ingest).
//
// Shipper.Ship() is non-blocking: snapshots are placed in an in-memory channel
// (default capacity 1000). When the buffer is full the oldest entry is evicted
// so the latest state is always preserved.
//
// Shipper.Run() drains the buffer in batches and retries a failed batch with
// truncated exponential backoff (1s to 60s, ±25% jitter). A 4xx answer other
// than 429 means the batch itself is bad; it is discarded instead of retried.
package shipper
