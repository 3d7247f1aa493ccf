// Package prober runs one liveness and latency check against an endpoint and
// turns the outcome into a types.Sample.
//
// Probe never returns an error. Timeouts, DNS failures, refused connections,
// TLS errors and non-2xx answers all become a Sample with Success=false, so a
// monitoring loop can keep going regardless of individual outcomes.
package prober
