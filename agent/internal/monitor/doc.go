// Package monitor runs one monitoring cycle per target:
//
//	probe -> append to history -> usage counters -> evaluate badges ->
//	certificate status -> snapshot -> ship
//
// The target list is replaced atomically by SetTargets, so a config reload
// takes effect on the scheduler's next round. Probe and storage failures are
// logged and counted but never stop the cycle.
package monitor
