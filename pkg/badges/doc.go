// Package badges evaluates the fixed badge rule table against an entity's
// sample history.
//
// rules.go holds the catalogue. Each Rule is a conjunction of Criteria
// ("avg_uptime >= 99", "stability == excellent") evaluated against one
// Aggregates value. Rules are independent: any subset may be earned at once.
//
// engine.go computes Aggregates once per evaluation (mean uptime over all
// samples, mean response time over successful samples only, response-time
// stability, reliability score) and applies every rule to that snapshot.
// Histories shorter than MinSamples earn nothing.
//
// Rules backed by External counters (community_proven, highly_adopted,
// zero_downtime) never fire when no counters are supplied.
package badges
