// Package usage reads usage counters (active users, consecutive up hours)
// for a target from a Prometheus text exposition endpoint. They feed the
// badge rules that cannot be derived from probe history.
package usage
