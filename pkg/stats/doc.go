// Package stats computes the descriptive statistics that drive badge rules.
//
// stats.go holds the pure series functions: MeanStd (population mean and
// standard deviation), TrendOf (least-squares slope against a 1-based index),
// Anomalies (values further than two standard deviations from the mean) and
// StabilityOf (coefficient of variation bands).
//
// reliability.go holds ReliabilityScore, the weighted 0–100 composite over a
// sample history, and Analyze, the pattern summary used for badge confidence:
//
//	score = (uptime_above_95 * 0.40 + response_below_500ms * 0.30 + consistency * 0.30) * 100
//
// Nothing here is adaptive or learned; every function is deterministic.
package stats
