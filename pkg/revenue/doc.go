// Package revenue maps badge counts to commission tiers and aggregates usage
// records into an impact report. Everything here is pure and total.
package revenue
