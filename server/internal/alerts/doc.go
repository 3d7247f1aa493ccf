// Package alerts evaluates threshold rules against entity snapshots, emits
// badge earned/lost events and delivers both to Slack, Teams or generic HTTP
// webhooks.
package alerts
