// Package api implements the HTTP REST API for apibadges-server.
//
// New returns a chi router that serves:
//
//	GET  /api/v1/health                   service status and fleet summary
//	GET  /api/v1/entities                 all live entities with diagnostics
//	GET  /api/v1/entities/{id}            one entity; 404 if unknown or stale
//	GET  /api/v1/entities/{id}/badges     badges of one entity
//	GET  /api/v1/entities/{id}/revenue    commission at the entity's badge count
//	GET  /api/v1/badges/rules             badge catalogue and commission tiers
//	POST /api/v1/evaluate                 evaluate a supplied history
//	POST /api/v1/evaluate/bulk            evaluate many histories
//	POST /api/v1/usage                    record a usage data point (protected)
//	GET  /api/v1/impact                   badge impact report over usage
//	GET  /api/v1/alerts                   firing and recent alerts
//	GET  /api/v1/snapshot                 full dump of live entities
//	POST /api/v1/ingest                   agent snapshots (protected)
//
// All responses are JSON; errors use {"error": "..."}. JSON types are defined
// in types.go.
package api
