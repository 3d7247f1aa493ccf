// Package ws streams entity snapshots to browser clients over WebSocket.
//
// Every broadcast carries the same payload as GET /api/v1/snapshot:
//
//	{
//	  "event": "snapshot",
//	  "data":  { "entities": [...], "generated_at": "..." }
//	}
//
// The hub pushes on a fixed interval and, in between, whenever Evaluate is
// called for a freshly ingested snapshot. Pushes triggered by ingest are
// coalesced so a burst of snapshots yields one message.
//
// The upgrader accepts all origins; restrict them at the reverse proxy.
// The server mounts the hub at /ws/stream.
package ws
