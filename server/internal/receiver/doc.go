// Package receiver is the HTTP endpoint that accepts snapshot batches from
// apibadges-agent instances.
//
// Handler decodes an IngestRequest, skips snapshots without an entity ID,
// stores the rest and passes each stored snapshot to the alert evaluator.
// Authentication is applied upstream by the auth middleware.
package receiver
