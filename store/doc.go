// Package store persists sessions, query logs and per-agent outputs to a
// document database.
//
// All pipeline-facing writes are best effort: when the backing database is
// unreachable the adapter degrades to a disconnected mode where logging
// calls return locally generated placeholder ids and reads return empty
// results, so a store outage never fails agent processing. Dropped and
// failed writes are counted in the metrics package rather than silently
// lost.
package store
