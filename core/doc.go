// Package core defines the shared data structures threaded through the
// research pipeline: the per-query SharedState record, the research result
// and audit trail types, the workflow events streamed to clients, and the
// typed pipeline failure taxonomy.
//
// SharedState follows a single-writer discipline: each field is written by
// exactly one pipeline stage via the Apply* merge methods, and AgentHistory
// is the only field every stage appends to. A state instance is constructed
// fresh per incoming query, flows through the workflow graph exactly once,
// and is discarded after the terminal stage's output is persisted.
package core
