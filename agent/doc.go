// Package agent implements the four pipeline agents: planner, researcher,
// validator and synthesizer.
//
// Each agent performs one pass over the shared state (a "stage"): it reads
// the fields guaranteed by upstream stages, calls its external service,
// merges its output via the state's single-writer Apply methods, appends
// exactly one audit trail step and logs its raw output to the store on a
// fire-and-forget basis.
//
// Error policy follows a strict split: model JSON non-compliance and
// per-query search failures are recovered locally with fixed fallbacks and
// never surface to the caller, while transport failures (timeout, auth,
// rate limit) abort the stage as a typed *core.PipelineError.
package agent
