// Package workflow drives the agent pipeline: planner, then either the
// research branch (researcher, validator, synthesizer) or the simple branch
// (synthesizer alone), selected once by the planner's needs_research flag.
// Both branches converge on a final response; there is no cycle or retry
// edge.
package workflow

import (
	"context"
	"time"

	"github.com/hupe1980/researchmesh/agent"
	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/logging"
	"github.com/hupe1980/researchmesh/metrics"
	"github.com/hupe1980/researchmesh/store"
)

// Options holds dependency and configuration overrides passed to New().
type Options struct {
	// EventBufferSize sets channel buffering for streamed events.
	EventBufferSize int
	// Logger receives pipeline lifecycle logs.
	Logger logging.Logger
}

// Graph wires the four agents over a shared store. Public methods are safe
// for concurrent use: each run owns an independent state instance and the
// store provides atomic per-document operations.
type Graph struct {
	planner     agent.Agent
	researcher  agent.Agent
	validator   agent.Agent
	synthesizer agent.Agent

	store           store.Store
	eventBufferSize int
	logger          logging.Logger
}

// New constructs a Graph with optional overrides.
func New(planner, researcher, validator, synthesizer agent.Agent, st store.Store, optFns ...func(o *Options)) *Graph {
	opts := Options{
		EventBufferSize: 16,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Graph{
		planner:         planner,
		researcher:      researcher,
		validator:       validator,
		synthesizer:     synthesizer,
		store:           st,
		eventBufferSize: opts.EventBufferSize,
		logger:          opts.Logger,
	}
}

// Run executes the pipeline to completion and returns the final state. The
// query is logged to the store before the first stage; the audit trail is
// persisted once after the last. A stage failure aborts the run with a typed
// *core.PipelineError, leaving the partially populated state behind the
// returned error.
func (g *Graph) Run(ctx context.Context, userQuery, sessionID string) (*core.SharedState, error) {
	state, logger := g.newRun(ctx, userQuery, sessionID)
	err := g.execute(ctx, state, logger, nil)
	g.finishRun(ctx, state, logger, err)
	if err != nil {
		return state, err
	}
	return state, nil
}

// RunStream executes the pipeline asynchronously, yielding one agent_update
// event after each completed stage and a final_response event carrying the
// full answer. Both channels are closed when the run ends; the error channel
// carries at most one terminal error. Cancelling ctx aborts between stages.
func (g *Graph) RunStream(ctx context.Context, userQuery, sessionID string) (<-chan core.Event, <-chan error) {
	eventsCh := make(chan core.Event, g.eventBufferSize)
	errorsCh := make(chan error, 1)

	state, logger := g.newRun(ctx, userQuery, sessionID)

	go func() {
		defer close(eventsCh)
		defer close(errorsCh)

		emit := func(ev core.Event) bool {
			select {
			case <-ctx.Done():
				return false
			case eventsCh <- ev:
				return true
			}
		}

		err := g.execute(ctx, state, logger, emit)
		g.finishRun(ctx, state, logger, err)
		if err != nil {
			errorsCh <- err
			return
		}
		emit(core.NewFinalResponseEvent(state.FinalResponse))
	}()

	return eventsCh, errorsCh
}

// newRun builds the state for one incoming query, plus a logger scoped to
// the run's session and query ids. The query id comes from the store's query
// log; a disconnected store still hands back a usable placeholder id.
func (g *Graph) newRun(ctx context.Context, userQuery, sessionID string) (*core.SharedState, logging.Logger) {
	queryID, err := g.store.LogQuery(ctx, userQuery, sessionID)
	if err != nil {
		g.logger.Warn("failed to log query", "error", err)
	}
	return core.NewSharedState(userQuery, sessionID, queryID), logging.ScopeToQuery(g.logger, sessionID, queryID)
}

// execute runs the stage sequence, invoking emit (when non-nil) after each
// completed stage.
func (g *Graph) execute(ctx context.Context, state *core.SharedState, logger logging.Logger, emit func(core.Event) bool) error {
	if err := g.runStage(ctx, g.planner, state, logger, emit); err != nil {
		metrics.PipelineRunsStarted.WithLabelValues("research").Inc()
		metrics.PipelineRunsCompleted.WithLabelValues("research", "error").Inc()
		return err
	}

	mode := "research"
	stages := []agent.Agent{g.researcher, g.validator, g.synthesizer}
	if !state.NeedsResearch {
		mode = "simple"
		stages = []agent.Agent{g.synthesizer}
	}
	metrics.PipelineRunsStarted.WithLabelValues(mode).Inc()

	for _, stage := range stages {
		if err := g.runStage(ctx, stage, state, logger, emit); err != nil {
			metrics.PipelineRunsCompleted.WithLabelValues(mode, "error").Inc()
			return err
		}
	}

	metrics.PipelineRunsCompleted.WithLabelValues(mode, "ok").Inc()
	return nil
}

func (g *Graph) runStage(ctx context.Context, stage agent.Agent, state *core.SharedState, logger logging.Logger, emit func(core.Event) bool) error {
	if err := ctx.Err(); err != nil {
		return core.NewStageError(stage.Name(), err)
	}

	start := time.Now()
	err := stage.Run(ctx, state)
	dur := time.Since(start)
	metrics.StageDuration.WithLabelValues(stage.Name()).Observe(dur.Seconds())
	logging.LogStageExecution(logger, stage.Name(), dur, err)

	if err != nil {
		return err
	}

	if emit != nil && !emit(core.NewAgentUpdateEvent(state)) {
		return core.NewStageError(stage.Name(), ctx.Err())
	}
	return nil
}

// finishRun persists the audit trail exactly once per run, fire-and-forget.
// Failed runs keep their partial trail for inspection.
func (g *Graph) finishRun(ctx context.Context, state *core.SharedState, logger logging.Logger, runErr error) {
	if state.SessionID == "" || len(state.AgentHistory) == 0 {
		return
	}
	// The request context may already be cancelled on the error path.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := g.store.SaveAgentHistory(saveCtx, state.SessionID, state.QueryID, state.AgentHistory); err != nil {
		logger.Warn("failed to save agent history", "session_id", state.SessionID, "error", err)
	}
	if runErr != nil {
		logger.Warn("pipeline run failed", "query_id", state.QueryID, "error", runErr)
	}
}
