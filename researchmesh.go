// Package researchmesh provides a high-level façade over the research
// pipeline: a planner routes each query either through web research
// (researcher, validator, synthesizer) or straight to a conversational
// answer. Most applications interact with this package by:
//  1. Creating a ResearchMesh via New() with a model and a search client
//  2. Asking questions synchronously (Ask) or as an event stream (AskStream)
//
// The façade delegates orchestration to workflow.Graph while keeping setup
// ergonomics concise. Defaults are safe for local development and testing;
// production deployments typically supply a Mongo-backed store and a
// structured logger.
package researchmesh

import (
	"context"
	"time"

	"github.com/hupe1980/researchmesh/agent"
	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/logging"
	"github.com/hupe1980/researchmesh/model"
	"github.com/hupe1980/researchmesh/search"
	"github.com/hupe1980/researchmesh/store"
	"github.com/hupe1980/researchmesh/workflow"
)

// Options configures the ResearchMesh instance.
type Options struct {
	// Store persists sessions, queries and agent outputs. Defaults to an
	// in-memory implementation.
	Store store.Store

	// CallTimeout bounds each external model or search call.
	CallTimeout time.Duration

	// SearchDepth selects provider effort for pipeline searches ("basic" or
	// "advanced").
	SearchDepth string

	// OnFragment, when set, receives the final answer incrementally as the
	// model produces it.
	OnFragment func(fragment string)

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// ResearchMesh is the high-level façade aggregating the agents and the
// workflow graph.
type ResearchMesh struct {
	graph *workflow.Graph
	store store.Store
}

// New creates a ResearchMesh around a model and a search client with
// optional overrides.
func New(llm model.Model, searchClient search.Client, optFns ...func(o *Options)) *ResearchMesh {
	opts := Options{
		Store:       store.NewInMemory(),
		CallTimeout: time.Minute,
		SearchDepth: "advanced",
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	planner := agent.NewPlanner(llm, opts.Store, func(o *agent.PlannerOptions) {
		o.CallTimeout = opts.CallTimeout
		o.Logger = opts.Logger
	})
	researcher := agent.NewResearcher(searchClient, opts.Store, func(o *agent.ResearcherOptions) {
		o.SearchDepth = opts.SearchDepth
		o.CallTimeout = opts.CallTimeout
		o.Logger = opts.Logger
	})
	validator := agent.NewValidator(llm, opts.Store, func(o *agent.ValidatorOptions) {
		o.CallTimeout = opts.CallTimeout
		o.Logger = opts.Logger
	})
	synthesizer := agent.NewSynthesizer(llm, opts.Store, func(o *agent.SynthesizerOptions) {
		o.CallTimeout = opts.CallTimeout
		o.Logger = opts.Logger
		o.OnFragment = opts.OnFragment
	})

	graph := workflow.New(planner, researcher, validator, synthesizer, opts.Store, func(o *workflow.Options) {
		o.Logger = opts.Logger
	})

	return &ResearchMesh{graph: graph, store: opts.Store}
}

// Store exposes the configured persistence layer, e.g. for session CRUD.
func (m *ResearchMesh) Store() store.Store { return m.store }

// Graph exposes the underlying workflow driver, e.g. for the HTTP layer.
func (m *ResearchMesh) Graph() *workflow.Graph { return m.graph }

// Ask runs the pipeline to completion and returns the final answer along
// with the full state for inspection.
func (m *ResearchMesh) Ask(ctx context.Context, query, sessionID string) (*core.SharedState, error) {
	return m.graph.Run(ctx, query, sessionID)
}

// AskStream runs the pipeline asynchronously, yielding one agent_update
// event per completed stage followed by a final_response event. Both
// channels close when the run ends; the error channel carries at most one
// terminal error.
func (m *ResearchMesh) AskStream(ctx context.Context, query, sessionID string) (<-chan core.Event, <-chan error) {
	return m.graph.RunStream(ctx, query, sessionID)
}
