package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/internal/util"
	"github.com/hupe1980/researchmesh/logging"
	"github.com/hupe1980/researchmesh/metrics"
	"github.com/hupe1980/researchmesh/model"
	"github.com/hupe1980/researchmesh/store"
)

const plannerSystemPrompt = `You are the Planner Agent in a multi-agent research system.
Your role is to analyze user queries and create an execution plan.

Your responsibilities:
1. Understand the user's intent and information needs
2. Determine if web research is needed (most queries will need it)
3. Break down complex queries into specific search queries for the Researcher agent
4. Create a clear execution plan

For each query, output a JSON response with:
{
    "needs_research": true/false,
    "search_queries": ["query1", "query2", ...],
    "execution_plan": "Brief description of how to answer this query"
}

Guidelines:
- For factual questions, current events, or anything requiring recent information: needs_research = true
- For simple greetings, math, or questions about yourself: needs_research = false
- Search queries should be specific and search-engine optimized (1-3 queries)
- Keep execution plans concise but actionable`

const fallbackExecutionPlan = "Perform general research on the query"

// plannerPayload is the expected shape of the model's JSON block. Fields use
// pointers where absence must be distinguished from the zero value.
type plannerPayload struct {
	NeedsResearch *bool    `json:"needs_research"`
	SearchQueries []string `json:"search_queries"`
	ExecutionPlan string   `json:"execution_plan"`
}

// PlannerOptions configure the planner agent.
type PlannerOptions struct {
	CallTimeout time.Duration
	Logger      logging.Logger
}

// Planner maps a user query to an execution plan: whether research is
// needed, which search queries to run, and a short plan description. A
// non-compliant model response degrades to a fixed safe default and never
// raises.
type Planner struct {
	llm         model.Model
	store       store.Store
	callTimeout time.Duration
	logger      logging.Logger
}

// NewPlanner constructs a planner agent.
func NewPlanner(llm model.Model, st store.Store, optFns ...func(o *PlannerOptions)) *Planner {
	opts := PlannerOptions{CallTimeout: defaultCallTimeout, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Planner{llm: llm, store: st, callTimeout: opts.CallTimeout, logger: opts.Logger}
}

// Name implements Agent.
func (p *Planner) Name() string { return "planner" }

// Run implements Agent. It merges {execution_plan, needs_research,
// search_queries} into the state and appends one audit step.
func (p *Planner) Run(ctx context.Context, state *core.SharedState) error {
	callCtx, cancel := callContext(ctx, p.callTimeout)
	defer cancel()

	start := time.Now()
	raw, err := model.Complete(callCtx, p.llm, model.Request{
		Messages: []model.Message{
			model.SystemMessage(plannerSystemPrompt),
			model.UserMessage(fmt.Sprintf("Analyze this query and create an execution plan:\n\n%s", state.UserQuery)),
		},
		Temperature: 0.3,
	})
	logging.LogModelCall(p.logger, p.llm.Info().Name, time.Since(start), err)
	if err != nil {
		metrics.ModelCalls.WithLabelValues(p.llm.Info().Provider, "error").Inc()
		return core.NewStageError(p.Name(), err)
	}
	metrics.ModelCalls.WithLabelValues(p.llm.Info().Provider, "ok").Inc()

	plan, needsResearch, queries := p.parse(raw, state.UserQuery)

	logOutput(ctx, p.store, p.logger, state.QueryID, p.Name(), raw, map[string]any{
		"needs_research": needsResearch,
		"search_queries": queries,
		"execution_plan": plan,
	})

	state.ApplyPlan(plan, needsResearch, queries, core.AgentStep{
		Agent:  p.Name(),
		Action: "Created execution plan",
		Output: map[string]any{
			"needs_research": needsResearch,
			"search_queries": queries,
			"execution_plan": plan,
		},
	})

	return nil
}

// parse extracts the brace-delimited JSON block from the raw completion,
// falling back to a safe default plan on any failure. Fields absent from an
// otherwise valid block take the same defaults.
func (p *Planner) parse(raw, userQuery string) (plan string, needsResearch bool, queries []string) {
	var payload plannerPayload
	if !util.DecodeJSONBlock(raw, &payload) {
		p.logger.Warn("planner output not parseable, using fallback plan")
		return fallbackExecutionPlan, true, []string{userQuery}
	}

	needsResearch = true
	if payload.NeedsResearch != nil {
		needsResearch = *payload.NeedsResearch
	}
	queries = payload.SearchQueries
	if len(queries) == 0 {
		queries = []string{userQuery}
	}
	plan = payload.ExecutionPlan
	if plan == "" {
		plan = fallbackExecutionPlan
	}
	return plan, needsResearch, queries
}
