package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/researchmesh/agent"
	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/model"
	"github.com/hupe1980/researchmesh/search"
	"github.com/hupe1980/researchmesh/store"
)

// fixedModel returns the same canned response for every call.
type fixedModel struct {
	response string
	err      error
}

func (m *fixedModel) Generate(_ context.Context, _ model.Request) (<-chan model.Response, <-chan error) {
	respCh := make(chan model.Response, 1)
	errCh := make(chan error, 1)
	go func() {
		defer close(respCh)
		defer close(errCh)
		if m.err != nil {
			errCh <- m.err
			return
		}
		respCh <- model.Response{Text: m.response, FinishReason: "stop"}
	}()
	return respCh, errCh
}

func (m *fixedModel) Info() model.Info { return model.Info{Name: "fixed", Provider: "mock"} }

// fixedSearch returns the same canned response for every query.
type fixedSearch struct {
	response *search.Response
	err      error
}

func (f *fixedSearch) Search(_ context.Context, _ search.Request) (*search.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.response != nil {
		return f.response, nil
	}
	return &search.Response{}, nil
}

func (f *fixedSearch) Extract(_ context.Context, _ []string) ([]search.ExtractResult, error) {
	return nil, nil
}

func (f *fixedSearch) Crawl(_ context.Context, _ string, _ int, _ string) ([]search.CrawlResult, error) {
	return nil, nil
}

func (f *fixedSearch) Map(_ context.Context, _ string) ([]string, error) { return nil, nil }

type graphFixture struct {
	graph *Graph
	store *store.InMemory
}

// newGraphFixture wires a full graph around canned models: the planner
// routes per plannerJSON, the search returns searchResp, the validator
// replies validatorJSON and the synthesizer answers finalAnswer.
func newGraphFixture(t *testing.T, plannerJSON, validatorJSON, finalAnswer string, searchResp *search.Response) *graphFixture {
	t.Helper()

	st := store.NewInMemory()

	planner := agent.NewPlanner(&fixedModel{response: plannerJSON}, st)
	researcher := agent.NewResearcher(&fixedSearch{response: searchResp}, st)
	validator := agent.NewValidator(&fixedModel{response: validatorJSON}, st)
	synthesizer := agent.NewSynthesizer(&fixedModel{response: finalAnswer}, st)

	return &graphFixture{
		graph: New(planner, researcher, validator, synthesizer, st),
		store: st,
	}
}

func boilingPointFixture(t *testing.T) *graphFixture {
	t.Helper()
	return newGraphFixture(t,
		`{"needs_research": true, "search_queries": ["boiling point water sea level"], "execution_plan": "Search for the boiling point"}`,
		`{"validated_facts": ["Water boils at 100°C at sea level"], "conflicting_info": [], "reliability_assessment": "high"}`,
		"Water boils at **100°C** at sea level.",
		&search.Response{
			Answer: "100°C at 1 atm",
			Results: []search.Result{
				{Title: "Physics ref", URL: "https://phys.example", Content: "100°C at 1 atm", Score: 0.95},
			},
		},
	)
}

func simpleFixture(t *testing.T) *graphFixture {
	t.Helper()
	return newGraphFixture(t,
		`{"needs_research": false, "search_queries": [], "execution_plan": "Respond conversationally"}`,
		`{}`,
		"Hello! How can I help you today?",
		nil,
	)
}

func TestGraphResearchPath(t *testing.T) {
	fx := boilingPointFixture(t)
	ctx := context.Background()

	sessionID, err := fx.store.CreateSession(ctx)
	require.NoError(t, err)

	state, err := fx.graph.Run(ctx, "What is the boiling point of water at sea level?", sessionID)
	require.NoError(t, err)

	assert.NotEmpty(t, state.FinalResponse)
	assert.Contains(t, state.FinalResponse, "100")

	agents := make([]string, 0, len(state.AgentHistory))
	for _, step := range state.AgentHistory {
		agents = append(agents, step.Agent)
	}
	assert.Equal(t, []string{"planner", "researcher", "validator", "synthesizer"}, agents)

	require.Len(t, state.ResearchResults, 1)
	assert.Equal(t, []string{"Water boils at 100°C at sea level"}, state.ValidatedFacts)

	// Exactly one assistant turn equal to the final response.
	session, err := fx.store.GetSession(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, session.Messages, 1)
	assert.Equal(t, "assistant", session.Messages[0].Role)
	assert.Equal(t, state.FinalResponse, session.Messages[0].Content)

	// The audit trail is persisted once, keyed by query id.
	require.Contains(t, session.AgentHistory, state.QueryID)
	assert.Len(t, session.AgentHistory[state.QueryID], 4)
}

func TestGraphSimplePath(t *testing.T) {
	fx := simpleFixture(t)
	ctx := context.Background()

	sessionID, err := fx.store.CreateSession(ctx)
	require.NoError(t, err)

	state, err := fx.graph.Run(ctx, "hi", sessionID)
	require.NoError(t, err)

	assert.Equal(t, "Hello! How can I help you today?", state.FinalResponse)
	assert.Empty(t, state.ResearchResults)
	assert.Empty(t, state.ValidatedFacts)
	require.Len(t, state.AgentHistory, 2)
	assert.Equal(t, "planner", state.AgentHistory[0].Agent)
	assert.Equal(t, "synthesizer", state.AgentHistory[1].Agent)
}

func TestGraphResearchAlwaysAttemptsSearch(t *testing.T) {
	// Every search query failing still yields a non-empty results attempt.
	st := store.NewInMemory()
	planner := agent.NewPlanner(&fixedModel{response: `{"needs_research": true, "search_queries": ["q"], "execution_plan": "p"}`}, st)
	researcher := agent.NewResearcher(&fixedSearch{err: errors.New("search backend down")}, st)
	validator := agent.NewValidator(&fixedModel{response: `{"validated_facts": [], "conflicting_info": []}`}, st)
	synthesizer := agent.NewSynthesizer(&fixedModel{response: "best effort answer"}, st)

	graph := New(planner, researcher, validator, synthesizer, st)

	state, err := graph.Run(context.Background(), "anything", "")
	require.NoError(t, err)

	require.Len(t, state.ResearchResults, 1)
	assert.NotEmpty(t, state.ResearchResults[0].Error)
	assert.NotEmpty(t, state.FinalResponse)
}

func TestGraphRunWithoutSession(t *testing.T) {
	fx := simpleFixture(t)

	state, err := fx.graph.Run(context.Background(), "hi", "")
	require.NoError(t, err)
	assert.NotEmpty(t, state.FinalResponse)
}

func TestGraphStageFailureAbortsRun(t *testing.T) {
	st := store.NewInMemory()
	planner := agent.NewPlanner(&fixedModel{err: errors.New("request timeout")}, st)
	researcher := agent.NewResearcher(&fixedSearch{}, st)
	validator := agent.NewValidator(&fixedModel{response: "{}"}, st)
	synthesizer := agent.NewSynthesizer(&fixedModel{response: "never reached"}, st)

	graph := New(planner, researcher, validator, synthesizer, st)

	state, err := graph.Run(context.Background(), "anything", "")
	require.Error(t, err)

	var stageErr *core.PipelineError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, "planner", stageErr.Stage)
	assert.True(t, core.IsRetryable(err))
	assert.Empty(t, state.FinalResponse)
}

func TestGraphRunStreamEmitsPerStageEvents(t *testing.T) {
	fx := boilingPointFixture(t)
	ctx := context.Background()

	sessionID, err := fx.store.CreateSession(ctx)
	require.NoError(t, err)

	eventsCh, errorsCh := fx.graph.RunStream(ctx, "What is the boiling point of water at sea level?", sessionID)

	var events []core.Event
	for ev := range eventsCh {
		events = append(events, ev)
	}
	require.NoError(t, <-errorsCh)

	// One agent_update per stage, then the final response.
	require.Len(t, events, 5)
	wantAgents := []string{"planner", "researcher", "validator", "synthesizer"}
	for i, want := range wantAgents {
		assert.Equal(t, core.EventTypeAgentUpdate, events[i].Type)
		assert.Equal(t, want, events[i].Agent)
		require.NotNil(t, events[i].Data)
		assert.Len(t, events[i].Data.AgentHistory, i+1)
	}

	final := events[4]
	assert.Equal(t, core.EventTypeFinalResponse, final.Type)
	assert.Contains(t, final.Content, "100")
}

func TestGraphRunStreamSimplePath(t *testing.T) {
	fx := simpleFixture(t)

	eventsCh, errorsCh := fx.graph.RunStream(context.Background(), "hi", "")

	var events []core.Event
	for ev := range eventsCh {
		events = append(events, ev)
	}
	require.NoError(t, <-errorsCh)

	require.Len(t, events, 3)
	assert.Equal(t, "planner", events[0].Agent)
	assert.Equal(t, "synthesizer", events[1].Agent)
	assert.Equal(t, core.EventTypeFinalResponse, events[2].Type)
}

func TestGraphRunStreamPropagatesStageFailure(t *testing.T) {
	st := store.NewInMemory()
	planner := agent.NewPlanner(&fixedModel{response: `{"needs_research": true, "search_queries": ["q"], "execution_plan": "p"}`}, st)
	researcher := agent.NewResearcher(&fixedSearch{}, st)
	validator := agent.NewValidator(&fixedModel{err: errors.New("429 too many requests")}, st)
	synthesizer := agent.NewSynthesizer(&fixedModel{response: "never reached"}, st)

	graph := New(planner, researcher, validator, synthesizer, st)

	eventsCh, errorsCh := graph.RunStream(context.Background(), "anything", "")

	var events []core.Event
	for ev := range eventsCh {
		events = append(events, ev)
	}

	// Updates for the stages that completed, then the terminal error.
	require.Len(t, events, 2)
	assert.Equal(t, "planner", events[0].Agent)
	assert.Equal(t, "researcher", events[1].Agent)

	err := <-errorsCh
	require.Error(t, err)
	var stageErr *core.PipelineError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, "validator", stageErr.Stage)
}

func TestGraphRunCancelledContext(t *testing.T) {
	fx := simpleFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fx.graph.Run(ctx, "hi", "")
	require.Error(t, err)
}

func TestGraphEventPayloadIsBounded(t *testing.T) {
	longContent := ""
	for i := 0; i < 100; i++ {
		longContent += "very long research content "
	}

	fx := newGraphFixture(t,
		`{"needs_research": true, "search_queries": ["q"], "execution_plan": "p"}`,
		`{"validated_facts": ["f"], "conflicting_info": []}`,
		"answer",
		&search.Response{Results: []search.Result{{Title: "t", URL: "https://x.example", Content: longContent}}},
	)

	eventsCh, errorsCh := fx.graph.RunStream(context.Background(), "q", "")

	for ev := range eventsCh {
		if ev.Type == core.EventTypeAgentUpdate {
			assert.NotContains(t, string(ev.Marshal()), longContent,
				fmt.Sprintf("agent_update for %s must not carry full research content", ev.Agent))
		}
	}
	require.NoError(t, <-errorsCh)
}
