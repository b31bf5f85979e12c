package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSharedState_Defaults(t *testing.T) {
	state := NewSharedState("what is go", "sess-1", "query-1")

	assert.Equal(t, "what is go", state.UserQuery)
	assert.Equal(t, "sess-1", state.SessionID)
	assert.Equal(t, "query-1", state.QueryID)
	assert.True(t, state.NeedsResearch, "research must default to true")
	assert.Empty(t, state.SearchQueries)
	assert.Empty(t, state.ResearchResults)
	assert.Empty(t, state.ValidatedFacts)
	assert.Empty(t, state.ConflictingInfo)
	assert.Empty(t, state.FinalResponse)
	assert.Empty(t, state.AgentHistory)
}

func TestSharedState_HistoryGrowsByOnePerStage(t *testing.T) {
	state := NewSharedState("q", "s", "id")

	state.ApplyPlan("plan", true, []string{"q"}, AgentStep{Agent: "planner", Action: "planned"})
	require.Len(t, state.AgentHistory, 1)

	state.ApplyResearch([]ResearchResult{{Query: "q"}}, AgentStep{Agent: "researcher", Action: "searched"})
	require.Len(t, state.AgentHistory, 2)

	state.ApplyValidation([]string{"fact"}, nil, AgentStep{Agent: "validator", Action: "validated"})
	require.Len(t, state.AgentHistory, 3)

	state.ApplyResponse("answer", AgentStep{Agent: "synthesizer", Action: "synthesized"})
	require.Len(t, state.AgentHistory, 4)

	agents := make([]string, 0, len(state.AgentHistory))
	for _, step := range state.AgentHistory {
		agents = append(agents, step.Agent)
	}
	assert.Equal(t, []string{"planner", "researcher", "validator", "synthesizer"}, agents,
		"history order must equal execution order")
	assert.Equal(t, "synthesizer", state.ActiveAgent)
}

func TestSharedState_SourceCount(t *testing.T) {
	state := NewSharedState("q", "s", "id")
	state.ResearchResults = []ResearchResult{
		{Query: "a", Sources: []Source{{Title: "1"}, {Title: "2"}}},
		{Query: "b", Error: "boom"},
		{Query: "c", Sources: []Source{{Title: "3"}}},
	}
	assert.Equal(t, 3, state.SourceCount())
}

func TestSharedState_HistoryCopyIsDefensive(t *testing.T) {
	state := NewSharedState("q", "s", "id")
	state.ApplyPlan("p", false, nil, AgentStep{Agent: "planner", Action: "planned"})

	snapshot := state.HistoryCopy()
	state.ApplyResponse("hi", AgentStep{Agent: "synthesizer", Action: "responded"})

	assert.Len(t, snapshot, 1)
	assert.Len(t, state.AgentHistory, 2)
}

func TestNewAgentUpdateEvent_BoundedPayload(t *testing.T) {
	state := NewSharedState("q", "s", "id")
	state.ApplyPlan("plan", true, []string{"a", "b"}, AgentStep{Agent: "planner", Action: "planned"})
	state.ApplyResearch([]ResearchResult{
		{Query: "a", Sources: []Source{{Title: "t", Content: "long content"}}},
	}, AgentStep{Agent: "researcher", Action: "searched"})

	ev := NewAgentUpdateEvent(state)
	assert.Equal(t, EventTypeAgentUpdate, ev.Type)
	assert.Equal(t, "researcher", ev.Agent)
	require.NotNil(t, ev.Data.SourceCount)
	assert.Equal(t, 1, *ev.Data.SourceCount)
	assert.Nil(t, ev.Data.ValidatedFactCount)

	// Full source payloads must not leak into the event JSON.
	raw := ev.Marshal()
	assert.NotContains(t, string(raw), "long content")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "agent_update", decoded["type"])
}

func TestNewFinalResponseEvent(t *testing.T) {
	ev := NewFinalResponseEvent("answer text")
	assert.Equal(t, EventTypeFinalResponse, ev.Type)
	assert.Equal(t, "answer text", ev.Content)
}

func TestStageError_Classification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"deadline", context.DeadlineExceeded, true},
		{"cancellation", fmt.Errorf("model call: %w", context.Canceled), false},
		{"rate limit", errors.New("openai api error: 429 rate limit exceeded"), true},
		{"auth", errors.New("401 unauthorized: invalid api key"), false},
		{"service unavailable", errors.New("tavily http 503"), true},
		{"generic", errors.New("something else"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stageErr := NewStageError("planner", tt.err)
			assert.Equal(t, tt.retryable, stageErr.Retryable)
			assert.Equal(t, tt.retryable, IsRetryable(stageErr))
			assert.ErrorIs(t, stageErr, tt.err)
			assert.Contains(t, stageErr.Error(), "planner")
		})
	}
}

func TestStageError_WrappedClassification(t *testing.T) {
	inner := fmt.Errorf("model call: %w", context.DeadlineExceeded)
	stageErr := NewStageError("validator", inner)
	assert.True(t, stageErr.Retryable)
}
