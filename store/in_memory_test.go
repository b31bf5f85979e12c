package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/researchmesh/core"
)

// Interface compliance (compile-time assertions)
var (
	_ Store = (*InMemory)(nil)
	_ Store = (*Mongo)(nil)
)

func TestInMemory_SessionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()

	id, err := s.CreateSession(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.NoError(t, s.AppendMessage(ctx, id, "user", "hello"))
	require.NoError(t, s.AppendMessage(ctx, id, "assistant", "hi there"))

	session, err := s.GetSession(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, session)
	require.Len(t, session.Messages, 2)
	assert.Equal(t, "user", session.Messages[0].Role)
	assert.Equal(t, "hi there", session.Messages[1].Content)

	sessions, err := s.ListSessions(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)

	deleted, err := s.DeleteSession(ctx, id)
	require.NoError(t, err)
	assert.True(t, deleted)

	session, err = s.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestInMemory_SaveAgentHistory(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()

	id, err := s.CreateSession(ctx)
	require.NoError(t, err)

	history := []core.AgentStep{
		{Agent: "planner", Action: "planned", Output: "plan"},
		{Agent: "synthesizer", Action: "responded", Output: "answer"},
	}
	require.NoError(t, s.SaveAgentHistory(ctx, id, "query-1", history))

	session, err := s.GetSession(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, session)
	require.Contains(t, session.AgentHistory, "query-1")
	assert.Len(t, session.AgentHistory["query-1"], 2)
}

func TestInMemory_QueryAndOutputLogs(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()

	q1, err := s.LogQuery(ctx, "first", "sess")
	require.NoError(t, err)
	q2, err := s.LogQuery(ctx, "second", "sess")
	require.NoError(t, err)
	require.NotEqual(t, q1, q2)

	// Newest first.
	queries, err := s.ListQueries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, queries, 2)
	assert.Equal(t, "second", queries[0].UserQuery)

	_, err = s.LogAgentOutput(ctx, q1, "planner", "raw output", map[string]any{"needs_research": true})
	require.NoError(t, err)
	_, err = s.LogAgentOutput(ctx, q1, "researcher", "results", nil)
	require.NoError(t, err)
	_, err = s.LogAgentOutput(ctx, q2, "planner", "other", nil)
	require.NoError(t, err)

	outputs, err := s.AgentOutputsForQuery(ctx, q1)
	require.NoError(t, err)
	require.Len(t, outputs, 2)
	assert.Equal(t, "planner", outputs[0].Agent)
	assert.Equal(t, "researcher", outputs[1].Agent)

	all, err := s.ListAgentOutputs(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestInMemory_DisconnectedDegradesToPlaceholders(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	s.SetDisconnected(true)

	assert.False(t, s.Connected())
	assert.Error(t, s.Ping(ctx))

	// Every logging call returns a usable placeholder id with no error.
	id, err := s.CreateSession(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	qid, err := s.LogQuery(ctx, "q", id)
	require.NoError(t, err)
	assert.NotEmpty(t, qid)

	oid, err := s.LogAgentOutput(ctx, qid, "planner", "out", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, oid)

	require.NoError(t, s.AppendMessage(ctx, id, "user", "hello"))
	require.NoError(t, s.SaveAgentHistory(ctx, id, qid, nil))

	// Reads degrade to empty results.
	session, err := s.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, session)

	queries, err := s.ListQueries(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, queries)
}
