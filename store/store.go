package store

import (
	"context"
	"time"

	"github.com/hupe1980/researchmesh/core"
)

// Message is one turn of a session transcript.
type Message struct {
	Role      string    `json:"role" bson:"role"`
	Content   string    `json:"content" bson:"content"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// Session is a conversational container: an ordered transcript plus the
// agent audit trails of the queries answered within it, keyed by query id.
type Session struct {
	ID           string                      `json:"id"`
	CreatedAt    time.Time                   `json:"created_at"`
	Messages     []Message                   `json:"messages"`
	AgentHistory map[string][]core.AgentStep `json:"agent_history,omitempty"`
}

// QueryRecord is one logged user query.
type QueryRecord struct {
	ID        string    `json:"id"`
	UserQuery string    `json:"user_query"`
	SessionID string    `json:"session_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// AgentOutput is the raw output of one agent for one query, kept for later
// inspection.
type AgentOutput struct {
	ID        string         `json:"id"`
	QueryID   string         `json:"query_id"`
	Agent     string         `json:"agent_name"`
	Output    string         `json:"output"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Store persists sessions, queries and agent outputs.
//
// Contract: logging writes (LogQuery, LogAgentOutput) always return a usable
// id (a locally generated placeholder when the store is disconnected) and
// only return an error for failures against a reachable store. Callers in
// the pipeline treat every write as fire-and-forget.
type Store interface {
	// Sessions
	CreateSession(ctx context.Context) (string, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context, limit int) ([]Session, error)
	DeleteSession(ctx context.Context, id string) (bool, error)
	AppendMessage(ctx context.Context, sessionID, role, content string) error
	SaveAgentHistory(ctx context.Context, sessionID, queryID string, history []core.AgentStep) error

	// Queries
	LogQuery(ctx context.Context, userQuery, sessionID string) (string, error)
	ListQueries(ctx context.Context, limit int) ([]QueryRecord, error)

	// Agent outputs
	LogAgentOutput(ctx context.Context, queryID, agent, output string, metadata map[string]any) (string, error)
	AgentOutputsForQuery(ctx context.Context, queryID string) ([]AgentOutput, error)
	ListAgentOutputs(ctx context.Context, limit int) ([]AgentOutput, error)

	// Health
	Connected() bool
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
