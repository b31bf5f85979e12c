package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/internal/util"
	"github.com/hupe1980/researchmesh/metrics"
)

// InMemory is a volatile Store implementation keeping documents in process
// local maps. It is safe for concurrent access and best suited for tests or
// keyless development. Setting disconnected mimics an unreachable database:
// every write degrades to a placeholder id exactly like the Mongo adapter.
type InMemory struct {
	mu           sync.RWMutex
	disconnected bool
	sessions     map[string]*Session
	queries      []QueryRecord
	outputs      []AgentOutput
}

// NewInMemory constructs an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{sessions: make(map[string]*Session)}
}

// SetDisconnected toggles the simulated outage mode.
func (s *InMemory) SetDisconnected(disconnected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnected = disconnected
}

// Connected reports whether the store accepts writes.
func (s *InMemory) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.disconnected
}

// Ping checks store health.
func (s *InMemory) Ping(context.Context) error {
	if !s.Connected() {
		return fmt.Errorf("store disconnected")
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemory) Close(context.Context) error { return nil }

// CreateSession allocates an empty session.
func (s *InMemory) CreateSession(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := util.NewID()
	if s.disconnected {
		metrics.StoreWritesDropped.WithLabelValues("create_session").Inc()
		return id, nil
	}
	s.sessions[id] = &Session{ID: id, CreatedAt: time.Now().UTC(), Messages: []Message{}}
	return id, nil
}

// GetSession returns a copy of the stored session or nil when absent.
func (s *InMemory) GetSession(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.disconnected {
		return nil, nil
	}
	session, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	return cloneSession(session), nil
}

// ListSessions returns up to limit sessions, newest first.
func (s *InMemory) ListSessions(_ context.Context, limit int) ([]Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.disconnected {
		return []Session{}, nil
	}
	sessions := make([]Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, *cloneSession(session))
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].CreatedAt.After(sessions[j].CreatedAt) })
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

// DeleteSession removes a session by id.
func (s *InMemory) DeleteSession(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disconnected {
		return false, nil
	}
	if _, ok := s.sessions[id]; !ok {
		return false, nil
	}
	delete(s.sessions, id)
	return true, nil
}

// AppendMessage adds one transcript turn to an existing session.
func (s *InMemory) AppendMessage(_ context.Context, sessionID, role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disconnected {
		metrics.StoreWritesDropped.WithLabelValues("append_message").Inc()
		return nil
	}
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	session.Messages = append(session.Messages, Message{Role: role, Content: content, Timestamp: time.Now().UTC()})
	return nil
}

// SaveAgentHistory merge-writes one query's audit trail under its query id.
func (s *InMemory) SaveAgentHistory(_ context.Context, sessionID, queryID string, history []core.AgentStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disconnected {
		metrics.StoreWritesDropped.WithLabelValues("save_agent_history").Inc()
		return nil
	}
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	if session.AgentHistory == nil {
		session.AgentHistory = make(map[string][]core.AgentStep)
	}
	session.AgentHistory[queryID] = append([]core.AgentStep(nil), history...)
	return nil
}

// LogQuery appends one query record.
func (s *InMemory) LogQuery(_ context.Context, userQuery, sessionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := util.NewID()
	if s.disconnected {
		metrics.StoreWritesDropped.WithLabelValues("log_query").Inc()
		return id, nil
	}
	s.queries = append(s.queries, QueryRecord{ID: id, UserQuery: userQuery, SessionID: sessionID, Timestamp: time.Now().UTC()})
	return id, nil
}

// ListQueries returns up to limit query records, newest first.
func (s *InMemory) ListQueries(_ context.Context, limit int) ([]QueryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.disconnected {
		return []QueryRecord{}, nil
	}
	records := make([]QueryRecord, len(s.queries))
	copy(records, s.queries)
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// LogAgentOutput appends one raw agent output record.
func (s *InMemory) LogAgentOutput(_ context.Context, queryID, agent, output string, metadata map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := util.NewID()
	if s.disconnected {
		metrics.StoreWritesDropped.WithLabelValues("log_agent_output").Inc()
		return id, nil
	}
	s.outputs = append(s.outputs, AgentOutput{
		ID:        id,
		QueryID:   queryID,
		Agent:     agent,
		Output:    output,
		Metadata:  metadata,
		Timestamp: time.Now().UTC(),
	})
	return id, nil
}

// AgentOutputsForQuery returns outputs for one query in chronological order.
func (s *InMemory) AgentOutputsForQuery(_ context.Context, queryID string) ([]AgentOutput, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.disconnected {
		return []AgentOutput{}, nil
	}
	var outputs []AgentOutput
	for _, output := range s.outputs {
		if output.QueryID == queryID {
			outputs = append(outputs, output)
		}
	}
	return outputs, nil
}

// ListAgentOutputs returns up to limit outputs across all queries, newest first.
func (s *InMemory) ListAgentOutputs(_ context.Context, limit int) ([]AgentOutput, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.disconnected {
		return []AgentOutput{}, nil
	}
	outputs := make([]AgentOutput, len(s.outputs))
	copy(outputs, s.outputs)
	for i, j := 0, len(outputs)-1; i < j; i, j = i+1, j-1 {
		outputs[i], outputs[j] = outputs[j], outputs[i]
	}
	if limit > 0 && len(outputs) > limit {
		outputs = outputs[:limit]
	}
	return outputs, nil
}

func cloneSession(s *Session) *Session {
	clone := &Session{ID: s.ID, CreatedAt: s.CreatedAt, Messages: make([]Message, len(s.Messages))}
	copy(clone.Messages, s.Messages)
	if s.AgentHistory != nil {
		clone.AgentHistory = make(map[string][]core.AgentStep, len(s.AgentHistory))
		for k, v := range s.AgentHistory {
			clone.AgentHistory[k] = append([]core.AgentStep(nil), v...)
		}
	}
	return clone
}
