package core

import "encoding/json"

// Event types emitted by the streaming workflow driver.
const (
	EventTypeAgentUpdate   = "agent_update"
	EventTypeFinalResponse = "final_response"
	EventTypeError         = "error"
)

// AgentUpdateData is the bounded snapshot carried by an agent_update event.
// It deliberately excludes full research payloads to bound event size;
// counts stand in for the result and fact lists.
type AgentUpdateData struct {
	ActiveAgent        string      `json:"active_agent"`
	AgentHistory       []AgentStep `json:"agent_history"`
	ExecutionPlan      string      `json:"execution_plan,omitempty"`
	SearchQueries      []string    `json:"search_queries,omitempty"`
	SourceCount        *int        `json:"source_count,omitempty"`
	ValidatedFactCount *int        `json:"validated_facts_count,omitempty"`
}

// Event is one unit of the streaming sequence yielded after each completed
// stage. Exactly one agent_update is emitted per stage; the stage that sets
// the final response additionally yields one final_response event carrying
// the complete text.
type Event struct {
	Type    string           `json:"type"`
	Agent   string           `json:"agent,omitempty"`
	Data    *AgentUpdateData `json:"data,omitempty"`
	Content string           `json:"content,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// NewAgentUpdateEvent builds the per-stage snapshot event from the state as
// it stands after the stage's merge.
func NewAgentUpdateEvent(state *SharedState) Event {
	data := &AgentUpdateData{
		ActiveAgent:   state.ActiveAgent,
		AgentHistory:  state.HistoryCopy(),
		ExecutionPlan: state.ExecutionPlan,
		SearchQueries: state.SearchQueries,
	}
	if len(state.ResearchResults) > 0 {
		n := state.SourceCount()
		data.SourceCount = &n
	}
	if len(state.ValidatedFacts) > 0 {
		n := len(state.ValidatedFacts)
		data.ValidatedFactCount = &n
	}
	return Event{Type: EventTypeAgentUpdate, Agent: state.ActiveAgent, Data: data}
}

// NewFinalResponseEvent carries the complete answer text.
func NewFinalResponseEvent(content string) Event {
	return Event{Type: EventTypeFinalResponse, Content: content}
}

// NewErrorEvent reports a fatal pipeline failure to stream consumers.
func NewErrorEvent(err error) Event {
	return Event{Type: EventTypeError, Error: err.Error()}
}

// Marshal renders the event as JSON.
func (e Event) Marshal() []byte {
	b, err := json.Marshal(e)
	if err != nil {
		return []byte("{}")
	}
	return b
}
