package core

// Source is a single web document returned by the search service.
type Source struct {
	Title   string  `json:"title" bson:"title"`
	URL     string  `json:"url" bson:"url"`
	Content string  `json:"content" bson:"content"`
	Score   float64 `json:"score" bson:"score"`
}

// ResearchResult aggregates the outcome of one search query. A failed query
// carries a non-empty Error and an empty source list; it never aborts the
// batch it belongs to.
type ResearchResult struct {
	Query   string   `json:"query" bson:"query"`
	Answer  string   `json:"answer,omitempty" bson:"answer,omitempty"`
	Sources []Source `json:"sources" bson:"sources"`
	Error   string   `json:"error,omitempty" bson:"error,omitempty"`
}

// AgentStep is one audit trail entry appended per stage execution. Output is
// human-readable (string or a small structured record), not machine-consumed
// downstream.
type AgentStep struct {
	Agent  string `json:"agent" bson:"agent"`
	Action string `json:"action" bson:"action"`
	Output any    `json:"output" bson:"output"`
}

// SharedState is the per-query state record threaded through the pipeline.
// It is passed by reference; stages merge their output via the Apply*
// methods and must not overwrite fields owned by other stages. The workflow
// driver resumes the next stage only after the previous stage's merge
// completes, so no locking is required.
type SharedState struct {
	UserQuery string `json:"user_query"`
	SessionID string `json:"session_id"`
	QueryID   string `json:"query_id"`

	// Written by the planner.
	ExecutionPlan string   `json:"execution_plan"`
	NeedsResearch bool     `json:"needs_research"`
	SearchQueries []string `json:"search_queries"`

	// Written by the researcher.
	ResearchResults []ResearchResult `json:"research_results"`

	// Written by the validator.
	ValidatedFacts  []string `json:"validated_facts"`
	ConflictingInfo []string `json:"conflicting_info"`

	// Written by the synthesizer (or the simple-response path).
	FinalResponse string `json:"final_response"`

	// ActiveAgent is overwritten by every stage; AgentHistory is append-only
	// and its order equals execution order.
	ActiveAgent  string      `json:"active_agent"`
	AgentHistory []AgentStep `json:"agent_history"`
}

// NewSharedState constructs a fresh state for one incoming query with all
// optional fields at empty defaults. NeedsResearch defaults to true so a
// non-compliant planner still routes through the research branch.
func NewSharedState(userQuery, sessionID, queryID string) *SharedState {
	return &SharedState{
		UserQuery:       userQuery,
		SessionID:       sessionID,
		QueryID:         queryID,
		NeedsResearch:   true,
		SearchQueries:   []string{},
		ResearchResults: []ResearchResult{},
		ValidatedFacts:  []string{},
		ConflictingInfo: []string{},
		AgentHistory:    []AgentStep{},
	}
}

// ApplyPlan merges the planner's output into the state.
func (s *SharedState) ApplyPlan(plan string, needsResearch bool, queries []string, step AgentStep) {
	s.ExecutionPlan = plan
	s.NeedsResearch = needsResearch
	s.SearchQueries = queries
	s.record(step)
}

// ApplyResearch merges the researcher's output into the state.
func (s *SharedState) ApplyResearch(results []ResearchResult, step AgentStep) {
	s.ResearchResults = results
	s.record(step)
}

// ApplyValidation merges the validator's output into the state.
func (s *SharedState) ApplyValidation(facts, conflicts []string, step AgentStep) {
	s.ValidatedFacts = facts
	s.ConflictingInfo = conflicts
	s.record(step)
}

// ApplyResponse merges the final answer into the state. Both the research
// and the simple path terminate here.
func (s *SharedState) ApplyResponse(response string, step AgentStep) {
	s.FinalResponse = response
	s.record(step)
}

func (s *SharedState) record(step AgentStep) {
	s.ActiveAgent = step.Agent
	s.AgentHistory = append(s.AgentHistory, step)
}

// SourceCount returns the total number of sources across all research results.
func (s *SharedState) SourceCount() int {
	n := 0
	for _, r := range s.ResearchResults {
		n += len(r.Sources)
	}
	return n
}

// HistoryCopy returns a defensive copy of the audit trail so event consumers
// cannot observe later appends.
func (s *SharedState) HistoryCopy() []AgentStep {
	history := make([]AgentStep, len(s.AgentHistory))
	copy(history, s.AgentHistory)
	return history
}
