package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/logging"
	"github.com/hupe1980/researchmesh/metrics"
	"github.com/hupe1980/researchmesh/model"
	"github.com/hupe1980/researchmesh/store"
)

const synthesizerSystemPrompt = `You are the Synthesizer Agent in a multi-agent research system.
Your role is to combine validated research findings into a clear, coherent response.

Your responsibilities:
1. Create a comprehensive yet concise response to the user's query
2. Incorporate validated facts from research
3. Note any conflicting information transparently
4. Cite sources where appropriate
5. Structure the response for readability

Guidelines:
- Be informative and helpful
- Use clear, accessible language
- If there are conflicts in the data, mention them honestly
- Include relevant source URLs when citing specific facts
- Format with markdown for readability (headers, lists, etc.)
- If research was limited or inconclusive, acknowledge this`

const simpleSystemPrompt = "You are a helpful AI assistant. Respond naturally and helpfully to the user's message."

// maxSourcesPerQuery caps the raw source references listed per research
// query in the synthesis context.
const maxSourcesPerQuery = 3

// SynthesizerOptions configure the synthesizer agent.
type SynthesizerOptions struct {
	CallTimeout time.Duration
	Logger      logging.Logger

	// OnFragment, when set, receives incremental text fragments as the
	// model produces them. The fragments concatenate to the final response.
	OnFragment func(fragment string)
}

// Synthesizer produces the final answer. On the research path it grounds the
// answer in validated facts, flagged conflicts and raw sources; on the simple
// path it answers conversationally from the raw query alone. Which path runs
// is decided by the state's needs_research flag.
type Synthesizer struct {
	llm         model.Model
	store       store.Store
	callTimeout time.Duration
	logger      logging.Logger
	onFragment  func(fragment string)
}

// NewSynthesizer constructs a synthesizer agent.
func NewSynthesizer(llm model.Model, st store.Store, optFns ...func(o *SynthesizerOptions)) *Synthesizer {
	opts := SynthesizerOptions{CallTimeout: defaultCallTimeout, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Synthesizer{
		llm:         llm,
		store:       st,
		callTimeout: opts.CallTimeout,
		logger:      opts.Logger,
		onFragment:  opts.OnFragment,
	}
}

// Name implements Agent.
func (s *Synthesizer) Name() string { return "synthesizer" }

// Run implements Agent. It merges {final_response} into the state, appends
// one audit step and adds the answer to the session transcript as an
// assistant turn.
func (s *Synthesizer) Run(ctx context.Context, state *core.SharedState) error {
	if state.NeedsResearch {
		return s.runResearch(ctx, state)
	}
	return s.runSimple(ctx, state)
}

func (s *Synthesizer) runResearch(ctx context.Context, state *core.SharedState) error {
	synthContext := buildSynthesisContext(state.ResearchResults, state.ValidatedFacts, state.ConflictingInfo)

	response, err := s.generate(ctx, model.Request{
		Messages: []model.Message{
			model.SystemMessage(synthesizerSystemPrompt),
			model.UserMessage(fmt.Sprintf(
				"User Query: %s\n\n%s\n\nPlease synthesize this information into a helpful, well-structured response for the user.",
				state.UserQuery, synthContext)),
		},
		Temperature: 0.7,
	})
	if err != nil {
		return core.NewStageError(s.Name(), err)
	}

	logOutput(ctx, s.store, s.logger, state.QueryID, s.Name(), response, map[string]any{
		"sources_used":       len(state.ResearchResults),
		"facts_incorporated": len(state.ValidatedFacts),
	})
	s.appendTranscript(ctx, state.SessionID, response)

	state.ApplyResponse(response, core.AgentStep{
		Agent:  s.Name(),
		Action: "Generated final response",
		Output: fmt.Sprintf("Response length: %d chars", len(response)),
	})

	return nil
}

func (s *Synthesizer) runSimple(ctx context.Context, state *core.SharedState) error {
	response, err := s.generate(ctx, model.Request{
		Messages: []model.Message{
			model.SystemMessage(simpleSystemPrompt),
			model.UserMessage(state.UserQuery),
		},
		Temperature: 0.7,
	})
	if err != nil {
		return core.NewStageError(s.Name(), err)
	}

	logOutput(ctx, s.store, s.logger, state.QueryID, s.Name(), response, map[string]any{
		"type": "simple_response",
	})
	s.appendTranscript(ctx, state.SessionID, response)

	state.ApplyResponse(response, core.AgentStep{
		Agent:  s.Name(),
		Action: "Generated simple response (no research needed)",
		Output: fmt.Sprintf("Response length: %d chars", len(response)),
	})

	return nil
}

// generate drives one model call, streaming fragments to the configured
// callback when one is set. The returned string is always the full text.
func (s *Synthesizer) generate(ctx context.Context, req model.Request) (string, error) {
	callCtx, cancel := callContext(ctx, s.callTimeout)
	defer cancel()

	start := time.Now()
	if s.onFragment == nil {
		text, err := model.Complete(callCtx, s.llm, req)
		s.countCall(time.Since(start), err)
		return text, err
	}

	req.Stream = true
	respCh, errCh := s.llm.Generate(callCtx, req)

	var full strings.Builder
	var final string
	for resp := range respCh {
		if resp.Partial {
			full.WriteString(resp.Text)
			s.onFragment(resp.Text)
			continue
		}
		final = resp.Text
	}
	if err := <-errCh; err != nil {
		s.countCall(time.Since(start), err)
		return "", err
	}
	s.countCall(time.Since(start), nil)

	// Providers without native streaming emit only the final response.
	if final != "" {
		return final, nil
	}
	return full.String(), nil
}

func (s *Synthesizer) countCall(dur time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.ModelCalls.WithLabelValues(s.llm.Info().Provider, status).Inc()
	logging.LogModelCall(s.logger, s.llm.Info().Name, dur, err)
}

// appendTranscript records the answer as an assistant turn, fire-and-forget.
func (s *Synthesizer) appendTranscript(ctx context.Context, sessionID, response string) {
	if s.store == nil || sessionID == "" {
		return
	}
	if err := s.store.AppendMessage(ctx, sessionID, "assistant", response); err != nil {
		s.logger.Warn("failed to append assistant message", "session_id", sessionID, "error", err)
	}
}

// buildSynthesisContext renders the research data for the synthesis prompt:
// validated facts first, then conflicts flagged for cautious treatment, then
// a bounded list of raw sources per query.
func buildSynthesisContext(results []core.ResearchResult, facts, conflicts []string) string {
	var parts []string

	if len(facts) > 0 {
		parts = append(parts, "## Validated Facts")
		for _, fact := range facts {
			parts = append(parts, "- "+fact)
		}
	}

	if len(conflicts) > 0 {
		parts = append(parts, "\n## Conflicting Information (handle with care)")
		for _, conflict := range conflicts {
			parts = append(parts, "- "+conflict)
		}
	}

	if len(results) > 0 {
		parts = append(parts, "\n## Research Sources")
		for _, result := range results {
			if result.Answer != "" {
				parts = append(parts, fmt.Sprintf("\nSearch Summary for '%s': %s", result.Query, result.Answer))
			}
			sources := result.Sources
			if len(sources) > maxSourcesPerQuery {
				sources = sources[:maxSourcesPerQuery]
			}
			for _, source := range sources {
				parts = append(parts, fmt.Sprintf("- [%s](%s)", source.Title, source.URL))
			}
		}
	}

	if len(parts) == 0 {
		return "No research data available."
	}
	return strings.Join(parts, "\n")
}
