package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/internal/util"
	"github.com/hupe1980/researchmesh/logging"
	"github.com/hupe1980/researchmesh/metrics"
	"github.com/hupe1980/researchmesh/model"
	"github.com/hupe1980/researchmesh/store"
)

const validatorSystemPrompt = `You are the Validator Agent in a multi-agent research system.
Your role is to fact-check and verify information from research results.

Your responsibilities:
1. Review the research results for accuracy and consistency
2. Identify any conflicting information between sources
3. Extract verified facts that are well-supported by multiple sources
4. Flag uncertain or potentially unreliable claims

Output a JSON response with:
{
    "validated_facts": ["fact1", "fact2", ...],
    "conflicting_info": ["conflict1", ...],
    "reliability_assessment": "high/medium/low",
    "notes": "Any additional observations"
}

Guidelines:
- Prioritize facts mentioned by multiple reliable sources
- Note when sources disagree
- Be skeptical of unsourced claims
- Consider source credibility based on URL domains`

// sourceContentLimit bounds each source's content in the validation prompt.
const sourceContentLimit = 500

type validatorPayload struct {
	ValidatedFacts        []string `json:"validated_facts"`
	ConflictingInfo       []string `json:"conflicting_info"`
	ReliabilityAssessment string   `json:"reliability_assessment"`
	Notes                 string   `json:"notes"`
}

// ValidatorOptions configure the validator agent.
type ValidatorOptions struct {
	CallTimeout time.Duration
	Logger      logging.Logger
}

// Validator cross-checks research results, extracting corroborated facts and
// detected conflicts. A non-compliant model response degrades to empty lists
// and never raises.
type Validator struct {
	llm         model.Model
	store       store.Store
	callTimeout time.Duration
	logger      logging.Logger
}

// NewValidator constructs a validator agent.
func NewValidator(llm model.Model, st store.Store, optFns ...func(o *ValidatorOptions)) *Validator {
	opts := ValidatorOptions{CallTimeout: defaultCallTimeout, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Validator{llm: llm, store: st, callTimeout: opts.CallTimeout, logger: opts.Logger}
}

// Name implements Agent.
func (v *Validator) Name() string { return "validator" }

// Run implements Agent. It merges {validated_facts, conflicting_info} into
// the state and appends one audit step.
func (v *Validator) Run(ctx context.Context, state *core.SharedState) error {
	digest := formatResearchDigest(state.ResearchResults)

	callCtx, cancel := callContext(ctx, v.callTimeout)
	defer cancel()

	start := time.Now()
	raw, err := model.Complete(callCtx, v.llm, model.Request{
		Messages: []model.Message{
			model.SystemMessage(validatorSystemPrompt),
			model.UserMessage(fmt.Sprintf(
				"Original Query: %s\n\nResearch Results to Validate:\n%s\n\nPlease validate these research findings and identify verified facts vs conflicting information.",
				state.UserQuery, digest)),
		},
		Temperature: 0.2,
	})
	logging.LogModelCall(v.logger, v.llm.Info().Name, time.Since(start), err)
	if err != nil {
		metrics.ModelCalls.WithLabelValues(v.llm.Info().Provider, "error").Inc()
		return core.NewStageError(v.Name(), err)
	}
	metrics.ModelCalls.WithLabelValues(v.llm.Info().Provider, "ok").Inc()

	payload := v.parse(raw)

	logOutput(ctx, v.store, v.logger, state.QueryID, v.Name(), raw, map[string]any{
		"validated_facts_count": len(payload.ValidatedFacts),
		"conflicts_count":       len(payload.ConflictingInfo),
		"reliability":           payload.ReliabilityAssessment,
	})

	state.ApplyValidation(payload.ValidatedFacts, payload.ConflictingInfo, core.AgentStep{
		Agent:  v.Name(),
		Action: "Validated research findings",
		Output: map[string]any{
			"facts_verified":  len(payload.ValidatedFacts),
			"conflicts_found": len(payload.ConflictingInfo),
			"reliability":     payload.ReliabilityAssessment,
		},
	})

	return nil
}

func (v *Validator) parse(raw string) validatorPayload {
	var payload validatorPayload
	if !util.DecodeJSONBlock(raw, &payload) {
		v.logger.Warn("validator output not parseable, using empty validation")
		return validatorPayload{
			ValidatedFacts:        []string{},
			ConflictingInfo:       []string{},
			ReliabilityAssessment: "medium",
			Notes:                 "Unable to parse validation results",
		}
	}
	if payload.ValidatedFacts == nil {
		payload.ValidatedFacts = []string{}
	}
	if payload.ConflictingInfo == nil {
		payload.ConflictingInfo = []string{}
	}
	if payload.ReliabilityAssessment == "" {
		payload.ReliabilityAssessment = "medium"
	}
	return payload
}

// formatResearchDigest renders research results into a bounded textual
// summary for the validation prompt. Source content is truncated to keep
// prompt size predictable.
func formatResearchDigest(results []core.ResearchResult) string {
	var b strings.Builder
	for i, result := range results {
		fmt.Fprintf(&b, "\n--- Research Set %d: Query '%s' ---\n", i+1, result.Query)
		if result.Error != "" {
			fmt.Fprintf(&b, "Search failed: %s\n", result.Error)
			continue
		}
		if result.Answer != "" {
			fmt.Fprintf(&b, "Summary Answer: %s\n", result.Answer)
		}
		for j, source := range result.Sources {
			fmt.Fprintf(&b, "\nSource %d: %s\n", j+1, source.Title)
			fmt.Fprintf(&b, "URL: %s\n", source.URL)
			fmt.Fprintf(&b, "Content: %s\n", util.Truncate(source.Content, sourceContentLimit))
		}
	}
	return b.String()
}
