package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/logging"
	"github.com/hupe1980/researchmesh/metrics"
	"github.com/hupe1980/researchmesh/search"
	"github.com/hupe1980/researchmesh/store"
)

// maxSearchQueries caps how many planned queries the researcher consumes.
const maxSearchQueries = 3

// ResearcherOptions configure the researcher agent.
type ResearcherOptions struct {
	// SearchDepth selects provider effort for pipeline searches.
	SearchDepth string
	// MaxResults bounds results per query.
	MaxResults int
	CallTimeout time.Duration
	Logger      logging.Logger
}

// Researcher issues one web search per planned query and collects snippets.
// Queries run concurrently but results are collected in input order; a
// failing query is recorded as an error-tagged result and never aborts the
// batch.
type Researcher struct {
	search      search.Client
	store       store.Store
	depth       string
	maxResults  int
	callTimeout time.Duration
	logger      logging.Logger
}

// NewResearcher constructs a researcher agent.
func NewResearcher(client search.Client, st store.Store, optFns ...func(o *ResearcherOptions)) *Researcher {
	opts := ResearcherOptions{
		SearchDepth: "advanced",
		MaxResults:  5,
		CallTimeout: defaultCallTimeout,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Researcher{
		search:      client,
		store:       st,
		depth:       opts.SearchDepth,
		maxResults:  opts.MaxResults,
		callTimeout: opts.CallTimeout,
		logger:      opts.Logger,
	}
}

// Name implements Agent.
func (r *Researcher) Name() string { return "researcher" }

// Run implements Agent. It merges {research_results} into the state and
// appends one audit step.
func (r *Researcher) Run(ctx context.Context, state *core.SharedState) error {
	if err := ctx.Err(); err != nil {
		return core.NewStageError(r.Name(), err)
	}

	queries := state.SearchQueries
	if len(queries) == 0 {
		queries = []string{state.UserQuery}
	}
	if len(queries) > maxSearchQueries {
		queries = queries[:maxSearchQueries]
	}

	// Fan out one search per query, collect-and-reorder: results land at
	// their input index regardless of completion order.
	results := make([]core.ResearchResult, len(queries))
	var wg sync.WaitGroup
	for i, query := range queries {
		wg.Add(1)
		go func(i int, query string) {
			defer wg.Done()
			results[i] = r.searchOne(ctx, query)
		}(i, query)
	}
	wg.Wait()

	total := 0
	for _, result := range results {
		total += len(result.Sources)
	}

	logOutput(ctx, r.store, r.logger, state.QueryID, r.Name(), fmt.Sprintf("%+v", results), map[string]any{
		"search_queries": queries,
		"results_count":  total,
	})

	state.ApplyResearch(results, core.AgentStep{
		Agent:  r.Name(),
		Action: fmt.Sprintf("Searched %d queries", len(queries)),
		Output: fmt.Sprintf("Found %d sources", total),
	})

	return nil
}

// searchOne runs a single bounded search call, mapping any failure into an
// error-tagged result.
func (r *Researcher) searchOne(ctx context.Context, query string) core.ResearchResult {
	callCtx, cancel := callContext(ctx, r.callTimeout)
	defer cancel()

	start := time.Now()
	resp, err := r.search.Search(callCtx, search.Request{
		Query:         query,
		Depth:         r.depth,
		MaxResults:    r.maxResults,
		IncludeAnswer: true,
	})
	if err != nil {
		metrics.SearchCalls.WithLabelValues("error").Inc()
		logging.LogSearchCall(r.logger, query, 0, time.Since(start), err)
		return core.ResearchResult{Query: query, Error: err.Error(), Sources: []core.Source{}}
	}
	metrics.SearchCalls.WithLabelValues("ok").Inc()
	logging.LogSearchCall(r.logger, query, len(resp.Results), time.Since(start), nil)

	sources := make([]core.Source, 0, len(resp.Results))
	for _, res := range resp.Results {
		sources = append(sources, core.Source{Title: res.Title, URL: res.URL, Content: res.Content, Score: res.Score})
	}
	return core.ResearchResult{Query: query, Answer: resp.Answer, Sources: sources}
}

// ExtractContent retrieves full content for explicit URLs. It is an
// on-demand operation outside the main pipeline and does not mutate shared
// state; failures are reported as an error-tagged record.
func (r *Researcher) ExtractContent(ctx context.Context, urls []string) []search.ExtractResult {
	callCtx, cancel := callContext(ctx, r.callTimeout)
	defer cancel()

	results, err := r.search.Extract(callCtx, urls)
	if err != nil {
		return []search.ExtractResult{{Error: err.Error()}}
	}
	return results
}

// CrawlSite walks a site bounded by limit pages, optionally steered by
// natural-language instructions. On-demand only.
func (r *Researcher) CrawlSite(ctx context.Context, url string, limit int, instructions string) []search.CrawlResult {
	callCtx, cancel := callContext(ctx, r.callTimeout)
	defer cancel()

	results, err := r.search.Crawl(callCtx, url, limit, instructions)
	if err != nil {
		r.logger.Warn("crawl failed", "url", url, "error", err)
		return []search.CrawlResult{}
	}
	return results
}

// SiteMap returns the discovered link structure of a site. On-demand only.
func (r *Researcher) SiteMap(ctx context.Context, url string) []string {
	callCtx, cancel := callContext(ctx, r.callTimeout)
	defer cancel()

	links, err := r.search.Map(callCtx, url)
	if err != nil {
		r.logger.Warn("site map failed", "url", url, "error", err)
		return []string{}
	}
	return links
}

// AdvancedSearch runs a parameterized search with domain include/exclude
// lists. On-demand only; the pipeline path uses Run.
func (r *Researcher) AdvancedSearch(ctx context.Context, query string, includeDomains, excludeDomains []string) core.ResearchResult {
	callCtx, cancel := callContext(ctx, r.callTimeout)
	defer cancel()

	resp, err := r.search.Search(callCtx, search.Request{
		Query:          query,
		Depth:          "advanced",
		MaxResults:     r.maxResults,
		IncludeAnswer:  true,
		IncludeDomains: includeDomains,
		ExcludeDomains: excludeDomains,
	})
	if err != nil {
		return core.ResearchResult{Query: query, Error: err.Error(), Sources: []core.Source{}}
	}
	sources := make([]core.Source, 0, len(resp.Results))
	for _, res := range resp.Results {
		sources = append(sources, core.Source{Title: res.Title, URL: res.URL, Content: res.Content, Score: res.Score})
	}
	return core.ResearchResult{Query: query, Answer: resp.Answer, Sources: sources}
}
