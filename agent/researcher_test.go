package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/search"
	"github.com/hupe1980/researchmesh/store"
)

// fakeSearch is a canned search.Client keyed on the query string.
type fakeSearch struct {
	mu        sync.Mutex
	responses map[string]*search.Response
	failures  map[string]error
	requests  []search.Request

	extractResults []search.ExtractResult
	crawlResults   []search.CrawlResult
	mapLinks       []string
	err            error
}

func newFakeSearch() *fakeSearch {
	return &fakeSearch{
		responses: make(map[string]*search.Response),
		failures:  make(map[string]error),
	}
}

func (f *fakeSearch) Search(_ context.Context, req search.Request) (*search.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if err := f.failures[req.Query]; err != nil {
		return nil, err
	}
	if resp := f.responses[req.Query]; resp != nil {
		return resp, nil
	}
	return &search.Response{}, nil
}

func (f *fakeSearch) Extract(_ context.Context, _ []string) ([]search.ExtractResult, error) {
	return f.extractResults, f.err
}

func (f *fakeSearch) Crawl(_ context.Context, _ string, _ int, _ string) ([]search.CrawlResult, error) {
	return f.crawlResults, f.err
}

func (f *fakeSearch) Map(_ context.Context, _ string) ([]string, error) {
	return f.mapLinks, f.err
}

func singleResult(title, url, content string) *search.Response {
	return &search.Response{
		Answer:  content,
		Results: []search.Result{{Title: title, URL: url, Content: content, Score: 0.9}},
	}
}

func TestResearcherCollectsResultsInQueryOrder(t *testing.T) {
	client := newFakeSearch()
	for i := 1; i <= 3; i++ {
		query := fmt.Sprintf("query %d", i)
		client.responses[query] = singleResult(fmt.Sprintf("title %d", i), fmt.Sprintf("https://example.com/%d", i), "content")
	}

	researcher := NewResearcher(client, store.NewInMemory())
	state := core.NewSharedState("user query", "", "q1")
	state.SearchQueries = []string{"query 1", "query 2", "query 3"}

	require.NoError(t, researcher.Run(context.Background(), state))

	require.Len(t, state.ResearchResults, 3)
	for i, result := range state.ResearchResults {
		assert.Equal(t, fmt.Sprintf("query %d", i+1), result.Query)
		require.Len(t, result.Sources, 1)
		assert.Equal(t, fmt.Sprintf("title %d", i+1), result.Sources[0].Title)
	}

	require.Len(t, state.AgentHistory, 1)
	assert.Equal(t, "researcher", state.AgentHistory[0].Agent)
}

func TestResearcherIsolatesFailingQuery(t *testing.T) {
	client := newFakeSearch()
	client.responses["query 1"] = singleResult("first", "https://a.example", "a")
	client.failures["query 2"] = errors.New("search backend unavailable")
	client.responses["query 3"] = singleResult("third", "https://c.example", "c")

	researcher := NewResearcher(client, store.NewInMemory())
	state := core.NewSharedState("user query", "", "q1")
	state.SearchQueries = []string{"query 1", "query 2", "query 3"}

	require.NoError(t, researcher.Run(context.Background(), state))

	require.Len(t, state.ResearchResults, 3)
	assert.Len(t, state.ResearchResults[0].Sources, 1)
	assert.NotEmpty(t, state.ResearchResults[1].Error)
	assert.Empty(t, state.ResearchResults[1].Sources)
	assert.Len(t, state.ResearchResults[2].Sources, 1)
	assert.Equal(t, "query 2", state.ResearchResults[1].Query)
}

func TestResearcherFallsBackToUserQuery(t *testing.T) {
	client := newFakeSearch()
	client.responses["user query"] = singleResult("only", "https://a.example", "a")

	researcher := NewResearcher(client, store.NewInMemory())
	state := core.NewSharedState("user query", "", "q1")

	require.NoError(t, researcher.Run(context.Background(), state))

	require.Len(t, state.ResearchResults, 1)
	assert.Equal(t, "user query", state.ResearchResults[0].Query)
}

func TestResearcherCapsQueryCount(t *testing.T) {
	client := newFakeSearch()

	researcher := NewResearcher(client, store.NewInMemory())
	state := core.NewSharedState("user query", "", "q1")
	state.SearchQueries = []string{"a", "b", "c", "d", "e"}

	require.NoError(t, researcher.Run(context.Background(), state))

	assert.Len(t, state.ResearchResults, maxSearchQueries)
	assert.Len(t, client.requests, maxSearchQueries)
}

func TestResearcherSearchParameters(t *testing.T) {
	client := newFakeSearch()

	researcher := NewResearcher(client, store.NewInMemory())
	state := core.NewSharedState("user query", "", "q1")
	state.SearchQueries = []string{"only"}

	require.NoError(t, researcher.Run(context.Background(), state))

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	assert.Equal(t, "advanced", req.Depth)
	assert.Equal(t, 5, req.MaxResults)
	assert.True(t, req.IncludeAnswer)
}

func TestResearcherExtractContent(t *testing.T) {
	client := newFakeSearch()
	client.extractResults = []search.ExtractResult{{URL: "https://a.example", RawContent: "body"}}

	researcher := NewResearcher(client, store.NewInMemory())
	results := researcher.ExtractContent(context.Background(), []string{"https://a.example"})

	require.Len(t, results, 1)
	assert.Equal(t, "body", results[0].RawContent)
}

func TestResearcherExtractContentError(t *testing.T) {
	client := newFakeSearch()
	client.err = errors.New("extract failed")

	researcher := NewResearcher(client, store.NewInMemory())
	results := researcher.ExtractContent(context.Background(), []string{"https://a.example"})

	require.Len(t, results, 1)
	assert.Equal(t, "extract failed", results[0].Error)
}

func TestResearcherAdvancedSearchDomainFilters(t *testing.T) {
	client := newFakeSearch()
	client.responses["niche topic"] = singleResult("doc", "https://docs.example", "d")

	researcher := NewResearcher(client, store.NewInMemory())
	result := researcher.AdvancedSearch(context.Background(), "niche topic", []string{"docs.example"}, []string{"spam.example"})

	assert.Empty(t, result.Error)
	require.Len(t, client.requests, 1)
	assert.Equal(t, []string{"docs.example"}, client.requests[0].IncludeDomains)
	assert.Equal(t, []string{"spam.example"}, client.requests[0].ExcludeDomains)
}
