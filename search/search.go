package search

import "context"

// Result is one ranked web document returned by a search call.
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Request parameterizes a search call. Depth selects provider effort
// ("basic" or "advanced"); IncludeDomains/ExcludeDomains restrict the result
// set for the advanced search operation.
type Request struct {
	Query          string   `json:"query"`
	Depth          string   `json:"search_depth,omitempty"`
	MaxResults     int      `json:"max_results,omitempty"`
	IncludeAnswer  bool     `json:"include_answer,omitempty"`
	IncludeDomains []string `json:"include_domains,omitempty"`
	ExcludeDomains []string `json:"exclude_domains,omitempty"`
}

// Response carries the optional AI-generated summary plus the ordered result list.
type Response struct {
	Answer  string   `json:"answer,omitempty"`
	Results []Result `json:"results"`
}

// ExtractResult is the full content retrieved from one explicit URL.
type ExtractResult struct {
	URL        string `json:"url"`
	RawContent string `json:"raw_content,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CrawlResult is one page discovered during a bounded crawl.
type CrawlResult struct {
	URL        string `json:"url"`
	RawContent string `json:"raw_content,omitempty"`
}

// Client is the minimal search interface the researcher depends on. All
// methods are best-effort: transport failures return an error the caller
// records rather than propagates.
type Client interface {
	// Search issues one query and returns ranked results with an optional summary.
	Search(ctx context.Context, req Request) (*Response, error)

	// Extract retrieves full page content for explicit URLs (capped to 5).
	Extract(ctx context.Context, urls []string) ([]ExtractResult, error)

	// Crawl walks a site starting at url, bounded by limit pages, optionally
	// steered by natural-language instructions.
	Crawl(ctx context.Context, url string, limit int, instructions string) ([]CrawlResult, error)

	// Map returns the discovered link structure of a site.
	Map(ctx context.Context, url string) ([]string, error)
}
