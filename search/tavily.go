package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.tavily.com"

// Tavily calls the Tavily search API.
type Tavily struct {
	APIKey  string
	BaseURL string
	client  *http.Client
}

// NewTavily constructs a Tavily search provider.
func NewTavily(apiKey string) *Tavily {
	return &Tavily{
		APIKey:  apiKey,
		BaseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// NewTavilyWithClient constructs a Tavily search provider using the supplied
// HTTP client. This is useful for overriding the default timeout.
func NewTavilyWithClient(apiKey string, client *http.Client) *Tavily {
	return &Tavily{APIKey: apiKey, BaseURL: defaultBaseURL, client: client}
}

// Search posts a query to Tavily. 429 responses are retried with doubling
// delay up to 30s; other non-200 statuses fail the call.
func (t *Tavily) Search(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(t.APIKey) == "" {
		return nil, errors.New("tavily: API key is missing")
	}
	if req.Depth == "" {
		req.Depth = "basic"
	}
	if req.MaxResults <= 0 {
		req.MaxResults = 5
	}

	body := map[string]any{
		"api_key":        t.APIKey,
		"query":          req.Query,
		"search_depth":   req.Depth,
		"max_results":    req.MaxResults,
		"include_answer": req.IncludeAnswer,
	}
	if len(req.IncludeDomains) > 0 {
		body["include_domains"] = req.IncludeDomains
	}
	if len(req.ExcludeDomains) > 0 {
		body["exclude_domains"] = req.ExcludeDomains
	}

	var decoded struct {
		Answer  string `json:"answer"`
		Results []struct {
			Title   string  `json:"title"`
			URL     string  `json:"url"`
			Content string  `json:"content"`
			Score   float64 `json:"score"`
		} `json:"results"`
	}
	if err := t.post(ctx, "/search", body, &decoded); err != nil {
		return nil, err
	}

	resp := &Response{Answer: decoded.Answer, Results: make([]Result, 0, len(decoded.Results))}
	for _, r := range decoded.Results {
		resp.Results = append(resp.Results, Result{Title: r.Title, URL: r.URL, Content: r.Content, Score: r.Score})
		if len(resp.Results) >= req.MaxResults {
			break
		}
	}
	return resp, nil
}

// Extract retrieves full page content for up to 5 explicit URLs. Per-URL
// failures are reported inline so one bad URL does not fail the batch.
func (t *Tavily) Extract(ctx context.Context, urls []string) ([]ExtractResult, error) {
	if strings.TrimSpace(t.APIKey) == "" {
		return nil, errors.New("tavily: API key is missing")
	}
	if len(urls) > 5 {
		urls = urls[:5]
	}

	var decoded struct {
		Results []struct {
			URL        string `json:"url"`
			RawContent string `json:"raw_content"`
		} `json:"results"`
		FailedResults []struct {
			URL   string `json:"url"`
			Error string `json:"error"`
		} `json:"failed_results"`
	}
	if err := t.post(ctx, "/extract", map[string]any{"api_key": t.APIKey, "urls": urls}, &decoded); err != nil {
		return nil, err
	}

	results := make([]ExtractResult, 0, len(decoded.Results)+len(decoded.FailedResults))
	for _, r := range decoded.Results {
		results = append(results, ExtractResult{URL: r.URL, RawContent: r.RawContent})
	}
	for _, r := range decoded.FailedResults {
		results = append(results, ExtractResult{URL: r.URL, Error: r.Error})
	}
	return results, nil
}

// Crawl walks a site starting at url, bounded by limit pages.
func (t *Tavily) Crawl(ctx context.Context, url string, limit int, instructions string) ([]CrawlResult, error) {
	if strings.TrimSpace(t.APIKey) == "" {
		return nil, errors.New("tavily: API key is missing")
	}
	if limit <= 0 {
		limit = 10
	}

	body := map[string]any{"api_key": t.APIKey, "url": url, "limit": limit}
	if instructions != "" {
		body["instructions"] = instructions
	}

	var decoded struct {
		Results []struct {
			URL        string `json:"url"`
			RawContent string `json:"raw_content"`
		} `json:"results"`
	}
	if err := t.post(ctx, "/crawl", body, &decoded); err != nil {
		return nil, err
	}

	results := make([]CrawlResult, 0, len(decoded.Results))
	for _, r := range decoded.Results {
		results = append(results, CrawlResult{URL: r.URL, RawContent: r.RawContent})
	}
	return results, nil
}

// Map returns the discovered link structure of a site.
func (t *Tavily) Map(ctx context.Context, url string) ([]string, error) {
	if strings.TrimSpace(t.APIKey) == "" {
		return nil, errors.New("tavily: API key is missing")
	}

	var decoded struct {
		Results []string `json:"results"`
	}
	if err := t.post(ctx, "/map", map[string]any{"api_key": t.APIKey, "url": url}, &decoded); err != nil {
		return nil, err
	}
	return decoded.Results, nil
}

// post issues one JSON request/response round trip with 429 backoff.
func (t *Tavily) post(ctx context.Context, path string, body map[string]any, v any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	var resp *http.Response
	delay := 1 * time.Second
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL+path, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err = t.client.Do(req)
		if err != nil {
			return err
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			break
		}
		resp.Body.Close()

		// Back off and retry on 429, doubling the delay each time up to 30 s.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if delay < 30*time.Second {
			delay *= 2
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tavily http %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(v)
}
