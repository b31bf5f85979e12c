// Package search provides the web-search client used by the researcher
// agent plus the auxiliary on-demand operations (URL extraction, bounded
// crawling, site maps).
//
// The Tavily provider is a direct HTTP client; callers needing a different
// backend implement the Client interface.
package search
