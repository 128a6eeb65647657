// Package jina provides a client for the Jina AI search API.
package jina

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

// ErrMissingAPIKey is returned when the client has no credential.
var ErrMissingAPIKey = eris.New("jina: missing api key")

// Client defines the Jina AI Search operations.
type Client interface {
	// Search performs a web search and returns results with page content.
	Search(ctx context.Context, query string, opts ...SearchOption) (*SearchResponse, error)
}

// SearchResponse is the parsed Jina Search API response.
type SearchResponse struct {
	Code int            `json:"code"`
	Data []SearchResult `json:"data"`
}

// SearchResult represents a single search result. Content holds the page
// rendered as markdown.
type SearchResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Content     string `json:"content"`
	Description string `json:"description"`
}

// StatusError is returned for unexpected HTTP status codes.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("jina: search unexpected status %d: %s", e.StatusCode, e.Body)
}

// SearchOption configures a search request.
type SearchOption func(*searchOpts)

type searchOpts struct {
	maxResults int
}

// WithMaxResults caps the number of results returned.
func WithMaxResults(n int) SearchOption {
	return func(o *searchOpts) {
		o.maxResults = n
	}
}

// Option configures the Jina client.
type Option func(*httpClient)

// WithSearchBaseURL sets a custom search base URL (for testing).
func WithSearchBaseURL(url string) Option {
	return func(c *httpClient) {
		c.searchBaseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey        string
	searchBaseURL string
	http          *http.Client
}

// NewClient creates a new Jina AI Search client. Retries are left to the caller.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:        apiKey,
		searchBaseURL: "https://s.jina.ai",
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

const maxErrorBody = 512

func (c *httpClient) Search(ctx context.Context, query string, opts ...SearchOption) (*SearchResponse, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	so := &searchOpts{}
	for _, opt := range opts {
		opt(so)
	}

	reqURL := fmt.Sprintf("%s/%s", c.searchBaseURL, url.PathEscape(query))
	if so.maxResults > 0 {
		reqURL += "?" + url.Values{"num": {fmt.Sprint(so.maxResults)}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "jina: create search request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Return-Format", "markdown")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "jina: search request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "jina: read response body")
	}

	// Jina returns 422 when no results are available for the query.
	// Treat this as empty results rather than an error.
	if resp.StatusCode == http.StatusUnprocessableEntity {
		return &SearchResponse{Code: http.StatusUnprocessableEntity}, nil
	}

	if resp.StatusCode != http.StatusOK {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var result SearchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "jina: unmarshal search response")
	}

	return &result, nil
}
