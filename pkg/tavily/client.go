// Package tavily provides a client for the Tavily web search API.
package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

// ErrMissingAPIKey is returned when the client has no credential.
var ErrMissingAPIKey = eris.New("tavily: missing api key")

// Client defines the Tavily operations used by discovery.
type Client interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
}

// SearchRequest is the body of a search call.
type SearchRequest struct {
	Query             string `json:"query"`
	SearchDepth       string `json:"search_depth,omitempty"`
	MaxResults        int    `json:"max_results,omitempty"`
	IncludeRawContent bool   `json:"include_raw_content"`
}

// SearchResponse is the parsed search response.
type SearchResponse struct {
	Query        string   `json:"query"`
	Results      []Result `json:"results"`
	ResponseTime float64  `json:"response_time"`
}

// Result is a single search hit. RawContent is the full page text when
// requested and available.
type Result struct {
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	Content    string  `json:"content"`
	RawContent *string `json:"raw_content"`
	Score      float64 `json:"score"`
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tavily: status %d: %s", e.StatusCode, e.Body)
}

// Option configures the Tavily client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a new Tavily client. Retries are left to the caller.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.tavily.com",
		http:    &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 512

func (c *httpClient) Search(ctx context.Context, sr SearchRequest) (*SearchResponse, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	payload, err := json.Marshal(sr)
	if err != nil {
		return nil, eris.Wrap(err, "tavily: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "tavily: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "tavily: search request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "tavily: read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out SearchResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "tavily: unmarshal response")
	}
	return &out, nil
}
