package discovery

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"

	"github.com/communityfood/discovery-engine/internal/config"
	"github.com/communityfood/discovery-engine/internal/resilience"
	"github.com/communityfood/discovery-engine/pkg/jina"
	"github.com/communityfood/discovery-engine/pkg/tavily"
)

// Document is one raw search hit handed to extraction.
type Document struct {
	Title      string
	URL        string
	Content    string
	RawContent *string
	Score      float64
}

// Text returns the richest content available, raw content first, cut to at
// most maxChars runes. maxChars <= 0 disables the cut.
func (d Document) Text(maxChars int) string {
	text := d.Content
	if d.RawContent != nil && strings.TrimSpace(*d.RawContent) != "" {
		text = *d.RawContent
	}
	return truncateRunes(text, maxChars)
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// SearchProvider runs a single web search attempt. Implementations do not
// retry; the orchestrator owns the retry policy.
type SearchProvider interface {
	Name() string
	Search(ctx context.Context, query string) ([]Document, error)
}

// TavilyProvider adapts pkg/tavily.
type TavilyProvider struct {
	client      tavily.Client
	maxResults  int
	searchDepth string
}

// NewTavilyProvider wraps a Tavily client. Zero maxResults means 20.
func NewTavilyProvider(client tavily.Client, maxResults int, searchDepth string) *TavilyProvider {
	if maxResults <= 0 {
		maxResults = 20
	}
	if searchDepth == "" {
		searchDepth = "advanced"
	}
	return &TavilyProvider{client: client, maxResults: maxResults, searchDepth: searchDepth}
}

func (p *TavilyProvider) Name() string { return "tavily" }

func (p *TavilyProvider) Search(ctx context.Context, query string) ([]Document, error) {
	resp, err := p.client.Search(ctx, tavily.SearchRequest{
		Query:             query,
		SearchDepth:       p.searchDepth,
		MaxResults:        p.maxResults,
		IncludeRawContent: true,
	})
	if err != nil {
		if errors.Is(err, tavily.ErrMissingAPIKey) {
			return nil, &ConfigError{Component: "tavily search", Setting: config.EnvName("tavily.key")}
		}
		var se *tavily.StatusError
		if errors.As(err, &se) {
			return nil, resilience.NewTransientError(err, se.StatusCode)
		}
		return nil, err
	}

	docs := make([]Document, 0, len(resp.Results))
	for _, r := range resp.Results {
		docs = append(docs, Document{
			Title:      r.Title,
			URL:        r.URL,
			Content:    r.Content,
			RawContent: r.RawContent,
			Score:      r.Score,
		})
	}
	return docs, nil
}

// JinaProvider adapts pkg/jina search.
type JinaProvider struct {
	client     jina.Client
	maxResults int
}

// NewJinaProvider wraps a Jina client. Zero maxResults means 20.
func NewJinaProvider(client jina.Client, maxResults int) *JinaProvider {
	if maxResults <= 0 {
		maxResults = 20
	}
	return &JinaProvider{client: client, maxResults: maxResults}
}

func (p *JinaProvider) Name() string { return "jina" }

func (p *JinaProvider) Search(ctx context.Context, query string) ([]Document, error) {
	resp, err := p.client.Search(ctx, query, jina.WithMaxResults(p.maxResults))
	if err != nil {
		if errors.Is(err, jina.ErrMissingAPIKey) {
			return nil, &ConfigError{Component: "jina search", Setting: config.EnvName("jina.key")}
		}
		var se *jina.StatusError
		if errors.As(err, &se) {
			return nil, resilience.NewTransientError(err, se.StatusCode)
		}
		return nil, err
	}

	docs := make([]Document, 0, len(resp.Data))
	for _, r := range resp.Data {
		content := r.Content
		if strings.TrimSpace(content) == "" {
			content = r.Description
		}
		docs = append(docs, Document{Title: r.Title, URL: r.URL, Content: content})
	}
	return docs, nil
}

// NewProvider builds the search provider selected by cfg.Search.Provider.
// A missing credential is a *ConfigError.
func NewProvider(cfg *config.Config, httpClient *http.Client) (SearchProvider, error) {
	switch cfg.Search.Provider {
	case "tavily", "":
		if cfg.Tavily.Key == "" {
			return nil, &ConfigError{Component: "tavily search", Setting: config.EnvName("tavily.key")}
		}
		opts := []tavily.Option{}
		if cfg.Tavily.BaseURL != "" {
			opts = append(opts, tavily.WithBaseURL(cfg.Tavily.BaseURL))
		}
		if httpClient != nil {
			opts = append(opts, tavily.WithHTTPClient(httpClient))
		}
		return NewTavilyProvider(tavily.NewClient(cfg.Tavily.Key, opts...), cfg.Search.MaxResults, cfg.Search.SearchDepth), nil
	case "jina":
		if cfg.Jina.Key == "" {
			return nil, &ConfigError{Component: "jina search", Setting: config.EnvName("jina.key")}
		}
		opts := []jina.Option{}
		if cfg.Jina.SearchBaseURL != "" {
			opts = append(opts, jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL))
		}
		if httpClient != nil {
			opts = append(opts, jina.WithHTTPClient(httpClient))
		}
		return NewJinaProvider(jina.NewClient(cfg.Jina.Key, opts...), cfg.Search.MaxResults), nil
	default:
		return nil, eris.Errorf("discovery: unknown search provider %q", cfg.Search.Provider)
	}
}
