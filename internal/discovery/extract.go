package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/communityfood/discovery-engine/internal/config"
	"github.com/communityfood/discovery-engine/internal/model"
	"github.com/communityfood/discovery-engine/internal/normalize"
	"github.com/communityfood/discovery-engine/pkg/anthropic"
)

// ExtractRequest is one document handed to extraction.
type ExtractRequest struct {
	Text      string
	SourceURL string
	City      string
	State     string
}

// Candidate is one resource record as returned by extraction.
type Candidate struct {
	Name        string                       `json:"name"`
	Address     string                       `json:"address"`
	City        string                       `json:"city"`
	State       string                       `json:"state"`
	Zip         string                       `json:"zip"`
	Phone       *string                      `json:"phone"`
	Website     *string                      `json:"website"`
	Description *string                      `json:"description"`
	Services    []string                     `json:"services"`
	Hours       map[string]*normalize.RawDay `json:"hours"`
	Confidence  float64                      `json:"confidence"`
	Latitude    *float64                     `json:"latitude,omitempty"`
	Longitude   *float64                     `json:"longitude,omitempty"`
}

// Result converts c into a DiscoveryResult attributed to sourceURL.
// Coordinates stay at the 0,0 sentinel unless both were supplied.
func (c Candidate) Result(sourceURL string) model.DiscoveryResult {
	r := model.DiscoveryResult{
		Name:        c.Name,
		Address:     c.Address,
		City:        c.City,
		State:       c.State,
		Zip:         c.Zip,
		Phone:       c.Phone,
		Website:     c.Website,
		Description: c.Description,
		Services:    c.Services,
		Hours:       normalize.Hours(c.Hours),
		SourceURL:   sourceURL,
		Confidence:  c.Confidence,
	}
	if c.Latitude != nil && c.Longitude != nil {
		r.Latitude, r.Longitude = *c.Latitude, *c.Longitude
	}
	return r
}

// Extractor turns one document into zero or more candidates.
type Extractor interface {
	Extract(ctx context.Context, req ExtractRequest) ([]Candidate, error)
}

const extractionSystemPrompt = `You extract community food resources (food banks, food pantries, soup kitchens, meal programs, SNAP/WIC offices) from web page text.

Respond with JSON only, no prose, matching exactly:
{"resources": [{
  "name": string,
  "address": string,        // street address only
  "city": string,
  "state": string,          // two-letter code
  "zip": string,            // 5 digits
  "phone": string | null,
  "website": string | null,
  "description": string | null,
  "services": [string],     // e.g. "food pantry", "hot meals", "produce"
  "hours": null | {"monday": {"open": "9:00 AM", "close": "5:00 PM", "closed": false}, ...},
  "confidence": number      // 0 to 1
}]}

Rules:
- Only include resources physically located in the requested city and state.
- Skip any resource without a street address.
- "hours" MUST be null unless the text states explicit hours for specific days. Never guess. Omit days that are not stated; use "closed": true only when the text says the site is closed that day.
- Set confidence from how complete the record is and how authoritative the source looks: official government or food bank network pages high, directories and news articles lower.
- If the page lists no qualifying resources, return {"resources": []}.`

type extractionResponse struct {
	Resources []Candidate `json:"resources"`
}

// LLMExtractor extracts candidates with an Anthropic model.
type LLMExtractor struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	cacheTTL  string
}

// NewLLMExtractor wraps an Anthropic client with the given settings.
func NewLLMExtractor(client anthropic.Client, cfg config.AnthropicConfig) *LLMExtractor {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	ttl := cfg.CacheTTL
	if ttl == "" {
		ttl = "5m"
	}
	return &LLMExtractor{client: client, model: cfg.Model, maxTokens: maxTokens, cacheTTL: ttl}
}

// NewAnthropicExtractor builds the SDK client from cfg. A missing key is a
// *ConfigError.
func NewAnthropicExtractor(cfg config.AnthropicConfig) (*LLMExtractor, error) {
	if strings.TrimSpace(cfg.Key) == "" {
		return nil, &ConfigError{Component: "anthropic extraction", Setting: config.EnvName("anthropic.key")}
	}
	var opts []anthropic.Option
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, anthropic.WithMaxRetries(cfg.MaxRetries))
	}
	return NewLLMExtractor(anthropic.NewClient(cfg.Key, opts...), cfg), nil
}

func (e *LLMExtractor) Extract(ctx context.Context, req ExtractRequest) ([]Candidate, error) {
	temp := 0.0
	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       e.model,
		MaxTokens:   e.maxTokens,
		System:      anthropic.BuildCachedSystemBlocks(extractionSystemPrompt, e.cacheTTL),
		Messages:    []anthropic.Message{{Role: "user", Content: extractionPrompt(req)}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "extract: create message for %s", req.SourceURL)
	}
	resp.Usage.LogCost(e.model, "extract")

	return parseCandidates(resp.Text())
}

func extractionPrompt(req ExtractRequest) string {
	return fmt.Sprintf("Target area: %s, %s\nSource URL: %s\n\nPage text:\n%s",
		req.City, req.State, req.SourceURL, req.Text)
}

// parseCandidates decodes and validates a model response.
func parseCandidates(text string) ([]Candidate, error) {
	cleaned := cleanJSON(text)
	if cleaned == "" {
		return nil, eris.New("extract: empty response")
	}

	var out extractionResponse
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return nil, eris.Wrap(err, "extract: parse response")
	}

	valid := out.Resources[:0]
	for _, c := range out.Resources {
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			continue
		}
		c.Confidence = min(max(c.Confidence, 0), 1)
		if c.Services == nil {
			c.Services = []string{}
		}
		valid = append(valid, c)
	}
	return valid, nil
}

// cleanJSON attempts to extract a JSON object from text that may contain
// markdown code fences or other wrapping.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	// Strip markdown code fences.
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	// Find first { and last }.
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
