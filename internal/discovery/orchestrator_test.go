package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/communityfood/discovery-engine/internal/config"
	"github.com/communityfood/discovery-engine/internal/model"
	"github.com/communityfood/discovery-engine/internal/resilience"
	"github.com/communityfood/discovery-engine/pkg/tavily"
)

var sacramento = model.Area{City: "Sacramento", State: "CA"}

// fastRetry keeps the real policy shape with millisecond delays.
func fastRetry() OrchestratorOption {
	return WithRetry(resilience.SearchRetryConfig(3, 1, 1, 2))
}

func pantry(name, address string) Candidate {
	return Candidate{
		Name:       name,
		Address:    address,
		City:       "Sacramento",
		State:      "CA",
		Zip:        "95814",
		Services:   []string{"food pantry"},
		Confidence: 0.7,
	}
}

func tavilyProvider(t *testing.T, srv *httptest.Server, key string) SearchProvider {
	t.Helper()
	return NewTavilyProvider(tavily.NewClient(key, tavily.WithBaseURL(srv.URL)), 20, "advanced")
}

func TestCollect_ProviderErrorAfterRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
	}))
	defer srv.Close()

	ext := &mockExtractor{}
	o := NewOrchestrator(tavilyProvider(t, srv, "tvly-key"), ext, &mockGeocoder{}, nil, fastRetry())

	out, err := o.Collect(context.Background(), sacramento, nil)
	require.Error(t, err)
	assert.Nil(t, out)

	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "tavily", pe.Provider)
	assert.Equal(t, 3, pe.Attempts)
	assert.Equal(t, http.StatusInternalServerError, pe.StatusCode)
	assert.Equal(t, int32(3), hits.Load())
	assert.Zero(t, ext.calls)
}

func TestCollect_RetriesRateLimitThenSucceeds(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		var req tavily.SearchRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		assert.True(t, req.IncludeRawContent)
		assert.Equal(t, "advanced", req.SearchDepth)
		assert.Equal(t, 20, req.MaxResults)
		assert.Contains(t, req.Query, "Sacramento, CA")

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(tavily.SearchResponse{
			Results: []tavily.Result{{Title: "Pantries", URL: "https://foodbank.org/list", Content: "Grace Pantry 1 Main St"}},
		})
	}))
	defer srv.Close()

	ext := &mockExtractor{byURL: map[string][]Candidate{
		"https://foodbank.org/list": {pantry("Grace Pantry", "1 Main St")},
	}}
	geo := &mockGeocoder{coords: map[string][2]float64{"1 Main St": {38.58, -121.49}}}
	o := NewOrchestrator(tavilyProvider(t, srv, "tvly-key"), ext, geo, nil, fastRetry())

	results, err := o.Discover(context.Background(), sacramento, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
	require.Len(t, results, 1)
	assert.Equal(t, "Grace Pantry", results[0].Name)
	assert.InDelta(t, 38.58, results[0].Latitude, 1e-9)
}

func TestCollect_MissingKeyIsConfigError(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	o := NewOrchestrator(tavilyProvider(t, srv, ""), &mockExtractor{}, &mockGeocoder{}, nil, fastRetry())

	_, err := o.Collect(context.Background(), sacramento, nil)
	require.Error(t, err)

	var ce *ConfigError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "DISCOVERY_TAVILY_KEY", ce.Setting)
	assert.Zero(t, hits.Load())
}

func TestCollect_ConfigErrorNotRetried(t *testing.T) {
	p := &mockProvider{errs: []error{&ConfigError{Component: "search", Setting: "X"}}}
	o := NewOrchestrator(p, &mockExtractor{}, &mockGeocoder{}, nil, fastRetry())

	_, err := o.Collect(context.Background(), sacramento, nil)
	assert.True(t, IsConfigError(err))
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestCollect_PermanentErrorNotRetried(t *testing.T) {
	p := &mockProvider{name: "tavily", errs: []error{errors.New("tavily: decode response: unexpected EOF")}}
	o := NewOrchestrator(p, &mockExtractor{}, &mockGeocoder{}, nil, fastRetry())

	_, err := o.Collect(context.Background(), sacramento, nil)
	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 1, pe.Attempts)
	assert.Zero(t, pe.StatusCode)
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestCollect_NetworkErrorRetried(t *testing.T) {
	p := &mockProvider{name: "tavily", errs: []error{
		fmt.Errorf("post search: %w", syscall.ECONNRESET),
		nil,
	}}
	o := NewOrchestrator(p, &mockExtractor{}, &mockGeocoder{}, nil, fastRetry())

	out, err := o.Collect(context.Background(), sacramento, nil)
	require.NoError(t, err)
	assert.Zero(t, out.Documents)
	assert.Equal(t, int32(2), p.calls.Load())
}

func TestCollect_EndToEndHours(t *testing.T) {
	llm := `{"resources": [{
		"name": "Grace Pantry",
		"address": "1 Main St",
		"city": "Sacramento",
		"state": "CA",
		"zip": "95814",
		"phone": null,
		"website": null,
		"description": null,
		"services": ["food pantry"],
		"hours": {"monday": {"open": "9:00 AM", "close": "5:00 PM", "closed": false}},
		"confidence": 0.8
	}]}`
	ac := &mockAnthropicClient{}
	ac.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse("```json\n"+llm+"\n```"), nil)

	p := &mockProvider{docs: []Document{{URL: "https://example.org/food", Content: "Grace Pantry, 1 Main St. Open Monday 9-5."}}}
	geo := &mockGeocoder{coords: map[string][2]float64{"1 Main St": {38.58, -121.49}}}
	ext := NewLLMExtractor(ac, config.AnthropicConfig{Model: "claude-haiku-4-5-20251001"})
	o := NewOrchestrator(p, ext, geo, nil, fastRetry())

	results, err := o.Discover(context.Background(), sacramento, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	require.NotNil(t, r.Hours)
	assert.Equal(t, &model.DayHours{Open: "09:00", Close: "17:00"}, r.Hours.Monday)
	assert.Nil(t, r.Hours.Sunday)
	assert.InDelta(t, 0.8, r.Confidence, 1e-9)
	assert.Equal(t, []string{"https://example.org/food"}, r.SourceURLs)
	ac.AssertExpectations(t)
}

func TestCollect_FiltersOutsideArea(t *testing.T) {
	noZip := pantry("No Zip Kitchen", "3 Elm St")
	noZip.Zip = ""
	elsewhere := pantry("Reno Pantry", "4 Oak St")
	elsewhere.City, elsewhere.State = "Reno", "NV"
	fullState := pantry("West Sacramento Meals", "5 Pine St")
	fullState.City, fullState.State = "West Sacramento", "California"

	ext := &mockExtractor{byURL: map[string][]Candidate{
		"https://a.org": {pantry("Grace Pantry", "1 Main St"), noZip, elsewhere, fullState},
	}}
	geo := &mockGeocoder{coords: map[string][2]float64{
		"1 Main St": {38.58, -121.49},
		"5 Pine St": {38.59, -121.53},
	}}
	p := &mockProvider{docs: []Document{{URL: "https://a.org", Content: "x"}}}
	o := NewOrchestrator(p, ext, geo, nil, fastRetry())

	out, err := o.Collect(context.Background(), sacramento, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, out.Candidates)
	assert.Equal(t, 2, out.Filtered)
	require.Len(t, out.Results, 2)
	assert.Equal(t, "Grace Pantry", out.Results[0].Name)
	assert.Equal(t, "CA", out.Results[1].State)
}

func TestCollect_BatchesBoundConcurrency(t *testing.T) {
	var docs []Document
	byURL := map[string][]Candidate{}
	coords := map[string][2]float64{}
	for i := range 7 {
		u := "https://site" + string(rune('a'+i)) + ".org"
		addr := string(rune('1'+i)) + " Main St"
		docs = append(docs, Document{URL: u, Content: "text"})
		byURL[u] = []Candidate{pantry("Pantry "+string(rune('A'+i)), addr)}
		coords[addr] = [2]float64{38.5 + float64(i)/100, -121.4}
	}

	var mu sync.Mutex
	var updates []Progress
	progress := func(p Progress) {
		mu.Lock()
		defer mu.Unlock()
		updates = append(updates, p)
	}

	ext := &mockExtractor{byURL: byURL, delay: 20 * time.Millisecond}
	o := NewOrchestrator(&mockProvider{docs: docs}, ext, &mockGeocoder{coords: coords}, nil, fastRetry())

	out, err := o.Collect(context.Background(), sacramento, progress)
	require.NoError(t, err)
	assert.Len(t, out.Results, 7)
	assert.Equal(t, 7, ext.calls)
	assert.LessOrEqual(t, ext.peak, 3)

	require.Len(t, updates, 5)
	assert.Equal(t, StageSearching, updates[0].Stage)
	for i, u := range updates[1:4] {
		assert.Equal(t, StageProcessing, u.Stage)
		assert.Equal(t, i+1, u.Current)
		assert.Equal(t, 3, u.Total)
	}
	assert.Equal(t, StageDeduplicating, updates[4].Stage)
}

func TestCollect_ExtractionFailureIsolated(t *testing.T) {
	ext := &mockExtractor{
		byURL: map[string][]Candidate{"https://good.org": {pantry("Grace Pantry", "1 Main St")}},
		errs:  map[string]error{"https://bad.org": errors.New("model overloaded")},
	}
	p := &mockProvider{docs: []Document{
		{URL: "https://bad.org", Content: "x"},
		{URL: "https://good.org", Content: "y"},
	}}
	geo := &mockGeocoder{coords: map[string][2]float64{"1 Main St": {38.58, -121.49}}}
	o := NewOrchestrator(p, ext, geo, nil, fastRetry())

	out, err := o.Collect(context.Background(), sacramento, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, out.ExtractionFailures)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "Grace Pantry", out.Results[0].Name)
}

func TestCollect_ExtractorConfigErrorAborts(t *testing.T) {
	ext := &mockExtractor{errs: map[string]error{
		"https://a.org": &ConfigError{Component: "anthropic extraction", Setting: "DISCOVERY_ANTHROPIC_KEY"},
	}}
	p := &mockProvider{docs: []Document{{URL: "https://a.org", Content: "x"}}}
	o := NewOrchestrator(p, ext, &mockGeocoder{}, nil, fastRetry())

	out, err := o.Collect(context.Background(), sacramento, nil)
	assert.Nil(t, out)
	assert.True(t, IsConfigError(err))
}

func TestCollect_GeocodeFailureDropsCandidate(t *testing.T) {
	ext := &mockExtractor{byURL: map[string][]Candidate{
		"https://a.org": {pantry("Grace Pantry", "1 Main St"), pantry("Lost Pantry", "999 Nowhere Rd")},
	}}
	geo := &mockGeocoder{coords: map[string][2]float64{"1 Main St": {38.58, -121.49}}}
	p := &mockProvider{docs: []Document{{URL: "https://a.org", Content: "x"}}}
	o := NewOrchestrator(p, ext, geo, nil, fastRetry())

	out, err := o.Collect(context.Background(), sacramento, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, out.GeocodingFailures)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "Grace Pantry", out.Results[0].Name)
	assert.Equal(t, 1, out.Skipped())
}

func TestCollect_SuppliedCoordinatesSkipGeocoder(t *testing.T) {
	c := pantry("Grace Pantry", "1 Main St")
	c.Latitude, c.Longitude = f64Ptr(38.58), f64Ptr(-121.49)
	ext := &mockExtractor{byURL: map[string][]Candidate{"https://a.org": {c}}}
	geo := &mockGeocoder{}
	p := &mockProvider{docs: []Document{{URL: "https://a.org", Content: "x"}}}
	o := NewOrchestrator(p, ext, geo, nil, fastRetry())

	results, err := o.Discover(context.Background(), sacramento, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Zero(t, geo.calls)
}

func TestCollect_MergesFragmentsAcrossDocuments(t *testing.T) {
	a := pantry("Grace Pantry", "1 Main St")
	b := pantry("Grace Pantry", "1 Main Street")
	b.Phone = strPtr("(916) 443-1234")
	ext := &mockExtractor{byURL: map[string][]Candidate{
		"https://a.org": {a},
		"https://b.org": {b},
	}}
	geo := &mockGeocoder{coords: map[string][2]float64{
		"1 Main St":     {38.58, -121.49},
		"1 Main Street": {38.58, -121.49},
	}}
	p := &mockProvider{docs: []Document{{URL: "https://a.org", Content: "x"}, {URL: "https://b.org", Content: "y"}}}
	o := NewOrchestrator(p, ext, geo, nil, fastRetry())

	results, err := o.Discover(context.Background(), sacramento, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NotNil(t, results[0].Phone)
	assert.Equal(t, "+19164431234", *results[0].Phone)
	assert.ElementsMatch(t, []string{"https://a.org", "https://b.org"}, results[0].SourceURLs)
}

func TestCollect_TruncatesContent(t *testing.T) {
	raw := strings.Repeat("é", 50)
	ext := &mockExtractor{}
	p := &mockProvider{docs: []Document{{URL: "https://a.org", Content: "short", RawContent: &raw}}}
	o := NewOrchestrator(p, ext, &mockGeocoder{}, &config.DiscoveryConfig{MaxContentChars: 10}, fastRetry())

	_, err := o.Collect(context.Background(), sacramento, nil)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("é", 10), ext.texts["https://a.org"])
}

func TestCollect_NoDocuments(t *testing.T) {
	o := NewOrchestrator(&mockProvider{}, &mockExtractor{}, &mockGeocoder{}, nil, fastRetry())

	out, err := o.Collect(context.Background(), sacramento, nil)
	require.NoError(t, err)
	assert.Empty(t, out.Results)
	assert.Zero(t, out.Documents)
}

func TestInArea(t *testing.T) {
	base := pantry("Grace Pantry", "1 Main St").Result("https://a.org")

	tests := []struct {
		name string
		mut  func(r *model.DiscoveryResult)
		want bool
	}{
		{"exact", func(r *model.DiscoveryResult) {}, true},
		{"city case", func(r *model.DiscoveryResult) { r.City = "SACRAMENTO" }, true},
		{"city substring", func(r *model.DiscoveryResult) { r.City = "North Sacramento" }, true},
		{"state lowercase", func(r *model.DiscoveryResult) { r.State = "ca" }, true},
		{"state full name", func(r *model.DiscoveryResult) { r.State = "California" }, true},
		{"other city", func(r *model.DiscoveryResult) { r.City = "Davis" }, false},
		{"other state", func(r *model.DiscoveryResult) { r.State = "NV" }, false},
		{"blank name", func(r *model.DiscoveryResult) { r.Name = " " }, false},
		{"blank zip", func(r *model.DiscoveryResult) { r.Zip = "" }, false},
		{"short zip", func(r *model.DiscoveryResult) { r.Zip = "958" }, false},
		{"city as zip", func(r *model.DiscoveryResult) { r.Zip = "Sacramento" }, false},
		{"zip plus four", func(r *model.DiscoveryResult) { r.Zip = "95814-1234" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base
			tt.mut(&r)
			assert.Equal(t, tt.want, InArea(r, sacramento))
		})
	}
}

func TestBuildQuery(t *testing.T) {
	q := BuildQuery(model.Area{City: " Sacramento ", State: "CA"})
	assert.Contains(t, q, "Sacramento, CA")
	assert.Contains(t, q, "address")
	assert.Contains(t, q, "hours")
}
