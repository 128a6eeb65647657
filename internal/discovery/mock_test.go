package discovery

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/communityfood/discovery-engine/internal/model"
	"github.com/communityfood/discovery-engine/pkg/anthropic"
)

// --- Anthropic Mock ---

type mockAnthropicClient struct {
	mock.Mock
}

func (m *mockAnthropicClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   anthropic.TokenUsage{InputTokens: 100, OutputTokens: 50},
	}
}

// --- Search Provider Mock ---

type mockProvider struct {
	name  string
	docs  []Document
	errs  []error
	calls atomic.Int32
}

func (m *mockProvider) Name() string {
	if m.name == "" {
		return "mock"
	}
	return m.name
}

func (m *mockProvider) Search(_ context.Context, _ string) ([]Document, error) {
	n := int(m.calls.Add(1)) - 1
	if n < len(m.errs) && m.errs[n] != nil {
		return nil, m.errs[n]
	}
	return m.docs, nil
}

// --- Extractor Mock ---

// mockExtractor returns candidates keyed by document URL and tracks peak
// concurrency.
type mockExtractor struct {
	byURL map[string][]Candidate
	errs  map[string]error
	delay time.Duration

	mu       sync.Mutex
	texts    map[string]string
	inFlight int
	peak     int
	calls    int
}

func (m *mockExtractor) Extract(ctx context.Context, req ExtractRequest) ([]Candidate, error) {
	m.mu.Lock()
	m.calls++
	m.inFlight++
	m.peak = max(m.peak, m.inFlight)
	if m.texts == nil {
		m.texts = map[string]string{}
	}
	m.texts[req.SourceURL] = req.Text
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := m.errs[req.SourceURL]; err != nil {
		return nil, err
	}
	return m.byURL[req.SourceURL], nil
}

// --- Geocoder Mock ---

type mockGeocoder struct {
	coords map[string][2]float64
	err    error

	mu    sync.Mutex
	calls int
}

func (m *mockGeocoder) Geocode(_ context.Context, r model.DiscoveryResult) (float64, float64, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.err != nil {
		return 0, 0, m.err
	}
	c, ok := m.coords[r.Address]
	if !ok {
		return 0, 0, ErrGeocodingFailure
	}
	return c[0], c[1], nil
}

// --- Collector Mock ---

type mockCollector struct {
	outcome *Outcome
	err     error
	calls   int
}

func (m *mockCollector) Provider() string { return "mock" }

func (m *mockCollector) Collect(_ context.Context, _ model.Area, _ ProgressFunc) (*Outcome, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.outcome, nil
}

func strPtr(s string) *string { return &s }

func f64Ptr(f float64) *float64 { return &f }
