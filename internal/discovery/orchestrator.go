// Package discovery runs just-in-time searches for community food resources:
// web search, LLM extraction, geocoding, normalization and merging, plus the
// Runner that gates, scores and persists the results.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/communityfood/discovery-engine/internal/config"
	"github.com/communityfood/discovery-engine/internal/dedupe"
	"github.com/communityfood/discovery-engine/internal/model"
	"github.com/communityfood/discovery-engine/internal/normalize"
	"github.com/communityfood/discovery-engine/internal/resilience"
	"github.com/communityfood/discovery-engine/internal/validate"
)

const (
	defaultBatchSize       = 3
	defaultMaxContentChars = 20000
	defaultExtractTimeout  = 60 * time.Second
	defaultGeocodeTimeout  = 15 * time.Second

	// maxLoggedFailures caps the addresses listed in the geocoding summary.
	maxLoggedFailures = 10
)

// Stage names a phase of a discovery run for progress reporting.
type Stage string

const (
	StageSearching     Stage = "searching"
	StageProcessing    Stage = "processing"
	StageDeduplicating Stage = "deduplicating"
)

// Progress is a push-style status update. Current and Total are batch
// counters and are zero outside the processing stage.
type Progress struct {
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
	Current int    `json:"current,omitempty"`
	Total   int    `json:"total,omitempty"`
}

// ProgressFunc receives progress updates. It may be nil.
type ProgressFunc func(Progress)

// Outcome is everything one search produced, including what was dropped.
type Outcome struct {
	Query              string                  `json:"query"`
	Documents          int                     `json:"documents"`
	Candidates         int                     `json:"candidates"`
	Filtered           int                     `json:"filtered"`
	ExtractionFailures int                     `json:"extraction_failures"`
	GeocodingFailures  int                     `json:"geocoding_failures"`
	Results            []model.DiscoveryResult `json:"results"`
}

// Skipped counts candidates and documents dropped for data-quality reasons.
func (o *Outcome) Skipped() int {
	return o.Filtered + o.ExtractionFailures + o.GeocodingFailures
}

// Orchestrator searches an area and turns the hits into merged results.
// It never writes to storage.
type Orchestrator struct {
	provider       SearchProvider
	extractor      Extractor
	geocoder       Geocoder
	batchSize      int
	maxChars       int
	extractTimeout time.Duration
	geocodeTimeout time.Duration
	retry          resilience.RetryConfig
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithRetry replaces the search retry policy.
func WithRetry(cfg resilience.RetryConfig) OrchestratorOption {
	return func(o *Orchestrator) { o.retry = cfg }
}

// NewOrchestrator creates an Orchestrator. Zero values in cfg fall back to
// batches of 3, 20000-rune documents and the standard search retry policy.
func NewOrchestrator(provider SearchProvider, extractor Extractor, geocoder Geocoder, cfg *config.DiscoveryConfig, opts ...OrchestratorOption) *Orchestrator {
	if cfg == nil {
		cfg = &config.DiscoveryConfig{}
	}
	o := &Orchestrator{
		provider:       provider,
		extractor:      extractor,
		geocoder:       geocoder,
		batchSize:      defaultBatchSize,
		maxChars:       defaultMaxContentChars,
		extractTimeout: defaultExtractTimeout,
		geocodeTimeout: defaultGeocodeTimeout,
		retry: resilience.SearchRetryConfig(
			cfg.Retry.MaxAttempts, cfg.Retry.AttemptTimeoutSecs,
			orDefault(cfg.Retry.InitialBackoffMs, 1000), orDefault(cfg.Retry.MaxBackoffMs, 10000),
		),
	}
	if o.retry.AttemptTimeout == 0 {
		o.retry.AttemptTimeout = 30 * time.Second
	}
	if cfg.BatchSize > 0 {
		o.batchSize = cfg.BatchSize
	}
	if cfg.MaxContentChars > 0 {
		o.maxChars = cfg.MaxContentChars
	}
	if cfg.ExtractTimeoutSecs > 0 {
		o.extractTimeout = time.Duration(cfg.ExtractTimeoutSecs) * time.Second
	}
	if cfg.GeocodeTimeoutSecs > 0 {
		o.geocodeTimeout = time.Duration(cfg.GeocodeTimeoutSecs) * time.Second
	}
	for _, opt := range opts {
		opt(o)
	}
	o.retry.ShouldRetry = func(err error) bool { return !IsConfigError(err) && resilience.IsTransient(err) }
	if o.retry.OnRetry == nil {
		o.retry.OnRetry = resilience.RetryLogger(provider.Name(), "search")
	}
	return o
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// Provider returns the search provider name.
func (o *Orchestrator) Provider() string {
	return o.provider.Name()
}

// BuildQuery returns the natural-language search query for an area.
func BuildQuery(area model.Area) string {
	return fmt.Sprintf("food banks, food pantries and free meal programs in %s, %s with street address and opening hours",
		strings.TrimSpace(area.City), strings.TrimSpace(area.State))
}

// Discover searches area and returns merged, normalized, geocoded results.
func (o *Orchestrator) Discover(ctx context.Context, area model.Area, progress ProgressFunc) ([]model.DiscoveryResult, error) {
	out, err := o.Collect(ctx, area, progress)
	if err != nil {
		return nil, err
	}
	return out.Results, nil
}

// Collect is Discover with the per-run counters. On error no partial
// results are returned.
func (o *Orchestrator) Collect(ctx context.Context, area model.Area, progress ProgressFunc) (*Outcome, error) {
	if progress == nil {
		progress = func(Progress) {}
	}
	log := zap.L().With(
		zap.String("phase", "discover"),
		zap.String("location_hash", area.LocationHash()),
		zap.String("provider", o.provider.Name()),
	)

	out := &Outcome{Query: BuildQuery(area)}

	progress(Progress{Stage: StageSearching, Message: fmt.Sprintf("Searching for food resources in %s", area)})
	docs, err := o.search(ctx, out.Query)
	if err != nil {
		return nil, err
	}
	out.Documents = len(docs)
	log.Info("search complete", zap.Int("documents", len(docs)))

	var (
		mu        sync.Mutex
		collected []model.DiscoveryResult
		geoMisses []string
	)

	total := (len(docs) + o.batchSize - 1) / o.batchSize
	for b := 0; b < total; b++ {
		start := b * o.batchSize
		end := min(start+o.batchSize, len(docs))
		progress(Progress{
			Stage:   StageProcessing,
			Message: fmt.Sprintf("Processing documents %d-%d of %d", start+1, end, len(docs)),
			Current: b + 1,
			Total:   total,
		})

		g, gctx := errgroup.WithContext(ctx)
		for _, doc := range docs[start:end] {
			g.Go(func() error {
				res, err := o.processDocument(gctx, doc, area)
				mu.Lock()
				defer mu.Unlock()
				out.Candidates += res.candidates
				out.Filtered += res.filtered
				out.GeocodingFailures += len(res.geoMisses)
				geoMisses = append(geoMisses, res.geoMisses...)
				if err != nil {
					if IsConfigError(err) {
						return err
					}
					out.ExtractionFailures++
					log.Warn("document extraction failed", zap.String("url", doc.URL), zap.Error(err))
					return nil
				}
				collected = append(collected, res.results...)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "discovery: cancelled")
		}
	}

	if len(geoMisses) > 0 {
		log.Warn("geocoding failures",
			zap.Int("count", len(geoMisses)),
			zap.Strings("addresses", geoMisses[:min(len(geoMisses), maxLoggedFailures)]),
		)
	}

	progress(Progress{Stage: StageDeduplicating, Message: fmt.Sprintf("Merging %d candidates", len(collected))})
	out.Results = dedupe.Merge(collected)

	log.Info("discovery complete",
		zap.Int("candidates", out.Candidates),
		zap.Int("results", len(out.Results)),
		zap.Int("skipped", out.Skipped()),
	)
	return out, nil
}

// search runs the provider under the retry policy.
func (o *Orchestrator) search(ctx context.Context, query string) ([]Document, error) {
	attempts := 0
	docs, err := resilience.DoVal(ctx, o.retry, func(ctx context.Context) ([]Document, error) {
		attempts++
		return o.provider.Search(ctx, query)
	})
	if err == nil {
		return docs, nil
	}
	if IsConfigError(err) {
		return nil, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, eris.Wrapf(ctxErr, "discovery: %s search cancelled", o.provider.Name())
	}
	return nil, &ProviderError{
		Provider:   o.provider.Name(),
		Attempts:   attempts,
		StatusCode: resilience.StatusCode(err),
		Err:        err,
	}
}

type documentResult struct {
	results    []model.DiscoveryResult
	candidates int
	filtered   int
	geoMisses  []string
}

// processDocument extracts, filters, geocodes and normalizes one document.
// An error means the whole document yielded nothing.
func (o *Orchestrator) processDocument(ctx context.Context, doc Document, area model.Area) (documentResult, error) {
	var res documentResult

	text := doc.Text(o.maxChars)
	if strings.TrimSpace(text) == "" {
		return res, nil
	}

	ectx, cancel := context.WithTimeout(ctx, o.extractTimeout)
	cands, err := o.extractor.Extract(ectx, ExtractRequest{
		Text:      text,
		SourceURL: doc.URL,
		City:      area.City,
		State:     area.State,
	})
	cancel()
	if err != nil {
		if IsConfigError(err) {
			return res, err
		}
		return res, eris.Wrapf(ErrExtractionFailure, "%s: %v", doc.URL, err)
	}
	res.candidates = len(cands)

	for _, c := range cands {
		r := c.Result(doc.URL)
		if !InArea(r, area) {
			res.filtered++
			continue
		}

		if !r.HasCoordinates() {
			gctx, cancel := context.WithTimeout(ctx, o.geocodeTimeout)
			lat, lng, err := o.geocoder.Geocode(gctx, r)
			cancel()
			if err != nil || (lat == 0 && lng == 0) {
				res.geoMisses = append(res.geoMisses, r.Address+", "+r.City)
				if err != nil && !errors.Is(err, ErrGeocodingFailure) {
					zap.L().Debug("geocode error", zap.String("address", r.Address), zap.Error(err))
				}
				continue
			}
			r.Latitude, r.Longitude = lat, lng
		}

		r = normalize.Resource(r)
		if !r.IsComplete() {
			res.filtered++
			continue
		}
		res.results = append(res.results, r)
	}
	return res, nil
}

// InArea reports whether r has every required field, a usable zip, and sits
// in area: its city contains the target city and its state matches the
// target state, both case-insensitively.
func InArea(r model.DiscoveryResult, area model.Area) bool {
	for _, f := range []string{r.Name, r.Address, r.Zip, r.City, r.State} {
		if strings.TrimSpace(f) == "" {
			return false
		}
	}
	if _, err := validate.Zip(r.Zip); err != nil {
		return false
	}
	city := strings.ToLower(strings.TrimSpace(area.City))
	if !strings.Contains(strings.ToLower(r.City), city) {
		return false
	}
	return sameState(r.State, area.State)
}

func sameState(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if strings.EqualFold(a, b) {
		return true
	}
	ca, errA := validate.State(a)
	cb, errB := validate.State(b)
	return errA == nil && errB == nil && ca == cb
}
