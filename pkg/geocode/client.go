// Package geocode resolves street addresses to coordinates via the Census
// Geocoder (primary) and Google (fallback), with an in-memory result cache.
package geocode

import (
	"context"
	"net/http"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Client geocodes addresses.
type Client interface {
	// Geocode geocodes a single address. An unmatched address is not an
	// error: the result has Matched=false.
	Geocode(ctx context.Context, addr AddressInput) (*Result, error)
}

// AddressInput represents an address to geocode.
type AddressInput struct {
	Street  string
	City    string
	State   string
	ZipCode string
}

// Result holds the geocoding output for an address.
type Result struct {
	Latitude  float64
	Longitude float64
	Source    string // "census" or "google"
	Quality   string // "rooftop", "range", "centroid", "approximate"
	Matched   bool
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithGoogleAPIKey enables Google Geocoding API as a fallback.
func WithGoogleAPIKey(key string) Option {
	return func(g *geocoder) {
		g.googleKey = key
	}
}

// WithHTTPClient sets a custom HTTP client for both Census and Google requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit shared by both backends.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		if rps <= 0 {
			g.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	}
}

// WithCacheTTL sets how long results, matched or not, are remembered.
// Zero disables the cache.
func WithCacheTTL(ttl time.Duration) Option {
	return func(g *geocoder) {
		if ttl <= 0 {
			g.cache = nil
			return
		}
		g.cache = gocache.New(ttl, 2*ttl)
	}
}

type geocoder struct {
	httpClient *http.Client
	googleKey  string
	limiter    *rate.Limiter
	cache      *gocache.Cache
}

// NewClient creates a new geocoding Client with the given options.
func NewClient(opts ...Option) Client {
	g := &geocoder{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(10, 10),
		cache:      gocache.New(24*time.Hour, time.Hour),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Geocode tries Census first, then Google if configured.
func (g *geocoder) Geocode(ctx context.Context, addr AddressInput) (*Result, error) {
	key := cacheKey(addr)
	if r, ok := g.cached(key); ok {
		return r, nil
	}

	result, censusErr := g.geocodeCensus(ctx, addr)
	if censusErr == nil && result.Matched {
		g.remember(key, result)
		return result, nil
	}
	if censusErr != nil {
		zap.L().Debug("census geocode failed", zap.String("address", formatOneLine(addr)), zap.Error(censusErr))
	}

	if g.googleKey != "" {
		googleResult, googleErr := g.geocodeGoogle(ctx, addr)
		if googleErr == nil && googleResult.Matched {
			g.remember(key, googleResult)
			return googleResult, nil
		}
		if googleErr != nil {
			zap.L().Debug("google geocode failed", zap.String("address", formatOneLine(addr)), zap.Error(googleErr))
			if censusErr != nil {
				return nil, googleErr
			}
		}
	} else if censusErr != nil {
		return nil, censusErr
	}

	unmatched := &Result{Matched: false}
	g.remember(key, unmatched)
	return unmatched, nil
}
