package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/communityfood/discovery-engine/internal/cooldown"
	"github.com/communityfood/discovery-engine/internal/dedupe"
	"github.com/communityfood/discovery-engine/internal/discovery"
	"github.com/communityfood/discovery-engine/internal/store"
	"github.com/communityfood/discovery-engine/pkg/geocode"
)

// discoveryEnv holds the store and the wired pipeline used by the discover
// and serve commands.
type discoveryEnv struct {
	Store    store.Store
	Cooldown *cooldown.Guard
	Runner   *discovery.Runner
}

// Close releases resources held by the environment.
func (e *discoveryEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens and migrates the configured store. Callers must Close it.
func initStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, store.Config{
		Driver:      cfg.Store.Driver,
		DatabaseURL: cfg.Store.DatabaseURL,
		SQLitePath:  cfg.Store.SQLitePath,
		Pool: store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// cooldownGuard builds the cooldown gate from config.
func cooldownGuard(st store.Store) *cooldown.Guard {
	return cooldown.NewGuard(st, cooldown.WithWindow(time.Duration(cfg.Discovery.CooldownDays)*24*time.Hour))
}

// initDiscovery validates credentials, opens the store and wires the
// search, extraction, geocoding and persistence stages into a Runner.
func initDiscovery(ctx context.Context) (*discoveryEnv, error) {
	if err := cfg.Validate("discover"); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	provider, err := discovery.NewProvider(cfg, nil)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	extractor, err := discovery.NewAnthropicExtractor(cfg.Anthropic)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	geoOpts := []geocode.Option{
		geocode.WithRateLimit(cfg.Geocode.RateLimit),
		geocode.WithCacheTTL(time.Duration(cfg.Geocode.CacheTTLMins) * time.Minute),
	}
	if cfg.Geocode.GoogleKey != "" {
		geoOpts = append(geoOpts, geocode.WithGoogleAPIKey(cfg.Geocode.GoogleKey))
		zap.L().Info("google geocoding fallback enabled")
	} else {
		zap.L().Debug("DISCOVERY_GEOCODE_GOOGLE_KEY not set, using census geocoder only")
	}

	orch := discovery.NewOrchestrator(
		provider,
		extractor,
		discovery.NewGeocodeAdapter(geocode.NewClient(geoOpts...)),
		&cfg.Discovery,
	)

	gate := cooldownGuard(st)
	runner := discovery.NewRunner(gate, orch, dedupe.NewGuard(st, st), st,
		discovery.WithFreshnessMax(cfg.Discovery.FreshnessMax),
	)

	return &discoveryEnv{Store: st, Cooldown: gate, Runner: runner}, nil
}
