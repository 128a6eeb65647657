package geocode

import (
	"fmt"
	"strings"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// cacheKey normalizes an address for cache lookup.
func cacheKey(addr AddressInput) string {
	return fmt.Sprintf("%s|%s|%s|%s",
		strings.ToLower(strings.Join(strings.Fields(addr.Street), " ")),
		strings.ToLower(strings.TrimSpace(addr.City)),
		strings.ToLower(strings.TrimSpace(addr.State)),
		strings.TrimSpace(addr.ZipCode),
	)
}

// cached returns a copy of a remembered result. Non-matches are cached too so
// repeated misses skip the network.
func (g *geocoder) cached(key string) (*Result, bool) {
	if g.cache == nil {
		return nil, false
	}
	v, ok := g.cache.Get(key)
	if !ok {
		return nil, false
	}
	r := v.(Result)
	zap.L().Debug("geocode cache hit", zap.String("key", key), zap.Bool("matched", r.Matched))
	return &r, true
}

func (g *geocoder) remember(key string, r *Result) {
	if g.cache == nil || r == nil {
		return
	}
	g.cache.Set(key, *r, gocache.DefaultExpiration)
}
