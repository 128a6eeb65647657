// Package dedupe detects resources that are already known, either from
// stored inventory and tombstones or from earlier fragments in the same run.
package dedupe

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/agext/levenshtein"
	"github.com/rotisserie/eris"

	"github.com/communityfood/discovery-engine/internal/model"
	"github.com/communityfood/discovery-engine/internal/normalize"
)

const (
	// BoxDelta is the half-width in degrees of the inventory pre-filter box.
	BoxDelta = 0.005
	// RadiusMeters is the maximum great-circle distance for a geo match.
	RadiusMeters = 200.0
	// DuplicateSimilarity is the name similarity at or above which a nearby
	// record is a duplicate.
	DuplicateSimilarity = 0.8
	// ReviewSimilarity is the lower bound of the band flagged for review.
	ReviewSimilarity = 0.6

	earthRadiusMeters = 6371000.0
)

// TombstoneReader looks up blocklisted addresses.
type TombstoneReader interface {
	FindTombstone(ctx context.Context, normalizedAddress string) (*model.Tombstone, error)
}

// InventoryReader returns stored resources inside a bounding box.
type InventoryReader interface {
	FindInBoundingBox(ctx context.Context, box model.BoundingBox) ([]model.InventoryRecord, error)
}

// Verdict is the outcome of a duplicate check. Duplicates are an expected
// outcome, not an error.
type Verdict struct {
	IsDuplicate        bool    `json:"is_duplicate"`
	PotentialDuplicate bool    `json:"potential_duplicate,omitempty"`
	Reason             string  `json:"reason,omitempty"`
	MatchedID          string  `json:"matched_id,omitempty"`
	DistanceMeters     float64 `json:"distance_meters,omitempty"`
	Similarity         float64 `json:"similarity,omitempty"`
}

// Guard checks candidates against tombstones and stored inventory. It never
// writes to either.
type Guard struct {
	tombstones TombstoneReader
	inventory  InventoryReader
}

// NewGuard creates a Guard.
func NewGuard(tombstones TombstoneReader, inventory InventoryReader) *Guard {
	return &Guard{tombstones: tombstones, inventory: inventory}
}

// Check reports whether r duplicates a tombstone or a nearby stored resource.
func (g *Guard) Check(ctx context.Context, r model.DiscoveryResult) (Verdict, error) {
	ts, err := g.tombstones.FindTombstone(ctx, normalize.TombstoneKey(r.Address))
	if err != nil {
		return Verdict{}, eris.Wrap(err, "dedupe: find tombstone")
	}
	if ts != nil {
		return Verdict{
			IsDuplicate: true,
			Reason:      fmt.Sprintf("tombstoned address: %s", ts.Reason),
			MatchedID:   ts.ID,
		}, nil
	}

	if !r.HasCoordinates() {
		return Verdict{}, nil
	}

	nearby, err := g.inventory.FindInBoundingBox(ctx, model.BoxAround(r.Latitude, r.Longitude, BoxDelta))
	if err != nil {
		return Verdict{}, eris.Wrap(err, "dedupe: find nearby inventory")
	}

	var best Verdict
	var bestName string
	for _, rec := range nearby {
		dist := Haversine(r.Latitude, r.Longitude, rec.Latitude, rec.Longitude)
		if dist > RadiusMeters {
			continue
		}
		sim := Similarity(r.Name, rec.Name)
		if sim <= best.Similarity && best.MatchedID != "" {
			continue
		}
		best = Verdict{MatchedID: rec.ID, DistanceMeters: dist, Similarity: sim}
		bestName = rec.Name
	}

	switch {
	case best.MatchedID == "":
		return Verdict{}, nil
	case best.Similarity >= DuplicateSimilarity:
		best.IsDuplicate = true
		best.Reason = fmt.Sprintf("matches %q (%s) %.0fm away", bestName, best.MatchedID, best.DistanceMeters)
	case best.Similarity >= ReviewSimilarity:
		best.PotentialDuplicate = true
		best.Reason = fmt.Sprintf("possibly %q (%s) %.0fm away", bestName, best.MatchedID, best.DistanceMeters)
	default:
		return Verdict{}, nil
	}
	return best, nil
}

// Haversine returns the great-circle distance in meters between two points.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(a))
}

// Similarity is the normalized Levenshtein similarity of two names,
// (maxLen - distance) / maxLen, compared case-insensitively. Two empty
// names are identical.
func Similarity(a, b string) float64 {
	a, b = lower(a), lower(b)
	maxLen := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if maxLen == 0 {
		return 1
	}
	d := levenshtein.Distance(a, b, nil)
	return float64(maxLen-d) / float64(maxLen)
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
