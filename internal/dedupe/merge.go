package dedupe

import (
	"fmt"
	"strings"

	"github.com/communityfood/discovery-engine/internal/model"
	"github.com/communityfood/discovery-engine/internal/normalize"
)

// minKeyLen is the shortest merge key considered meaningful.
const minKeyLen = 5

// MergeKey returns the key fragments of the same place share: the address
// fingerprint with zip, else rounded coordinates, else the name fingerprint
// with zip.
func MergeKey(r model.DiscoveryResult) string {
	if fp := normalize.AddressFingerprint(r.Address); fp != "" {
		if key := fp + "|" + r.Zip; len(key) >= minKeyLen {
			return key
		}
	}
	if r.HasCoordinates() {
		return fmt.Sprintf("geo:%.4f,%.4f", r.Latitude, r.Longitude)
	}
	return "name:" + normalize.NameFingerprint(r.Name) + "|" + r.Zip
}

// Merge collapses fragments describing the same place into one record each.
// Output keeps first-seen order.
func Merge(results []model.DiscoveryResult) []model.DiscoveryResult {
	index := make(map[string]int, len(results))
	out := make([]model.DiscoveryResult, 0, len(results))
	for _, r := range results {
		key := MergeKey(r)
		i, ok := index[key]
		if !ok {
			index[key] = len(out)
			out = append(out, r)
			continue
		}
		out[i] = mergePair(out[i], r)
	}
	return out
}

// mergePair picks a target (trusted source first, then higher confidence)
// and fills its gaps from the other record.
func mergePair(a, b model.DiscoveryResult) model.DiscoveryResult {
	target, source := a, b
	if preferSource(a, b) {
		target, source = b, a
	}

	if target.Phone == nil {
		target.Phone = source.Phone
	}
	if target.Website == nil {
		target.Website = source.Website
	}
	if len(text(source.Description)) > len(text(target.Description)) {
		target.Description = source.Description
	}
	if target.Hours.IsEmpty() && !source.Hours.IsEmpty() {
		target.Hours = source.Hours
	}
	if !target.HasCoordinates() && source.HasCoordinates() {
		target.Latitude, target.Longitude = source.Latitude, source.Longitude
	}

	target.Services = normalize.Services(append(append([]string{}, target.Services...), source.Services...))
	target.SourceURLs = normalize.SourceSet(append(
		append([]string{target.SourceURL, source.SourceURL}, target.SourceURLs...),
		source.SourceURLs...,
	))
	target.Confidence = max(target.Confidence, source.Confidence)
	return target
}

// preferSource reports whether b should be the merge target instead of a.
func preferSource(a, b model.DiscoveryResult) bool {
	at, bt := normalize.IsTrustedSource(a.SourceURL), normalize.IsTrustedSource(b.SourceURL)
	if at != bt {
		return bt
	}
	return b.Confidence > a.Confidence
}

func text(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
