// Package normalize canonicalizes discovered resource records. Every function
// is pure and total: bad input narrows to nil or empty, never to an error.
package normalize

import (
	"sort"
	"strings"

	"github.com/communityfood/discovery-engine/internal/model"
	"github.com/communityfood/discovery-engine/internal/validate"
)

// Phone returns the E.164 form of raw, or nil when raw is missing or invalid.
func Phone(raw *string) *string {
	if raw == nil {
		return nil
	}
	p, err := validate.Phone(*raw)
	if err != nil {
		return nil
	}
	return &p
}

// Website returns the canonical URL for raw, or nil when raw is missing or invalid.
func Website(raw *string) *string {
	if raw == nil {
		return nil
	}
	w, err := validate.Website(*raw)
	if err != nil {
		return nil
	}
	return &w
}

// Text collapses whitespace; blank input yields nil.
func Text(raw *string) *string {
	if raw == nil {
		return nil
	}
	s := strings.Join(strings.Fields(*raw), " ")
	if s == "" {
		return nil
	}
	return &s
}

// Resource returns a cleaned copy of r.
func Resource(r model.DiscoveryResult) model.DiscoveryResult {
	out := r
	out.Name = collapse(r.Name)
	out.Address = collapse(r.Address)
	out.City = collapse(r.City)

	out.State = collapse(r.State)
	if st, err := validate.State(out.State); err == nil {
		out.State = st
	}
	// A zip that is not a 5-digit ZIP or ZIP+4 is cleared, which fails IsComplete.
	out.Zip = ""
	if z, err := validate.Zip(r.Zip); err == nil {
		out.Zip = z
	}

	out.Phone = Phone(r.Phone)
	out.Website = Website(r.Website)
	out.Description = Text(r.Description)
	out.Services = Services(r.Services)
	out.Hours = WeeklyHours(r.Hours)
	out.SourceURL = strings.TrimSpace(r.SourceURL)
	out.SourceURLs = SourceSet(append([]string{out.SourceURL}, r.SourceURLs...))

	switch {
	case r.Confidence < 0:
		out.Confidence = 0
	case r.Confidence > 1:
		out.Confidence = 1
	}
	return out
}

// SourceSet trims, de-duplicates and sorts source URLs, dropping blanks.
func SourceSet(urls []string) []string {
	set := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			set[u] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for u := range set {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
