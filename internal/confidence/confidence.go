// Package confidence computes the deterministic quality score attached to
// every discovered resource, and the auto-approval predicate built on it.
package confidence

import (
	"strings"

	"github.com/communityfood/discovery-engine/internal/model"
	"github.com/communityfood/discovery-engine/internal/normalize"
)

// Field completeness points (40 max).
const (
	pointsPhone       = 8
	pointsWebsite     = 8
	pointsHours       = 12
	pointsServices    = 6
	pointsDescription = 6
)

// Source authority points (30 max).
const (
	authorityGov       = 30
	authorityAllowList = 25
	authorityOrg       = 15
	authorityEdu       = 10
	authorityOther     = 5
)

const (
	// DefaultFreshness is the flat freshness award for newly discovered records.
	DefaultFreshness = 10
	// ExtendedFreshness is the freshness ceiling callers may opt into; the
	// multi-source ceiling drops to 10 to keep the total at 100.
	ExtendedFreshness = 20

	// AutoApproveThreshold is the minimum score for auto-publishing.
	AutoApproveThreshold = 0.9
)

// authoritativeHosts are non-.gov sources trusted enough to auto-approve.
var authoritativeHosts = map[string]bool{
	"feedingamerica.org": true,
	"211.org":            true,
	"fns.usda.gov":       true,
}

// Options tune a single scoring call.
type Options struct {
	// ConfirmingSources is the number of independent sources, beyond the
	// primary one, that mentioned the resource.
	ConfirmingSources int
	// FreshnessMax selects the freshness variant: DefaultFreshness (0 means
	// default) or ExtendedFreshness.
	FreshnessMax int
}

// Score returns the 0-1 confidence for r and the point breakdown behind it.
// total/100 == score exactly.
func Score(r model.DiscoveryResult, opts Options) (float64, model.ConfidenceFactors) {
	f := model.ConfidenceFactors{
		FieldCompleteness:       completeness(r),
		SourceAuthority:         SourceAuthority(r.SourceURL),
		DataFreshness:           DefaultFreshness,
		MultiSourceConfirmation: confirmation(opts.ConfirmingSources, 20),
	}
	if opts.FreshnessMax == ExtendedFreshness {
		f.DataFreshness = ExtendedFreshness
		f.MultiSourceConfirmation = confirmation(opts.ConfirmingSources, 10)
	}
	f.Total = f.FieldCompleteness + f.SourceAuthority + f.DataFreshness + f.MultiSourceConfirmation
	return float64(f.Total) / 100, f
}

func completeness(r model.DiscoveryResult) int {
	pts := 0
	if present(r.Phone) {
		pts += pointsPhone
	}
	if present(r.Website) {
		pts += pointsWebsite
	}
	if !r.Hours.IsEmpty() {
		pts += pointsHours
	}
	if len(r.Services) > 0 {
		pts += pointsServices
	}
	if present(r.Description) {
		pts += pointsDescription
	}
	return pts
}

func present(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}

// confirmation awards 0/10/15/20 for 0/1/2/3+ confirming sources, capped at ceiling.
func confirmation(sources, ceiling int) int {
	var pts int
	switch {
	case sources <= 0:
		pts = 0
	case sources == 1:
		pts = 10
	case sources == 2:
		pts = 15
	default:
		pts = 20
	}
	return min(pts, ceiling)
}

// SourceAuthority returns the authority points for a source URL.
func SourceAuthority(sourceURL string) int {
	if strings.TrimSpace(sourceURL) == "" {
		return 0
	}
	host := normalize.Hostname(sourceURL)
	switch {
	case host == "":
		return authorityOther
	case strings.HasSuffix(host, ".gov"):
		return authorityGov
	case authoritativeHosts[host]:
		return authorityAllowList
	case strings.HasSuffix(host, ".org"):
		return authorityOrg
	case strings.HasSuffix(host, ".edu"):
		return authorityEdu
	default:
		return authorityOther
	}
}

// IsAuthoritative reports whether a source is .gov or on the allow-list.
func IsAuthoritative(sourceURL string) bool {
	host := normalize.Hostname(sourceURL)
	return host != "" && (strings.HasSuffix(host, ".gov") || authoritativeHosts[host])
}

// ShouldAutoApprove is the only auto-publish decision: a high score from an
// authoritative source that is not a suspected duplicate.
func ShouldAutoApprove(score float64, sourceURL string, isPotentialDuplicate bool) bool {
	return score >= AutoApproveThreshold && IsAuthoritative(sourceURL) && !isPotentialDuplicate
}
