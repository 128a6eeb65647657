package normalize

import (
	"net/url"
	"strings"
)

// trustedHosts are sources treated as trustworthy regardless of TLD.
var trustedHosts = map[string]bool{
	"feedingamerica.org": true,
	"usda.gov":           true,
	"fns.usda.gov":       true,
	"211.org":            true,
	"ampleharvest.org":   true,
	"whyhunger.org":      true,
}

// Hostname extracts the lower-cased host of rawURL without a leading "www.".
// A missing scheme is tolerated.
func Hostname(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// IsTrustedSource reports whether a URL comes from the allow-list or a
// .gov/.org host.
func IsTrustedSource(rawURL string) bool {
	host := Hostname(rawURL)
	if host == "" {
		return false
	}
	if trustedHosts[host] {
		return true
	}
	return strings.HasSuffix(host, ".gov") || strings.HasSuffix(host, ".org")
}
