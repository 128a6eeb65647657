// Package validate canonicalizes raw contact fields and rejects malformed input.
package validate

import (
	"net/url"
	"strings"

	"github.com/nyaruka/phonenumbers"
	"github.com/rotisserie/eris"
)

// DefaultRegion is the region assumed for numbers without a country code.
const DefaultRegion = "US"

var (
	// ErrInvalidPhone is returned for numbers that cannot be parsed or are not dialable.
	ErrInvalidPhone = eris.New("validate: invalid phone number")
	// ErrInvalidWebsite is returned for strings that are not usable http(s) URLs.
	ErrInvalidWebsite = eris.New("validate: invalid website")
	// ErrInvalidZip is returned when no 5-digit ZIP can be found.
	ErrInvalidZip = eris.New("validate: invalid zip code")
	// ErrInvalidState is returned for unknown state names or codes.
	ErrInvalidState = eris.New("validate: invalid state")
)

// Phone parses raw and returns it in E.164 form (e.g. "+19164431234").
func Phone(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidPhone
	}
	num, err := phonenumbers.Parse(raw, DefaultRegion)
	if err != nil {
		return "", eris.Wrapf(ErrInvalidPhone, "parse %q: %v", raw, err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", eris.Wrapf(ErrInvalidPhone, "%q", raw)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// Website defaults the scheme to https, strips a leading "www." from the
// host and rejects anything that does not look like a public http(s) URL.
func Website(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.ContainsAny(raw, " \t\n") {
		return "", ErrInvalidWebsite
	}
	if !strings.Contains(raw, "://") {
		// "mailto:x@y" and similar carry a scheme but no authority. A colon
		// before any dot cannot be a host:port pair.
		if i := strings.IndexByte(raw, ':'); i >= 0 && !strings.Contains(raw[:i], ".") {
			return "", eris.Wrapf(ErrInvalidWebsite, "unsupported scheme in %q", raw)
		}
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", eris.Wrapf(ErrInvalidWebsite, "parse %q: %v", raw, err)
	}
	if u.User != nil {
		return "", eris.Wrapf(ErrInvalidWebsite, "credentials in %q", u.Redacted())
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", eris.Wrapf(ErrInvalidWebsite, "unsupported scheme %q", u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	if host == "" || !strings.Contains(host, ".") || strings.HasPrefix(host, ".") || strings.HasSuffix(host, ".") {
		return "", eris.Wrapf(ErrInvalidWebsite, "bad host in %q", raw)
	}
	if port := u.Port(); port != "" {
		host = host + ":" + port
	}

	u.Scheme = scheme
	u.Host = host
	return u.String(), nil
}

// Zip returns the 5-digit ZIP from a ZIP or ZIP+4 string.
func Zip(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	digits := 0
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c < '0' || c > '9' {
			break
		}
		digits++
	}
	if digits < 5 {
		return "", eris.Wrapf(ErrInvalidZip, "%q", raw)
	}
	if digits > 5 {
		// 9 contiguous digits is ZIP+4 without the dash.
		if digits != 9 {
			return "", eris.Wrapf(ErrInvalidZip, "%q", raw)
		}
	}
	rest := raw[digits:]
	if rest != "" && !(len(rest) == 5 && rest[0] == '-' && allDigits(rest[1:])) {
		return "", eris.Wrapf(ErrInvalidZip, "%q", raw)
	}
	return raw[:5], nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

// State returns the upper-case two-letter code for a state abbreviation or name.
func State(raw string) (string, error) {
	lower := strings.ToLower(strings.TrimSpace(raw))
	lower = strings.Join(strings.Fields(lower), " ")
	if _, ok := abbrToState[lower]; ok {
		return strings.ToUpper(lower), nil
	}
	if abbr, ok := stateToAbbr[lower]; ok {
		return strings.ToUpper(abbr), nil
	}
	return "", eris.Wrapf(ErrInvalidState, "%q", raw)
}

// abbrToState maps lowercase state abbreviations to lowercase full names.
var abbrToState = map[string]string{
	"al": "alabama", "ak": "alaska", "az": "arizona", "ar": "arkansas",
	"ca": "california", "co": "colorado", "ct": "connecticut", "de": "delaware",
	"fl": "florida", "ga": "georgia", "hi": "hawaii", "id": "idaho",
	"il": "illinois", "in": "indiana", "ia": "iowa", "ks": "kansas",
	"ky": "kentucky", "la": "louisiana", "me": "maine", "md": "maryland",
	"ma": "massachusetts", "mi": "michigan", "mn": "minnesota", "ms": "mississippi",
	"mo": "missouri", "mt": "montana", "ne": "nebraska", "nv": "nevada",
	"nh": "new hampshire", "nj": "new jersey", "nm": "new mexico", "ny": "new york",
	"nc": "north carolina", "nd": "north dakota", "oh": "ohio", "ok": "oklahoma",
	"or": "oregon", "pa": "pennsylvania", "ri": "rhode island", "sc": "south carolina",
	"sd": "south dakota", "tn": "tennessee", "tx": "texas", "ut": "utah",
	"vt": "vermont", "va": "virginia", "wa": "washington", "wv": "west virginia",
	"wi": "wisconsin", "wy": "wyoming", "dc": "district of columbia", "pr": "puerto rico",
}

// stateToAbbr maps lowercase full names to lowercase abbreviations.
var stateToAbbr = func() map[string]string {
	m := make(map[string]string, len(abbrToState))
	for abbr, full := range abbrToState {
		m[full] = abbr
	}
	return m
}()
