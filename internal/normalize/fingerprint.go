package normalize

import (
	"strings"
	"unicode"
)

// addressAbbreviations abbreviates street suffixes and directions.
var addressAbbreviations = map[string]string{
	"street":    "st",
	"avenue":    "ave",
	"av":        "ave",
	"boulevard": "blvd",
	"road":      "rd",
	"drive":     "dr",
	"lane":      "ln",
	"court":     "ct",
	"place":     "pl",
	"parkway":   "pkwy",
	"highway":   "hwy",
	"circle":    "cir",
	"terrace":   "ter",
	"square":    "sq",
	"trail":     "trl",
	"suite":     "ste",
	"apartment": "apt",
	"building":  "bldg",
	"north":     "n",
	"south":     "s",
	"east":      "e",
	"west":      "w",
	"northeast": "ne",
	"northwest": "nw",
	"southeast": "se",
	"southwest": "sw",
}

// AddressFingerprint reduces a street address to a matching key:
// "123 North Main Street, Suite 4" → "123nmainstste4". Never for display.
func AddressFingerprint(addr string) string {
	words := strings.FieldsFunc(strings.ToLower(addr), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var b strings.Builder
	for _, w := range words {
		if abbr, ok := addressAbbreviations[w]; ok {
			w = abbr
		}
		b.WriteString(w)
	}
	return b.String()
}

// NameFingerprint lower-cases a name and strips everything but letters and digits.
func NameFingerprint(name string) string {
	return alnum(strings.ToLower(name))
}

func alnum(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// TombstoneKey is the lookup key for the tombstone table: the raw address
// lower-cased with whitespace runs collapsed to one space. Import and lookup
// must both go through it.
func TombstoneKey(addr string) string {
	return strings.ToLower(strings.Join(strings.Fields(addr), " "))
}
