package normalize

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// serviceSynonyms maps lower-cased free-text service names to the canonical
// vocabulary. Every canonical value also maps to itself so normalization is
// idempotent.
var serviceSynonyms = map[string]string{
	"pantry":               "Pantry",
	"food pantry":          "Pantry",
	"food pantries":        "Pantry",
	"choice pantry":        "Pantry",
	"food shelf":           "Pantry",
	"hot meal":             "Hot Meal",
	"hot meals":            "Hot Meal",
	"soup kitchen":         "Hot Meal",
	"free meal":            "Hot Meal",
	"free meals":           "Hot Meal",
	"community meal":       "Hot Meal",
	"community meals":      "Hot Meal",
	"meal service":         "Hot Meal",
	"mobile pantry":        "Mobile Pantry",
	"mobile food bank":     "Mobile Pantry",
	"food truck":           "Mobile Pantry",
	"food bank":            "Food Bank",
	"foodbank":             "Food Bank",
	"snap":                 "SNAP Assistance",
	"snap assistance":      "SNAP Assistance",
	"calfresh":             "SNAP Assistance",
	"food stamps":          "SNAP Assistance",
	"snap enrollment":      "SNAP Assistance",
	"wic":                  "WIC",
	"senior meals":         "Senior Meals",
	"meals on wheels":      "Senior Meals",
	"home delivered meals": "Senior Meals",
	"produce":              "Fresh Produce",
	"fresh produce":        "Fresh Produce",
	"produce distribution": "Fresh Produce",
	"baby formula":         "Baby Supplies",
	"diapers":              "Baby Supplies",
	"baby supplies":        "Baby Supplies",
	"school meals":         "Youth Meals",
	"summer meals":         "Youth Meals",
	"youth meals":          "Youth Meals",
	"backpack program":     "Youth Meals",
	"grocery delivery":     "Delivery",
	"home delivery":        "Delivery",
	"delivery":             "Delivery",
}

// Service canonicalizes a single free-text service name. Unknown names are
// title-cased. Returns "" for blank input.
func Service(raw string) string {
	s := strings.Join(strings.Fields(raw), " ")
	if s == "" {
		return ""
	}
	if canon, ok := serviceSynonyms[strings.ToLower(s)]; ok {
		return canon
	}
	// Casers carry state and are not safe to share across goroutines.
	return cases.Title(language.English).String(s)
}

// Services canonicalizes, de-duplicates and sorts a list of services.
func Services(raw []string) []string {
	set := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		if s := Service(r); s != "" {
			set[s] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
