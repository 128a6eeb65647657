package normalize

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/communityfood/discovery-engine/internal/model"
)

// RawDay is a single day's hours as reported by extraction.
type RawDay struct {
	Open   string `json:"open"`
	Close  string `json:"close"`
	Closed bool   `json:"closed"`
}

// dayAliases maps accepted spellings of a weekday key to its canonical name.
var dayAliases = map[string]string{
	"monday": "monday", "mon": "monday", "mo": "monday",
	"tuesday": "tuesday", "tue": "tuesday", "tues": "tuesday", "tu": "tuesday",
	"wednesday": "wednesday", "wed": "wednesday", "weds": "wednesday", "we": "wednesday",
	"thursday": "thursday", "thu": "thursday", "thur": "thursday", "thurs": "thursday", "th": "thursday",
	"friday": "friday", "fri": "friday", "fr": "friday",
	"saturday": "saturday", "sat": "saturday", "sa": "saturday",
	"sunday": "sunday", "sun": "sunday", "su": "sunday",
}

// CanonicalDay returns the canonical weekday name for key, or "".
func CanonicalDay(key string) string {
	k := strings.ToLower(strings.TrimSpace(key))
	k = strings.TrimSuffix(k, ".")
	return dayAliases[k]
}

var (
	clock24 = regexp.MustCompile(`^([01]?\d|2[0-3]):([0-5]\d)$`)
	clock12 = regexp.MustCompile(`^(1[0-2]|0?[1-9])(?::([0-5]\d))?\s*([ap])\.?\s*m?\.?$`)
)

// Clock parses a time of day into 24-hour HH:MM. It accepts "17:00", "9:00",
// "9:00 AM", "9am", "12 p.m.", "noon" and "midnight".
func Clock(raw string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "":
		return "", false
	case "noon":
		return "12:00", true
	case "midnight":
		return "00:00", true
	}

	if m := clock24.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		return fmt.Sprintf("%02d:%s", h, m[2]), true
	}

	if m := clock12.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		minute := m[2]
		if minute == "" {
			minute = "00"
		}
		switch {
		case m[3] == "a" && h == 12:
			h = 0
		case m[3] == "p" && h != 12:
			h += 12
		}
		return fmt.Sprintf("%02d:%s", h, minute), true
	}
	return "", false
}

// Day normalizes a single day's hours. Closed days become the canonical
// closed value; days whose open or close cannot be parsed become nil.
func Day(raw *RawDay) *model.DayHours {
	if raw == nil {
		return nil
	}
	if raw.Closed {
		return model.ClosedDay()
	}
	open, ok := Clock(raw.Open)
	if !ok {
		return nil
	}
	closeAt, ok := Clock(raw.Close)
	if !ok {
		return nil
	}
	return &model.DayHours{Open: open, Close: closeAt}
}

// Hours normalizes a raw day-keyed map. Unknown keys are ignored. When two
// spellings of the same day are present the first parsable one in key order
// wins. Returns nil when no day survives.
func Hours(raw map[string]*RawDay) *model.WeeklyHours {
	if len(raw) == 0 {
		return nil
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := &model.WeeklyHours{}
	for _, k := range keys {
		day := CanonicalDay(k)
		if day == "" {
			continue
		}
		slot := out.Day(day)
		if *slot != nil {
			continue
		}
		*slot = Day(raw[k])
	}
	if out.IsEmpty() {
		return nil
	}
	return out
}

// WeeklyHours re-normalizes already structured hours.
func WeeklyHours(w *model.WeeklyHours) *model.WeeklyHours {
	if w == nil {
		return nil
	}
	raw := make(map[string]*RawDay, len(model.Weekdays))
	for _, d := range model.Weekdays {
		if h := *w.Day(d); h != nil {
			raw[d] = &RawDay{Open: h.Open, Close: h.Close, Closed: h.Closed}
		}
	}
	return Hours(raw)
}
