// Package model defines the core types shared by the discovery engine.
package model

import (
	"strings"
	"time"
	"unicode"
)

// Area is the city/state pair a discovery run targets.
type Area struct {
	City  string `json:"city"`
	State string `json:"state"`
}

// LocationHash returns the stable key used to track discovery runs for an
// area, e.g. "sacramento-ca".
func (a Area) LocationHash() string {
	return slug(a.City) + "-" + slug(a.State)
}

func (a Area) String() string {
	return strings.TrimSpace(a.City) + ", " + strings.TrimSpace(a.State)
}

func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// DayHours is the opening window for a single weekday. Times are 24-hour HH:MM.
type DayHours struct {
	Open   string `json:"open"`
	Close  string `json:"close"`
	Closed bool   `json:"closed,omitempty"`
}

// ClosedDay is the canonical representation of a day the site is closed.
func ClosedDay() *DayHours {
	return &DayHours{Open: "00:00", Close: "00:00", Closed: true}
}

// WeeklyHours holds per-weekday hours. A nil day means the hours are unknown.
type WeeklyHours struct {
	Monday    *DayHours `json:"monday"`
	Tuesday   *DayHours `json:"tuesday"`
	Wednesday *DayHours `json:"wednesday"`
	Thursday  *DayHours `json:"thursday"`
	Friday    *DayHours `json:"friday"`
	Saturday  *DayHours `json:"saturday"`
	Sunday    *DayHours `json:"sunday"`
}

// Weekdays lists canonical day names in week order.
var Weekdays = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// Day returns a pointer to the slot for a canonical day name, or nil.
func (w *WeeklyHours) Day(name string) **DayHours {
	switch name {
	case "monday":
		return &w.Monday
	case "tuesday":
		return &w.Tuesday
	case "wednesday":
		return &w.Wednesday
	case "thursday":
		return &w.Thursday
	case "friday":
		return &w.Friday
	case "saturday":
		return &w.Saturday
	case "sunday":
		return &w.Sunday
	}
	return nil
}

// IsEmpty reports whether no day carries hours.
func (w *WeeklyHours) IsEmpty() bool {
	if w == nil {
		return true
	}
	for _, d := range Weekdays {
		if *w.Day(d) != nil {
			return false
		}
	}
	return true
}

// DiscoveryResult is a candidate resource extracted from one or more documents.
type DiscoveryResult struct {
	Name        string       `json:"name"`
	Address     string       `json:"address"`
	City        string       `json:"city"`
	State       string       `json:"state"`
	Zip         string       `json:"zip"`
	Latitude    float64      `json:"latitude"`
	Longitude   float64      `json:"longitude"`
	Phone       *string      `json:"phone,omitempty"`
	Website     *string      `json:"website,omitempty"`
	Description *string      `json:"description,omitempty"`
	Services    []string     `json:"services"`
	Hours       *WeeklyHours `json:"hours,omitempty"`
	SourceURL   string       `json:"source_url"`
	SourceURLs  []string     `json:"source_urls,omitempty"`
	Confidence  float64      `json:"confidence"`
}

// HasCoordinates reports whether the result has been geocoded.
func (r DiscoveryResult) HasCoordinates() bool {
	return r.Latitude != 0 || r.Longitude != 0
}

// IsComplete reports whether the result satisfies the persistence invariant:
// geocoded, with non-empty name, address, city, state and zip.
func (r DiscoveryResult) IsComplete() bool {
	return r.HasCoordinates() &&
		strings.TrimSpace(r.Name) != "" &&
		strings.TrimSpace(r.Address) != "" &&
		strings.TrimSpace(r.City) != "" &&
		strings.TrimSpace(r.State) != "" &&
		strings.TrimSpace(r.Zip) != ""
}

// ConfirmingSources returns how many distinct sources besides the primary
// one mentioned this resource.
func (r DiscoveryResult) ConfirmingSources() int {
	n := len(r.SourceURLs)
	if n == 0 {
		return 0
	}
	return n - 1
}

// ConfidenceFactors is the point breakdown behind a confidence score.
type ConfidenceFactors struct {
	FieldCompleteness       int `json:"field_completeness"`
	SourceAuthority         int `json:"source_authority"`
	DataFreshness           int `json:"data_freshness"`
	MultiSourceConfirmation int `json:"multi_source_confirmation"`
	Total                   int `json:"total"`
}

// ConfidenceTier buckets a numeric score.
type ConfidenceTier string

const (
	TierHigh   ConfidenceTier = "high"
	TierMedium ConfidenceTier = "medium"
	TierLow    ConfidenceTier = "low"
)

// TierFor maps a 0-1 score onto a tier.
func TierFor(score float64) ConfidenceTier {
	switch {
	case score >= 0.8:
		return TierHigh
	case score >= 0.5:
		return TierMedium
	default:
		return TierLow
	}
}

// ResourceStatus is the publication state of a persisted resource.
type ResourceStatus string

const (
	ResourcePublished     ResourceStatus = "published"
	ResourcePendingReview ResourceStatus = "pending_review"
)

// Resource is the canonical stored inventory record.
type Resource struct {
	ID           string            `json:"id" db:"id"`
	Fingerprint  string            `json:"fingerprint" db:"fingerprint"`
	Result       DiscoveryResult   `json:"result"`
	Confidence   float64           `json:"confidence" db:"confidence"`
	Factors      ConfidenceFactors `json:"factors" db:"factors"`
	Status       ResourceStatus    `json:"status" db:"status"`
	NeedsReview  bool              `json:"needs_review" db:"needs_review"`
	DiscoveredBy string            `json:"discovered_by,omitempty" db:"discovered_by"`
	CreatedAt    time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at" db:"updated_at"`
}

// InventoryRecord is the slim projection of a stored resource used for
// duplicate detection.
type InventoryRecord struct {
	ID        string  `json:"id" db:"id"`
	Name      string  `json:"name" db:"name"`
	Address   string  `json:"address" db:"address"`
	Latitude  float64 `json:"latitude" db:"latitude"`
	Longitude float64 `json:"longitude" db:"longitude"`
}

// BoundingBox is a lat/lng rectangle.
type BoundingBox struct {
	MinLat float64 `json:"min_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLat float64 `json:"max_lat"`
	MaxLng float64 `json:"max_lng"`
}

// BoxAround returns the square box extending delta degrees from a point.
func BoxAround(lat, lng, delta float64) BoundingBox {
	return BoundingBox{
		MinLat: lat - delta,
		MinLng: lng - delta,
		MaxLat: lat + delta,
		MaxLng: lng + delta,
	}
}
