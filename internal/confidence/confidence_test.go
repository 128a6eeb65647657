package confidence

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/communityfood/discovery-engine/internal/model"
)

func strPtr(s string) *string { return &s }

func full(source string) model.DiscoveryResult {
	return model.DiscoveryResult{
		Name:        "River City Food Bank",
		Phone:       strPtr("+19164431234"),
		Website:     strPtr("https://rivercityfood.org"),
		Description: strPtr("Emergency groceries"),
		Services:    []string{"Pantry"},
		Hours:       &model.WeeklyHours{Monday: &model.DayHours{Open: "09:00", Close: "17:00"}},
		SourceURL:   source,
	}
}

func TestScore_FactorsSumToTotal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		r       model.DiscoveryResult
		opts    Options
		factors model.ConfidenceFactors
	}{
		{
			name:    "bare record no source",
			r:       model.DiscoveryResult{Name: "x"},
			factors: model.ConfidenceFactors{DataFreshness: 10, Total: 10},
		},
		{
			name:    "phone only other source",
			r:       model.DiscoveryResult{Phone: strPtr("+19164431234"), SourceURL: "https://yelp.com/x"},
			factors: model.ConfidenceFactors{FieldCompleteness: 8, SourceAuthority: 5, DataFreshness: 10, Total: 23},
		},
		{
			name:    "edu with services and one confirmation",
			r:       model.DiscoveryResult{Services: []string{"Pantry"}, SourceURL: "https://csus.edu/basic-needs"},
			opts:    Options{ConfirmingSources: 1},
			factors: model.ConfidenceFactors{FieldCompleteness: 6, SourceAuthority: 10, DataFreshness: 10, MultiSourceConfirmation: 10, Total: 36},
		},
		{
			name:    "org with hours and description two confirmations",
			r:       model.DiscoveryResult{Hours: &model.WeeklyHours{Friday: model.ClosedDay()}, Description: strPtr("d"), SourceURL: "https://church.org"},
			opts:    Options{ConfirmingSources: 2},
			factors: model.ConfidenceFactors{FieldCompleteness: 18, SourceAuthority: 15, DataFreshness: 10, MultiSourceConfirmation: 15, Total: 58},
		},
		{
			name:    "allow-listed full record",
			r:       full("https://www.feedingamerica.org/find"),
			opts:    Options{ConfirmingSources: 1},
			factors: model.ConfidenceFactors{FieldCompleteness: 40, SourceAuthority: 25, DataFreshness: 10, MultiSourceConfirmation: 10, Total: 85},
		},
		{
			name:    "gov full record three confirmations",
			r:       full("https://saccounty.gov/food"),
			opts:    Options{ConfirmingSources: 5},
			factors: model.ConfidenceFactors{FieldCompleteness: 40, SourceAuthority: 30, DataFreshness: 10, MultiSourceConfirmation: 20, Total: 100},
		},
		{
			name:    "extended freshness caps confirmation",
			r:       full("https://saccounty.gov/food"),
			opts:    Options{ConfirmingSources: 3, FreshnessMax: ExtendedFreshness},
			factors: model.ConfidenceFactors{FieldCompleteness: 40, SourceAuthority: 30, DataFreshness: 20, MultiSourceConfirmation: 10, Total: 100},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			score, f := Score(tt.r, tt.opts)
			assert.Equal(t, tt.factors, f)
			assert.Equal(t, f.FieldCompleteness+f.SourceAuthority+f.DataFreshness+f.MultiSourceConfirmation, f.Total)
			assert.Equal(t, float64(f.Total)/100, score)
		})
	}
}

func TestScore_BlankOptionalFieldsEarnNothing(t *testing.T) {
	t.Parallel()

	r := model.DiscoveryResult{Phone: strPtr(" "), Website: strPtr(""), Hours: &model.WeeklyHours{}}
	_, f := Score(r, Options{})
	assert.Equal(t, 0, f.FieldCompleteness)
}

func TestSourceAuthority(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 30, SourceAuthority("https://www.usda.gov"))
	assert.Equal(t, 30, SourceAuthority("https://fns.usda.gov/snap"))
	assert.Equal(t, 25, SourceAuthority("https://211.org"))
	assert.Equal(t, 15, SourceAuthority("https://ampleharvest.org"))
	assert.Equal(t, 10, SourceAuthority("https://ucdavis.edu"))
	assert.Equal(t, 5, SourceAuthority("https://news.example.com"))
	assert.Equal(t, 0, SourceAuthority(""))
}

func TestShouldAutoApprove(t *testing.T) {
	t.Parallel()

	assert.True(t, ShouldAutoApprove(0.9, "https://saccounty.gov", false))
	assert.True(t, ShouldAutoApprove(1.0, "https://feedingamerica.org/x", false))
	assert.False(t, ShouldAutoApprove(0.89, "https://saccounty.gov", false))
	assert.False(t, ShouldAutoApprove(0.95, "https://saccounty.gov", true))
	assert.False(t, ShouldAutoApprove(0.95, "https://localchurch.org", false))
	assert.False(t, ShouldAutoApprove(0.95, "", false))
}

func TestTierFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, model.TierHigh, model.TierFor(0.8))
	assert.Equal(t, model.TierMedium, model.TierFor(0.5))
	assert.Equal(t, model.TierLow, model.TierFor(0.49))
}
