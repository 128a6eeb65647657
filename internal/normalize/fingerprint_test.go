package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/communityfood/discovery-engine/internal/model"
)

func TestAddressFingerprint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"suffix and direction", "123 North Main Street", "123nmainst"},
		{"already abbreviated", "123 N. Main St.", "123nmainst"},
		{"suite", "500 W Capitol Avenue, Suite 4", "500wcapitolaveste4"},
		{"case and punctuation", "  9 EAST-WEST Boulevard  ", "9ewblvd"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, AddressFingerprint(tt.in))
		})
	}
}

func TestAddressFingerprint_EquivalentSpellings(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		AddressFingerprint("3333 Third Avenue South"),
		AddressFingerprint("3333 third ave. s"),
	)
}

func TestNameFingerprint(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "rivercityfoodbank", NameFingerprint("River City Food Bank"))
	assert.Equal(t, "stmaryspantry", NameFingerprint("St. Mary's Pantry!"))
}

func TestTombstoneKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "123 main st", TombstoneKey("  123 MAIN St "))
	assert.Equal(t, "123 main st", TombstoneKey("123  Main\tSt"))
	assert.Equal(t, TombstoneKey("123  Main St"), TombstoneKey(Resource(model.DiscoveryResult{Address: "123  Main St"}).Address))
}

func TestIsTrustedSource(t *testing.T) {
	t.Parallel()

	trusted := []string{
		"https://www.feedingamerica.org/find-your-local-foodbank",
		"https://fns.usda.gov/snap",
		"http://saccounty.gov/food",
		"https://sacramento.211.org",
		"ampleharvest.org/find-pantry",
		"https://www.localchurch.org",
	}
	for _, u := range trusted {
		assert.True(t, IsTrustedSource(u), u)
	}

	untrusted := []string{
		"",
		"https://yelp.com/biz/food",
		"https://example.com/gov",
		"https://university.edu",
		"://bad",
	}
	for _, u := range untrusted {
		assert.False(t, IsTrustedSource(u), u)
	}
}

func TestHostname(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "feedingamerica.org", Hostname("https://WWW.FeedingAmerica.org/path"))
	assert.Equal(t, "example.com", Hostname("example.com/x"))
	assert.Equal(t, "", Hostname("  "))
}
