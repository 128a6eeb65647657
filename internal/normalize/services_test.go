package normalize

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestService(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Pantry", Service("Food Pantry"))
	assert.Equal(t, "Pantry", Service("  food   pantry "))
	assert.Equal(t, "Hot Meal", Service("SOUP KITCHEN"))
	assert.Equal(t, "SNAP Assistance", Service("CalFresh"))
	assert.Equal(t, "Clothing Closet", Service("clothing closet"))
	assert.Equal(t, "", Service("   "))
}

func TestServices_SortedAndUnique(t *testing.T) {
	t.Parallel()

	got := Services([]string{"soup kitchen", "Food Pantry", "pantry", "Hot Meals", "", "diapers"})
	assert.Equal(t, []string{"Baby Supplies", "Hot Meal", "Pantry"}, got)
}

func TestServices_Idempotent(t *testing.T) {
	t.Parallel()

	inputs := [][]string{
		nil,
		{},
		{"food pantry", "soup kitchen", "food pantry"},
		{"WIC", "wic", "Wic"},
		{"legal aid", "tax prep", "Legal Aid"},
		{"meals on wheels", "home delivery", "mobile food bank", "produce"},
		{"  clothing   closet ", "Clothing Closet"},
	}
	for _, in := range inputs {
		once := Services(in)
		twice := Services(once)
		assert.Equal(t, once, twice)
		assert.True(t, sort.StringsAreSorted(once))

		seen := map[string]bool{}
		for _, s := range once {
			assert.False(t, seen[s], "duplicate %q", s)
			seen[s] = true
		}
	}
}

func TestServiceSynonyms_CanonicalMapsToItself(t *testing.T) {
	t.Parallel()

	for _, canon := range serviceSynonyms {
		assert.Equal(t, canon, Service(canon))
	}
}
