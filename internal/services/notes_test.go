package services_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courtsight/projection-service/internal/services"
)

func TestNormalizeNotes(t *testing.T) {
	assert.Equal(t, "lebron is out tonight", services.NormalizeNotes("  LeBron   is\tOUT\n tonight  "))
	assert.Equal(t, "", services.NormalizeNotes("   \n\t  "))
}

func TestNotesHashStableAcrossFormatting(t *testing.T) {
	a := services.NotesHash("LeBron is OUT tonight")
	b := services.NotesHash("  lebron   is out\ntonight ")
	c := services.NotesHash("lebron is questionable tonight")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestHasRestrictionKeyword(t *testing.T) {
	assert.True(t, services.HasRestrictionKeyword("Murray is on a minutes limit of 24"))
	assert.True(t, services.HasRestrictionKeyword("Davis is QUESTIONABLE with a sore ankle"))
	assert.False(t, services.HasRestrictionKeyword("Both teams at full strength, fast pace expected"))
	assert.False(t, services.HasRestrictionKeyword(""))
}

func TestDetectOut(t *testing.T) {
	tests := []struct {
		name       string
		notes      string
		playerName string
		expected   bool
	}{
		{
			name:       "full name ruled out",
			notes:      "Jordan Smith has been ruled out for tonight's game.",
			playerName: "Jordan Smith",
			expected:   true,
		},
		{
			name:       "last name only",
			notes:      "Smith is out with a hamstring strain.",
			playerName: "Jordan Smith",
			expected:   true,
		},
		{
			name:       "different player in the same notes is untouched",
			notes:      "Jordan Smith has been ruled out for tonight's game.",
			playerName: "Marcus Lee",
			expected:   false,
		},
		{
			name:       "out keyword in another segment does not bleed over",
			notes:      "Smith is out. Lee expected to pick up extra minutes.",
			playerName: "Marcus Lee",
			expected:   false,
		},
		{
			name:       "nameless out mention never zeroes anybody",
			notes:      "starting center is out tonight",
			playerName: "Jordan Smith",
			expected:   false,
		},
		{
			name:       "scratched counts",
			notes:      "Lee was a late scratched from the lineup",
			playerName: "Marcus Lee",
			expected:   true,
		},
		{
			name:       "name mention without an out keyword",
			notes:      "Smith looked great in warmups and should start",
			playerName: "Jordan Smith",
			expected:   false,
		},
		{
			name:       "empty notes",
			notes:      "",
			playerName: "Jordan Smith",
			expected:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, services.DetectOut(tt.notes, tt.playerName))
		})
	}
}

func TestDetectMinutesLimit(t *testing.T) {
	tests := []struct {
		name          string
		notes         string
		playerName    string
		expectedLimit int
		expectedFound bool
	}{
		{
			name:          "minutes limit phrasing",
			notes:         "Jordan Smith is on a minutes limit of 18 in his return.",
			playerName:    "Jordan Smith",
			expectedLimit: 18,
			expectedFound: true,
		},
		{
			name:          "limited to phrasing",
			notes:         "Smith will be limited to 24 minutes tonight.",
			playerName:    "Jordan Smith",
			expectedLimit: 24,
			expectedFound: true,
		},
		{
			name:          "minute restriction phrasing",
			notes:         "Coach confirmed a minute restriction of 20 for Smith",
			playerName:    "Jordan Smith",
			expectedLimit: 20,
			expectedFound: true,
		},
		{
			name:          "limit for a different player is ignored",
			notes:         "Jordan Smith is on a minutes limit of 18.",
			playerName:    "Marcus Lee",
			expectedFound: false,
		},
		{
			name:          "limit in another segment does not attach",
			notes:         "Smith limited to 18 minutes. Lee starting as usual.",
			playerName:    "Marcus Lee",
			expectedFound: false,
		},
		{
			name:          "no limit mentioned",
			notes:         "Smith probable, no restrictions expected",
			playerName:    "Jordan Smith",
			expectedFound: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limit, found := services.DetectMinutesLimit(tt.notes, tt.playerName)
			require.Equal(t, tt.expectedFound, found)
			if found {
				assert.Equal(t, tt.expectedLimit, limit)
			}
		})
	}
}
