package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAliasGenerator_Candidates(t *testing.T) {
	table := map[string]string{"BRK.B": "BRK-B", "GOOGL": "GOOG"}
	suffixes := []string{".US", ".O", ".N", ".OQ"}

	tests := []struct {
		name     string
		symbol   string
		max      int
		expected []string
	}{
		{
			name:     "table entry wins over separator swap",
			symbol:   "BRK.B",
			max:      3,
			expected: []string{"BRK-B"},
		},
		{
			name:     "reverse table lookup",
			symbol:   "GOOG",
			max:      3,
			expected: []string{"GOOGL"},
		},
		{
			name:     "dash becomes dot",
			symbol:   "RDS-A",
			max:      3,
			expected: []string{"RDS.A"},
		},
		{
			name:     "suffix stripped after separator swap",
			symbol:   "vod.us",
			max:      3,
			expected: []string{"VOD-US", "VOD"},
		},
		{
			name:     "capped",
			symbol:   "VOD.US",
			max:      1,
			expected: []string{"VOD-US"},
		},
		{
			name:     "plain symbol has none",
			symbol:   "AAPL",
			max:      3,
			expected: nil,
		},
		{
			name:     "disabled",
			symbol:   "BRK.B",
			max:      0,
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewAliasGenerator(table, suffixes, tt.max)
			assert.Equal(t, tt.expected, g.Candidates(tt.symbol))
		})
	}
}

func TestAliasGenerator_NeverReturnsSymbol(t *testing.T) {
	g := NewAliasGenerator(map[string]string{"X": "X"}, []string{".US"}, 3)
	assert.NotContains(t, g.Candidates("X"), "X")
	assert.Empty(t, g.Candidates(""))
}
