package source

import (
	"strings"
)

// AliasGenerator builds alternative tickers for a symbol that returned no data.
type AliasGenerator struct {
	table    map[string]string
	suffixes []string
	max      int
}

// NewAliasGenerator creates a generator from a table of equivalent tickers,
// a list of suffixes to strip and a cap on the number of candidates.
func NewAliasGenerator(table map[string]string, suffixes []string, max int) *AliasGenerator {
	normalized := make(map[string]string, len(table)*2)
	for from, to := range table {
		from = strings.ToUpper(strings.TrimSpace(from))
		to = strings.ToUpper(strings.TrimSpace(to))
		if from == "" || to == "" {
			continue
		}
		normalized[from] = to
		if _, exists := normalized[to]; !exists {
			normalized[to] = from
		}
	}
	upper := make([]string, 0, len(suffixes))
	for _, s := range suffixes {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			upper = append(upper, s)
		}
	}
	return &AliasGenerator{table: normalized, suffixes: upper, max: max}
}

// Candidates returns at most max aliases of symbol, in this order: the table
// entry, the '.'/'-' separator swap, then suffix-stripped forms. The symbol
// itself and duplicates are never returned.
func (g *AliasGenerator) Candidates(symbol string) []string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" || g.max <= 0 {
		return nil
	}

	seen := map[string]bool{symbol: true}
	var out []string
	add := func(alias string) {
		if alias == "" || seen[alias] || len(out) >= g.max {
			return
		}
		seen[alias] = true
		out = append(out, alias)
	}

	if alias, ok := g.table[symbol]; ok {
		add(alias)
	}

	if strings.Contains(symbol, ".") {
		add(strings.ReplaceAll(symbol, ".", "-"))
	}
	if strings.Contains(symbol, "-") {
		add(strings.ReplaceAll(symbol, "-", "."))
	}

	for _, suffix := range g.suffixes {
		if strings.HasSuffix(symbol, suffix) && len(symbol) > len(suffix) {
			add(strings.TrimSuffix(symbol, suffix))
		}
	}

	return out
}
