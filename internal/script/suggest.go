package script

import (
	"sort"
	"sync"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// maxSuggestDistance bounds the edit distance of a typo suggestion
const maxSuggestDistance = 2

var (
	namesOnce    sync.Once
	builtinNames []string
)

func sortedBuiltinNames() []string {
	namesOnce.Do(func() {
		table := newBuiltinTable()
		builtinNames = make([]string, 0, len(table))
		for name := range table {
			builtinNames = append(builtinNames, name)
		}
		sort.Strings(builtinNames)
	})
	return builtinNames
}

// BuiltinNames returns every callable function name, sorted
func BuiltinNames() []string {
	names := sortedBuiltinNames()
	out := make([]string, len(names))
	copy(out, names)
	return out
}

// Suggest returns the builtin closest to an unknown function name, or "" when none is close.
// Names the unknown one abbreviates rank first, then small edit distances.
func Suggest(name string) string {
	if name == "" {
		return ""
	}

	names := sortedBuiltinNames()
	ranks := fuzzy.RankFindFold(name, names)
	if len(ranks) > 0 {
		sort.Sort(ranks)
		return ranks[0].Target
	}

	best, bestDistance := "", maxSuggestDistance+1
	for _, candidate := range names {
		if d := fuzzy.LevenshteinDistance(name, candidate); d < bestDistance {
			best, bestDistance = candidate, d
		}
	}
	return best
}

func unknownFunction(c *CallExpr) *UnknownFunctionError {
	pos := c.Pos()
	return &UnknownFunctionError{
		Name:       c.Name,
		Line:       pos.Line,
		Column:     pos.Column,
		Suggestion: Suggest(c.Name),
	}
}
