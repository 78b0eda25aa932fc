// Package similarity scores how alike two claimant names are.
package similarity

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Default ranking limits for similar-claimant search.
const (
	DefaultMinScore = 60.0
	DefaultLimit    = 20
)

// Ratio returns the edit-distance similarity of a and b as a percentage
// rounded to two decimals. Two empty strings are identical.
func Ratio(a, b string) float64 {
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 100
	}
	dist := levenshtein.ComputeDistance(a, b)
	return round2(float64(total-dist) * 100 / float64(total))
}

// Normalize trims s and collapses internal whitespace runs to one space.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Tokens returns the whitespace-separated words of s.
func Tokens(s string) []string {
	return strings.Fields(s)
}

// Matches reports whether candidate is worth scoring against search: it
// contains the full search name or one of its tokens longer than two
// characters, or the two names share a soundex code.
func Matches(search, candidate string) bool {
	search = strings.ToLower(Normalize(search))
	if search == "" {
		return false
	}
	cand := strings.ToLower(Normalize(candidate))

	if strings.Contains(cand, search) {
		return true
	}
	for _, tok := range Tokens(search) {
		if utf8.RuneCountInString(tok) > 2 && strings.Contains(cand, tok) {
			return true
		}
	}
	return SoundsAlike(search, cand)
}

// Candidate is a name to rank. Key breaks score ties.
type Candidate struct {
	Key  string
	Name string
}

// Match is a ranked candidate.
type Match struct {
	Index int
	Score float64
}

// Rank filters candidates with Matches, scores them with Ratio and returns
// those scoring at least minScore, best first, at most limit of them.
// Index points back into candidates.
func Rank(search string, candidates []Candidate, minScore float64, limit int) []Match {
	search = Normalize(search)
	if search == "" {
		return nil
	}

	var out []Match
	for i, c := range candidates {
		if !Matches(search, c.Name) {
			continue
		}
		score := Ratio(search, Normalize(c.Name))
		if score < minScore {
			continue
		}
		out = append(out, Match{Index: i, Score: score})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return candidates[out[i].Index].Key < candidates[out[j].Index].Key
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
