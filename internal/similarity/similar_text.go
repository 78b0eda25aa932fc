package similarity

import "strings"

// SimilarText returns the number of characters a and b have in common,
// counted by repeatedly taking the longest common substring and recursing
// into the pieces left and right of it.
func SimilarText(a, b string) int {
	return similarRunes([]rune(a), []rune(b))
}

// SimilarTextPercent returns SimilarText as a percentage of the combined
// length, sim*2*100/(len(a)+len(b)).
func SimilarTextPercent(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 0
	}
	return float64(similarRunes(ra, rb)) * 2 * 100 / float64(total)
}

// NamePercent compares two claimant names case-insensitively after trimming.
func NamePercent(a, b string) float64 {
	return SimilarTextPercent(strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b)))
}

func similarRunes(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	var best, posA, posB int
	for i := range a {
		for j := range b {
			k := 0
			for i+k < len(a) && j+k < len(b) && a[i+k] == b[j+k] {
				k++
			}
			if k > best {
				best, posA, posB = k, i, j
			}
		}
	}
	if best == 0 {
		return 0
	}

	return best +
		similarRunes(a[:posA], b[:posB]) +
		similarRunes(a[posA+best:], b[posB+best:])
}
