package similarity

import "strings"

var soundexCodes = map[rune]byte{
	'B': '1', 'F': '1', 'P': '1', 'V': '1',
	'C': '2', 'G': '2', 'J': '2', 'K': '2', 'Q': '2', 'S': '2', 'X': '2', 'Z': '2',
	'D': '3', 'T': '3',
	'L': '4',
	'M': '5', 'N': '5',
	'R': '6',
}

// Soundex returns the four-character American soundex code of the letters
// in s, or "" when s has none. H and W do not separate equal codes; vowels do.
func Soundex(s string) string {
	var letters []rune
	for _, r := range strings.ToUpper(s) {
		if r >= 'A' && r <= 'Z' {
			letters = append(letters, r)
		}
	}
	if len(letters) == 0 {
		return ""
	}

	code := []byte{byte(letters[0])}
	prev := soundexCodes[letters[0]]

	for _, r := range letters[1:] {
		if len(code) == 4 {
			break
		}
		if r == 'H' || r == 'W' {
			continue
		}
		c, ok := soundexCodes[r]
		if !ok {
			prev = 0
			continue
		}
		if c != prev {
			code = append(code, c)
		}
		prev = c
	}

	for len(code) < 4 {
		code = append(code, '0')
	}
	return string(code)
}

// SoundsAlike reports whether a and b have the same non-empty soundex code.
func SoundsAlike(a, b string) bool {
	ca := Soundex(a)
	return ca != "" && ca == Soundex(b)
}

