package engine

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold normalizes a string for comparison under the given match flags:
// diacritic-insensitive folding decomposes and strips combining marks,
// case-insensitive folding lowercases.
func Fold(s string, flags MatchFlags) string {
	if flags&DiacriticInsensitive != 0 {
		if out, _, err := transform.String(stripMarks, s); err == nil {
			s = out
		}
	}
	if flags&CaseInsensitive != 0 {
		s = strings.ToLower(s)
	}
	return s
}
