// Package textnorm folds free text for comparisons that must ignore case,
// accents and spacing ("Développeur  Go" and "developpeur go" are equal).
package textnorm

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases s, strips diacritics and collapses whitespace.
func Fold(s string) string {
	// Transformers and casers keep state, so they are built per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(cases.Fold().String(out)), " ")
}

// ContainsTerm reports whether the folded haystack contains term as a whole word
// or phrase. Both arguments must already be folded.
func ContainsTerm(haystack, term string) bool {
	if term == "" {
		return false
	}
	for start := 0; start <= len(haystack)-len(term); {
		idx := strings.Index(haystack[start:], term)
		if idx < 0 {
			return false
		}
		idx += start
		if boundaryBefore(haystack, idx) && boundaryAfter(haystack, idx+len(term)) {
			return true
		}
		start = idx + 1
	}
	return false
}

// ContainsAny reports whether the folded haystack contains any of the terms.
func ContainsAny(haystack string, terms ...string) bool {
	for _, term := range terms {
		if ContainsTerm(haystack, term) {
			return true
		}
	}
	return false
}

func boundaryBefore(s string, i int) bool {
	if i <= 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !isWordRune(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !isWordRune(r)
}

// isWordRune treats '+' and '#' as word characters so "c" does not match inside "c++".
func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '+' || r == '#'
}
