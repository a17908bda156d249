package tfidf

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Tokenize lowercases text and splits it on runs of whitespace.
// Punctuation is kept, nothing is stemmed and empty tokens are dropped.
//
// Go maps have no reserved keys, so every token (including words such as
// "constructor") is stored and looked up verbatim.
func Tokenize(text string) []string {
	// A Caser keeps state between calls and must not be shared.
	lower := cases.Lower(language.Und).String(text)
	return strings.FieldsFunc(lower, isSpace)
}

// isSpace reports whether r belongs to the ECMAScript \s class. Unlike
// unicode.IsSpace it excludes U+0085 and includes U+FEFF.
func isSpace(r rune) bool {
	switch r {
	case '\t', '\n', '\v', '\f', '\r', ' ',
		'\u00a0', '\u1680', '\u2028', '\u2029', '\u202f', '\u205f', '\u3000', '\ufeff':
		return true
	}
	return r >= '\u2000' && r <= '\u200a'
}
