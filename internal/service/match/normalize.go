// Package match scores spoken transcripts against expected statements.
//
// It provides text normalization, a bounded similarity score that blends
// word overlap with character edit distance, a threshold validator that
// produces a verdict, and a tracker that reports which statement words have
// been spoken so far for live highlighting.
package match

import "strings"

// stripped is the punctuation removed before comparison. Runes outside this
// set (including Telugu combining marks) are kept as-is.
const stripped = ".,/#!$%^&*;:{}=-_`~()"

// Normalize lowercases text, removes punctuation and collapses whitespace.
// Empty input yields an empty string.
func Normalize(text string) string {
	cleaned := strings.Map(func(r rune) rune {
		if strings.ContainsRune(stripped, r) {
			return -1
		}
		return r
	}, strings.ToLower(text))
	return strings.Join(strings.Fields(cleaned), " ")
}

// Words returns the normalized tokens of text.
func Words(text string) []string {
	return strings.Fields(Normalize(text))
}
