// Package fts implements the shared tokenization policy spec section
// 9 requires for tsquery construction: lowercase, strip non-word
// characters to spaces, drop tokens of length <= 2, AND-join. Every
// caller that builds or matches a query (search_chunks, ACB provenance)
// uses this package so the two never drift apart.
package fts

import "strings"

// Tokenize lowercases text, treats runs of non-word characters as
// separators, and drops tokens of length <= 2.
func Tokenize(text string) []string {
	lower := strings.ToLower(text)
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		isWord := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_'
		return !isWord
	})

	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) > 2 {
			out = append(out, f)
		}
	}
	return out
}

// MatchesAll reports whether every token in query appears as a substring
// of text (case-insensitive); this is the AND-join semantics of the
// tsquery policy evaluated directly against effective_text.
func MatchesAll(text string, queryTokens []string) bool {
	if len(queryTokens) == 0 {
		return true
	}
	lower := strings.ToLower(text)
	for _, tok := range queryTokens {
		if !strings.Contains(lower, tok) {
			return false
		}
	}
	return true
}
