// Package text holds the tokenization rule shared by document indexing and query parsing,
// so that index keys and query terms are always comparable.
package text

import "strings"

// MinWordLen is the shortest token kept by Words.
const MinWordLen = 3

// Words lowercases s, splits it on every non ASCII-alphanumeric character
// and drops tokens shorter than MinWordLen.
func Words(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), isSeparator)
	words := fields[:0]
	for _, f := range fields {
		if len(f) >= MinWordLen {
			words = append(words, f)
		}
	}
	return words
}

func isSeparator(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	default:
		return true
	}
}
