package utils

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ShortenString cuts s to at most l bytes and appends "..." if it was longer.
// The cut never splits a multi-byte rune. A length of 0 disables shortening.
func ShortenString(s string, l int) string {
	if len(s) > l && l != 0 {
		for l > 0 && !utf8.RuneStart(s[l]) {
			l--
		}
		return fmt.Sprintf("%s...", s[:l])
	}
	return s
}

// NormalizeText trims s, collapses inner whitespace and lowercases it so that
// rendered labels can be compared against configured terms.
func NormalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// ContainsAnyFold reports whether s contains any of the non-empty terms,
// ignoring case and whitespace differences. It returns the first matching term.
func ContainsAnyFold(s string, terms ...string) (string, bool) {
	n := NormalizeText(s)
	if n == "" {
		return "", false
	}
	for _, t := range terms {
		nt := NormalizeText(t)
		if nt != "" && strings.Contains(n, nt) {
			return t, true
		}
	}
	return "", false
}
