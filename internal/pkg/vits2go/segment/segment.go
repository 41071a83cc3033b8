// Package segment splits input text into sentence-like utterances.
package segment

import (
	"iter"
	"strings"
	"unicode"
)

// Split yields the utterances of text in order. A unit ends at a run of
// whitespace that follows '.', '!', '?' or a newline; the terminal
// punctuation stays with its unit and the run is consumed. A single newline
// between words does not end a unit, a blank line does.
// Units are trimmed and empty units are skipped.
func Split(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		rest := text
		for rest != "" {
			unit, next := cut(rest)
			rest = next
			if unit = strings.TrimSpace(unit); unit == "" {
				continue
			}
			if !yield(unit) {
				return
			}
		}
	}
}

// Sentences collects Split(text).
func Sentences(text string) []string {
	var out []string
	for s := range Split(text) {
		out = append(out, s)
	}
	return out
}

// cut returns the first unit of s and the remainder after the separating
// whitespace run.
func cut(s string) (string, string) {
	var prev rune
	for i, r := range s {
		if unicode.IsSpace(r) && isTerminal(prev) {
			return s[:i], strings.TrimLeftFunc(s[i:], unicode.IsSpace)
		}
		prev = r
	}
	return s, ""
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '\n'
}
