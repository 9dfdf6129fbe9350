// Package textutil holds the tokenizer shared by lexical scoring, the local
// hash embedder and narrative extraction.
package textutil

import (
	"strings"
	"unicode"
)

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "between": true, "but": true, "by": true, "for": true,
	"from": true, "had": true, "has": true, "have": true, "he": true,
	"her": true, "his": true, "in": true, "into": true, "is": true, "it": true,
	"its": true, "of": true, "on": true, "or": true, "she": true, "that": true,
	"the": true, "their": true, "then": true, "there": true, "they": true,
	"this": true, "to": true, "was": true, "were": true, "with": true,
	"you": true, "your": true, "we": true, "our": true, "i": true, "me": true,
	"my": true, "location": true, "participants": true, "recent": true,
	"actions": true, "outcome": true,
}

// Tokens lowercases text and splits it on anything that is not a letter,
// digit or apostrophe.
func Tokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// Terms returns the non-stopword tokens of text of at least three
// characters, repeats included.
func Terms(text string) []string {
	var out []string
	for _, tok := range Tokens(text) {
		tok = strings.Trim(tok, "'")
		if len(tok) < 3 || stopwords[tok] {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// Keywords returns the distinct Terms of text in first-seen order.
func Keywords(text string) []string {
	seen := map[string]bool{}
	var out []string
	for _, tok := range Terms(text) {
		if seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

// Overlap counts keywords of a that also occur in b.
func Overlap(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(b))
	for _, w := range b {
		set[w] = true
	}
	n := 0
	for _, w := range a {
		if set[w] {
			n++
		}
	}
	return n
}

// EqualFold reports whether two names match ignoring case and outer spaces.
func EqualFold(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	return a != "" && strings.EqualFold(a, b)
}
