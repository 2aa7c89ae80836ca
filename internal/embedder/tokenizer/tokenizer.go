// Package tokenizer turns text into normalised terms for the hashing
// embedder. It lower-cases input, splits on non-alphanumeric boundaries,
// removes stop-words, and applies a simple suffix-based stemmer.
package tokenizer

import (
	"strings"
	"unicode"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "does": {}, "did": {}, "so": {}, "can": {}, "how": {},
	"le": {}, "la": {}, "les": {}, "de": {}, "des": {}, "du": {},
	"un": {}, "une": {}, "et": {}, "est": {}, "en": {}, "pour": {},
}

// suffixRule strips suffix and appends replacement when the stem stays at
// least minLen bytes long. Order matters: longest suffixes first.
type suffixRule struct {
	suffix      string
	replacement string
	minLen      int
}

var suffixRules = []suffixRule{
	{"ational", "ate", 2},
	{"tional", "tion", 2},
	{"encies", "ence", 2},
	{"ances", "ance", 2},
	{"ments", "ment", 2},
	{"izing", "ize", 2},
	{"ating", "ate", 2},
	{"iness", "y", 2},
	{"ously", "ous", 2},
	{"ively", "ive", 2},
	{"tion", "t", 3},
	{"sion", "s", 3},
	{"ying", "y", 2},
	{"ies", "y", 2},
	{"ing", "", 3},
	{"ers", "er", 2},
	{"ful", "", 3},
	{"ed", "", 3},
	{"er", "", 3},
	{"ly", "", 3},
	{"es", "", 3},
	{"ss", "ss", 2},
	{"s", "", 3},
}

// Terms breaks text into stemmed, lower-cased terms with stop-words and
// single-character tokens removed. The result preserves input order and
// may contain repeats.
func Terms(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make([]string, 0, len(words))
	for _, word := range words {
		if len([]rune(word)) < 2 {
			continue
		}
		if _, isStop := stopWords[word]; isStop {
			continue
		}
		if stemmed := Stem(word); stemmed != "" {
			terms = append(terms, stemmed)
		}
	}
	return terms
}

// Stem applies the first matching suffix rule to word.
func Stem(word string) string {
	for _, rule := range suffixRules {
		if strings.HasSuffix(word, rule.suffix) {
			newWord := word[:len(word)-len(rule.suffix)] + rule.replacement
			if len(newWord) >= rule.minLen {
				return newWord
			}
		}
	}
	return word
}
