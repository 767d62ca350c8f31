package search

import (
	"strings"
	"unicode"
)

// Stop words to filter out when checking for verbatim matches
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true, "or": true, "what": true, "which": true, "how": true,
}

// tokenizeAndFilter splits text into lowercase words without surrounding
// punctuation and drops stop words.
func tokenizeAndFilter(text string) []string {
	words := strings.Fields(text)
	filtered := make([]string, 0, len(words))
	for _, word := range words {
		cleaned := strings.ToLower(strings.TrimFunc(word, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		}))
		if cleaned != "" && !stopWords[cleaned] {
			filtered = append(filtered, cleaned)
		}
	}
	return filtered
}

// containsAllQueryWords reports whether every filtered query word occurs in content.
func containsAllQueryWords(content, query string) bool {
	queryWords := tokenizeAndFilter(query)
	if len(queryWords) == 0 {
		return false
	}

	contentWords := make(map[string]bool)
	for _, word := range tokenizeAndFilter(content) {
		contentWords[word] = true
	}
	for _, word := range queryWords {
		if !contentWords[word] {
			return false
		}
	}
	return true
}
