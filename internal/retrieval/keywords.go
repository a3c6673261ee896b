package retrieval

import (
	"strings"
	"unicode"
)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "of": {}, "to": {}, "for": {}, "with": {}, "by": {},
	"in": {}, "on": {}, "at": {}, "from": {}, "as": {}, "is": {}, "are": {}, "was": {}, "were": {}, "be": {},
	"been": {}, "it": {}, "this": {}, "that": {}, "these": {}, "those": {}, "we": {}, "our": {}, "you": {},
	"your": {}, "i": {}, "me": {}, "my": {}, "us": {}, "them": {}, "they": {}, "their": {}, "do": {},
	"does": {}, "did": {}, "what": {}, "how": {}, "why": {}, "when": {}, "where": {}, "which": {}, "can": {},
	"could": {}, "should": {}, "would": {}, "may": {}, "might": {}, "will": {}, "shall": {},
}

// Tokenize lowercases and splits text into stopword-filtered terms.
func Tokenize(text string) []string {
	var tokens []string
	for _, token := range strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		clean := strings.ToLower(token)
		if clean == "" {
			continue
		}
		if _, ok := stopwords[clean]; ok {
			continue
		}
		tokens = append(tokens, clean)
	}
	return tokens
}

// KeywordQuery strips stopwords from a query while preserving term order and
// original casing.
func KeywordQuery(query string) string {
	var tokens []string
	for _, token := range strings.Fields(query) {
		clean := strings.ToLower(strings.TrimSpace(token))
		if clean == "" {
			continue
		}
		if _, ok := stopwords[clean]; ok {
			continue
		}
		tokens = append(tokens, token)
	}
	return strings.Join(tokens, " ")
}

// QueryVariants derives up to max alternate phrasings of a query: clause
// splits first, then the stopword-stripped keyword form. Used for targeted
// remediation searches when an initial pass comes up short.
func QueryVariants(query string, max int) []string {
	if max <= 0 {
		return nil
	}
	clean := strings.TrimSpace(query)
	if clean == "" {
		return nil
	}

	seen := make(map[string]struct{})
	var variants []string

	add := func(candidate string) {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			return
		}
		key := strings.ToLower(candidate)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		variants = append(variants, candidate)
	}

	for _, part := range splitQueryParts(clean) {
		add(part)
		if len(variants) >= max {
			return variants[:max]
		}
	}

	add(KeywordQuery(clean))

	if len(variants) > max {
		return variants[:max]
	}
	return variants
}

func splitQueryParts(query string) []string {
	parts := []string{}
	chunks := strings.FieldsFunc(query, func(r rune) bool {
		switch r {
		case ',', ';', '/', '|', ':', '?', '!', '(', ')', '[', ']', '{', '}':
			return true
		default:
			return false
		}
	})

	for _, chunk := range chunks {
		subParts := strings.Split(chunk, " and ")
		for _, sub := range subParts {
			sub = strings.TrimSpace(sub)
			if sub != "" {
				parts = append(parts, sub)
			}
		}
	}

	return parts
}
