package intent

import (
	"strings"
	"unicode"

	"github.com/mkoval/hybridrag/internal/engine"
)

const systemPrompt = `You are a keyword extraction engine. Analyze the user's query. Your output must be ONLY a single valid JSON object that conforms to the provided schema. Do not include any other text, prose, or markdown.

Rules:
- Extract the search terms a person would use to find relevant passages in technical documentation.
- Extract all named entities (people, projects, technologies, concepts) separately.
- Keep each keyword short, one to three words.
- Do not invent terms that are not implied by the query.`

// BuildPrompt constructs the chat messages for keyword extraction.
func BuildPrompt(query string) []engine.Message {
	return []engine.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: query},
	}
}

// stopwords that make useless graph anchors.
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "that": {}, "this": {}, "with": {},
	"what": {}, "when": {}, "where": {}, "which": {}, "how": {}, "why": {},
	"who": {}, "does": {}, "can": {}, "are": {}, "was": {}, "were": {},
	"about": {}, "from": {}, "into": {}, "have": {}, "has": {}, "you": {},
	"your": {}, "any": {}, "not": {}, "its": {}, "their": {},
}

// heuristicKeywords tokenizes the query into lowercase words, dropping
// stopwords and anything shorter than three characters. Used when the LLM is
// unavailable or returns garbage.
func heuristicKeywords(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(fields))
	var keywords []string
	for _, w := range fields {
		if len(w) < 3 {
			continue
		}
		if _, ok := stopwords[w]; ok {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		keywords = append(keywords, w)
	}
	return keywords
}
