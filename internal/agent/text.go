package agent

import (
	"strings"
	"unicode"
)

// CountHits returns how many of words occur in text (case-insensitive).
func CountHits(text string, words []string) int {
	lower := strings.ToLower(text)
	n := 0
	for _, w := range words {
		if strings.Contains(lower, w) {
			n++
		}
	}
	return n
}

// ContainsAny reports whether text contains any of words (case-insensitive).
func ContainsAny(text string, words []string) bool {
	return CountHits(text, words) > 0
}

func WordCount(text string) int {
	return len(strings.Fields(text))
}

// topicTerms are architectural concerns recognized as the subject of an utterance.
var topicTerms = []string{
	"circulation", "daylight", "lighting", "acoustics", "ventilation", "structure",
	"materials", "material", "accessibility", "sustainability", "massing", "facade",
	"landscape", "site", "program", "layout", "entrance", "courtyard", "atrium",
	"adaptive reuse", "heritage", "public space", "community", "zoning", "wayfinding",
	"threshold", "scale", "proportion", "context", "climate", "insulation", "timber",
}

// Topic returns the main architectural subject of an utterance, or fallback.
func Topic(utterance, fallback string) string {
	lower := strings.ToLower(utterance)
	for _, t := range topicTerms {
		if strings.Contains(lower, t) {
			return t
		}
	}
	for _, marker := range []string{"about ", "regarding ", "with "} {
		if i := strings.Index(lower, marker); i != -1 {
			rest := strings.Fields(lower[i+len(marker):])
			if len(rest) > 4 {
				rest = rest[:4]
			}
			t := strings.TrimFunc(strings.Join(rest, " "), func(r rune) bool {
				return unicode.IsPunct(r) || unicode.IsSpace(r)
			})
			if t != "" {
				return t
			}
		}
	}
	return fallback
}

// EnsureQuestion makes sure text ends with a question mark.
func EnsureQuestion(text string) string {
	t := strings.TrimSpace(text)
	if strings.HasSuffix(t, "?") {
		return t
	}
	t = strings.TrimRight(t, ".!;: ")
	return t + "?"
}
