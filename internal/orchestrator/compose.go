package orchestrator

import (
	"strings"
	"unicode"

	"github.com/kalambet/mentor/internal/agent"
)

// minDedupWords keeps short fragments such as citation parts out of
// deduplication.
const minDedupWords = 4

// compose joins response texts paragraph by paragraph and drops sentences
// that already appeared earlier in the reply.
func compose(responses []agent.Response) string {
	seen := make(map[string]bool)
	var paragraphs []string
	for _, r := range responses {
		for _, p := range strings.Split(r.Text, "\n\n") {
			if kept := dedupParagraph(p, seen); kept != "" {
				paragraphs = append(paragraphs, kept)
			}
		}
	}
	return strings.Join(paragraphs, "\n\n")
}

func dedupParagraph(p string, seen map[string]bool) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	// Lists keep their line structure.
	if strings.Contains(p, "\n- ") || strings.HasPrefix(p, "- ") {
		key := normalizeSentence(p)
		if seen[key] {
			return ""
		}
		seen[key] = true
		return p
	}

	var kept []string
	for _, s := range splitSentences(p) {
		key := normalizeSentence(s)
		if agent.WordCount(s) >= minDedupWords {
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		kept = append(kept, s)
	}
	return strings.Join(kept, " ")
}

// splitSentences splits on terminal punctuation followed by whitespace.
func splitSentences(p string) []string {
	var out []string
	start := 0
	runes := []rune(p)
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

func normalizeSentence(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
