package knowledge

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	defaultChunkSize    = 800
	defaultChunkOverlap = 100
	minChunkLength      = 50
)

// Chunker splits cleaned text into sentence-bounded windows.
type Chunker struct {
	Size    int
	Overlap int
}

// TextChunk is a window of text and the pages it spans.
type TextChunk struct {
	Text  string
	Pages []int
}

type sentence struct {
	text string
	page int
}

// Split chunks text that may contain page markers. Windows never exceed Size
// unless a single sentence does, consecutive windows share up to Overlap
// characters of trailing sentences, and windows shorter than 50 characters
// are dropped.
func (c Chunker) Split(text string) []TextChunk {
	size := c.Size
	if size <= 0 {
		size = defaultChunkSize
	}
	overlap := c.Overlap
	if overlap < 0 || overlap >= size {
		overlap = defaultChunkOverlap
	}

	sentences := splitSentences(text, size)
	var out []TextChunk
	var window []sentence
	windowLen := 0
	fresh := 0 // sentences in window not carried over from the previous chunk

	flush := func() {
		if fresh == 0 {
			return
		}
		parts := make([]string, len(window))
		pageSet := make(map[int]bool)
		for i, s := range window {
			parts[i] = s.text
			if s.page > 0 {
				pageSet[s.page] = true
			}
		}
		joined := strings.Join(parts, " ")
		if len(joined) >= minChunkLength {
			pages := make([]int, 0, len(pageSet))
			for p := range pageSet {
				pages = append(pages, p)
			}
			sort.Ints(pages)
			out = append(out, TextChunk{Text: joined, Pages: pages})
		}

		// Carry trailing sentences into the next window as overlap.
		var carry []sentence
		carried := 0
		for i := len(window) - 1; i >= 0; i-- {
			l := len(window[i].text) + 1
			if carried+l > overlap {
				break
			}
			carry = append([]sentence{window[i]}, carry...)
			carried += l
		}
		window = carry
		windowLen = carried
		fresh = 0
	}

	for _, s := range sentences {
		l := len(s.text) + 1
		if windowLen+l > size && fresh > 0 {
			flush()
		}
		if windowLen+l > size {
			// Overlap alone would push this sentence past the limit.
			window, windowLen = nil, 0
		}
		window = append(window, s)
		windowLen += l
		fresh++
	}
	flush()
	return out
}

// splitSentences breaks text at . ! ? and newlines, tracking the current page
// from markers. Sentences longer than max are split at word boundaries.
func splitSentences(text string, max int) []sentence {
	var out []sentence
	page := 0
	emit := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		for len(s) > max {
			cut := strings.LastIndexFunc(s[:max], unicode.IsSpace)
			if cut <= 0 {
				cut = runeBoundary(s, max)
			}
			out = append(out, sentence{text: strings.TrimSpace(s[:cut]), page: page})
			s = strings.TrimSpace(s[cut:])
		}
		if s != "" {
			out = append(out, sentence{text: s, page: page})
		}
	}

	for _, line := range strings.Split(text, "\n") {
		if n, ok := parsePageMarker(strings.TrimSpace(line)); ok {
			page = n
			continue
		}
		start := 0
		for i := 0; i < len(line); i++ {
			switch line[i] {
			case '.', '!', '?':
				if i+1 == len(line) || line[i+1] == ' ' {
					emit(line[start : i+1])
					start = i + 1
				}
			}
		}
		emit(line[start:])
	}
	return out
}

// runeBoundary returns the largest rune boundary in s at or below n, and at
// least the end of the first rune.
func runeBoundary(s string, n int) int {
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if cut == 0 {
		_, size := utf8.DecodeRuneInString(s)
		cut = size
	}
	return cut
}
