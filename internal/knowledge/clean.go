package knowledge

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// mojibake maps common UTF-8-read-as-Latin-1 sequences back to their intent.
var mojibake = strings.NewReplacer(
	"â€™", "'",
	"â€˜", "'",
	"â€œ", `"`,
	"â€\x9d", `"`,
	"â€“", "-",
	"â€”", "-",
	"â€¦", "...",
	"Ã©", "é",
	"Ã¨", "è",
	"Ã¶", "ö",
	"Ã¼", "ü",
	"Ã¤", "ä",
	"Ã¥", "å",
	"Ã¸", "ø",
	"Â\u00a0", " ",
	"\u00a0", " ",
	"ﬁ", "fi",
	"ﬂ", "fl",
)

var (
	horizontalSpace = regexp.MustCompile(`[ \t\f\v]+`)
	manyNewlines    = regexp.MustCompile(`\n{3,}`)
	hyphenBreak     = regexp.MustCompile(`(\w)-\n(\w)`)
	pageMarker      = regexp.MustCompile(`\[\[page (\d+)\]\]`)
)

// PageMarker renders the marker the chunker uses to attribute text to pages.
func PageMarker(n int) string {
	return fmt.Sprintf("[[page %d]]", n)
}

// Clean normalizes extracted text: NFC normalization, mojibake repair,
// de-hyphenated line breaks and collapsed whitespace. Page markers survive.
func Clean(text string) string {
	s := norm.NFC.String(text)
	s = mojibake.Replace(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = hyphenBreak.ReplaceAllString(s, "$1$2")
	s = horizontalSpace.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	s = strings.Join(lines, "\n")
	s = manyNewlines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// JoinPages cleans each page and concatenates them behind page markers.
func JoinPages(pages []string) string {
	var sb strings.Builder
	for i, p := range pages {
		cleaned := Clean(p)
		if cleaned == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(PageMarker(i + 1))
		sb.WriteString("\n")
		sb.WriteString(cleaned)
	}
	return sb.String()
}

func parsePageMarker(s string) (int, bool) {
	m := pageMarker.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	return n, err == nil
}
