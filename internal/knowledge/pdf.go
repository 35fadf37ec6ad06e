package knowledge

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Document is the raw text and metadata of one source file, page by page.
type Document struct {
	Title  string
	Author string
	Year   string
	Pages  []string
}

// Extractor reads a document from disk.
type Extractor interface {
	Extract(path string) (Document, error)
}

// PDFExtractor extracts plain text from PDFs page by page.
type PDFExtractor struct{}

var yearPattern = regexp.MustCompile(`(19|20)\d{2}`)

func (PDFExtractor) Extract(path string) (Document, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return Document{}, fmt.Errorf("opening pdf %s: %w", path, err)
	}
	defer f.Close()

	doc := Document{}
	info := r.Trailer().Key("Info")
	if !info.IsNull() {
		doc.Title = strings.TrimSpace(info.Key("Title").Text())
		doc.Author = strings.TrimSpace(info.Key("Author").Text())
		if m := yearPattern.FindString(info.Key("CreationDate").Text()); m != "" {
			doc.Year = m
		}
	}
	if doc.Title == "" {
		doc.Title = titleFromPath(path)
	}

	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			doc.Pages = append(doc.Pages, "")
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			// One unreadable page should not sink the document.
			doc.Pages = append(doc.Pages, "")
			continue
		}
		doc.Pages = append(doc.Pages, text)
	}
	return doc, nil
}

func titleFromPath(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	return strings.Join(strings.Fields(base), " ")
}
