package knowledge

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/kalambet/mentor/internal/llm"
)

// Options configure a Store. Zero values fall back to defaults.
type Options struct {
	// Dir receives citations.json. Empty disables the export.
	Dir           string
	ChunkSize     int
	ChunkOverlap  int
	MinSimilarity float64
}

// Store is the knowledge base: it owns the persisted chunks exclusively.
// Reads may run concurrently; ingestion and clearing are serialized.
type Store struct {
	chunks    *ChunkStore
	embedder  *Embedder
	extractor Extractor
	chunker   Chunker
	dir       string
	minSim    float64

	ingestMu sync.Mutex
}

// NewStore creates a Store over db. extractor may be nil to use PDFExtractor.
func NewStore(db *sql.DB, embedder llm.Embedder, extractor Extractor, opts Options) *Store {
	if extractor == nil {
		extractor = PDFExtractor{}
	}
	minSim := opts.MinSimilarity
	if minSim <= 0 {
		minSim = 0.3
	}
	return &Store{
		chunks:    NewChunkStore(db),
		embedder:  NewEmbedder(embedder),
		extractor: extractor,
		chunker:   Chunker{Size: opts.ChunkSize, Overlap: opts.ChunkOverlap},
		dir:       opts.Dir,
		minSim:    minSim,
	}
}

// MinSimilarity is the default similarity floor for Search.
func (s *Store) MinSimilarity() float64 {
	return s.minSim
}

// Ingest extracts, cleans, chunks, embeds and persists one document.
// Re-ingesting the same document adds nothing: chunk ids derive from the
// title and chunk index.
func (s *Store) Ingest(ctx context.Context, path string, ov Overrides) (IngestResult, error) {
	s.ingestMu.Lock()
	defer s.ingestMu.Unlock()

	doc, err := s.extractor.Extract(path)
	if err != nil {
		return IngestResult{}, fmt.Errorf("extracting %s: %w", path, err)
	}
	applyOverrides(&doc, ov)
	sourceType := ov.SourceType
	if sourceType == "" {
		sourceType = "pdf"
	}

	text := JoinPages(doc.Pages)
	windows := s.chunker.Split(text)
	cit := Citation{
		Key:        citationKey(doc.Title, doc.Author, doc.Year),
		Title:      doc.Title,
		Author:     doc.Author,
		Year:       doc.Year,
		SourcePath: path,
		SourceType: sourceType,
		PageCount:  len(doc.Pages),
		CreatedAt:  time.Now().UTC(),
	}
	res := IngestResult{Path: path, Title: doc.Title, CitationKey: cit.Key, Total: len(windows)}
	if len(windows) == 0 {
		slog.Warn("knowledge: no text extracted", "path", path)
		return res, nil
	}

	chunks := make([]Chunk, len(windows))
	ids := make([]string, len(windows))
	for i, w := range windows {
		tags := DetectTags(w.Text)
		chunks[i] = Chunk{
			ID:              ChunkID(doc.Title, i),
			Title:           doc.Title,
			Author:          doc.Author,
			SourceType:      sourceType,
			PageRefs:        w.Pages,
			Text:            w.Text,
			ContentHash:     contentHash(w.Text),
			ComplexityScore: ComplexityScore(w.Text),
			HasMeasurements: tags.HasMeasurements,
			HasMaterials:    tags.HasMaterials,
			HasSpatialInfo:  tags.HasSpatialInfo,
			CitationKey:     cit.Key,
			ChunkIndex:      i,
		}
		ids[i] = chunks[i].ID
	}

	existing, err := s.chunks.ExistingIDs(ctx, ids)
	if err != nil {
		return IngestResult{}, err
	}
	var fresh []Chunk
	var texts []string
	for _, c := range chunks {
		if existing[c.ID] {
			continue
		}
		fresh = append(fresh, c)
		texts = append(texts, c.Text)
	}

	vecs, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return IngestResult{}, err
	}
	for i := range fresh {
		fresh[i].Embedding = vecs[i]
	}

	added, err := s.chunks.Insert(ctx, cit, fresh)
	if err != nil {
		return IngestResult{}, err
	}
	res.Added = added
	res.Skipped = len(windows) - added

	if err := s.exportCitations(ctx); err != nil {
		slog.Warn("knowledge: writing citations.json failed", "error", err)
	}
	slog.Debug("knowledge: ingested", "path", path, "added", res.Added, "skipped", res.Skipped)
	return res, nil
}

// DirResult summarizes a bulk ingest.
type DirResult struct {
	Files  []IngestResult    `json:"files"`
	Failed map[string]string `json:"failed,omitempty"`
	Chunks int               `json:"chunks"`
}

// IngestDir ingests every PDF directly under dir in name order. Per-file
// failures are collected rather than aborting the run.
func (s *Store) IngestDir(ctx context.Context, dir string, clear bool) (DirResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return DirResult{}, fmt.Errorf("reading %s: %w", dir, err)
	}
	if clear {
		if err := s.Clear(ctx); err != nil {
			return DirResult{}, err
		}
	}

	var paths []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	out := DirResult{Failed: make(map[string]string)}
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		r, err := s.Ingest(ctx, p, Overrides{})
		if err != nil {
			slog.Warn("knowledge: ingest failed", "path", p, "error", err)
			out.Failed[p] = err.Error()
			continue
		}
		out.Files = append(out.Files, r)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		return out, err
	}
	out.Chunks = st.Chunks
	return out, nil
}

// Clear atomically removes every chunk and citation.
func (s *Store) Clear(ctx context.Context) error {
	s.ingestMu.Lock()
	defer s.ingestMu.Unlock()
	if err := s.chunks.Clear(ctx); err != nil {
		return err
	}
	if err := s.exportCitations(ctx); err != nil {
		slog.Warn("knowledge: writing citations.json failed", "error", err)
	}
	return nil
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	return s.chunks.Stats(ctx)
}

func (s *Store) Citations(ctx context.Context) ([]Citation, error) {
	return s.chunks.Citations(ctx)
}

// ChunkIDs lists stored chunk ids in ascending order.
func (s *Store) ChunkIDs(ctx context.Context) ([]string, error) {
	return s.chunks.ChunkIDs(ctx)
}

func (s *Store) exportCitations(ctx context.Context) error {
	if s.dir == "" {
		return nil
	}
	cits, err := s.chunks.Citations(ctx)
	if err != nil {
		return err
	}
	byKey := make(map[string]Citation, len(cits))
	for _, c := range cits {
		byKey[c.Key] = c
	}
	data, err := json.MarshalIndent(byKey, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding citations: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating knowledge dir: %w", err)
	}
	tmp := filepath.Join(s.dir, "citations.json.tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(s.dir, "citations.json"))
}

func applyOverrides(doc *Document, ov Overrides) {
	if ov.Title != "" {
		doc.Title = ov.Title
	}
	if ov.Author != "" {
		doc.Author = ov.Author
	}
	if ov.Year != "" {
		doc.Year = ov.Year
	}
}

// ChunkID derives the stable id of the index-th chunk of a document.
func ChunkID(title string, index int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", title, index)))
	return hex.EncodeToString(sum[:16])
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(strings.Join(strings.Fields(strings.ToLower(text)), " ")))
	return hex.EncodeToString(sum[:])
}

// citationKey builds an author-year-word key such as "alexander1977pattern".
func citationKey(title, author, year string) string {
	var parts []string
	if f := strings.Fields(author); len(f) > 0 {
		parts = append(parts, slug(f[len(f)-1]))
	}
	if year != "" {
		parts = append(parts, year)
	}
	for _, w := range strings.Fields(title) {
		if s := slug(w); len(s) > 3 {
			parts = append(parts, s)
			break
		}
	}
	key := strings.Join(parts, "")
	if key == "" {
		sum := sha256.Sum256([]byte(title))
		key = "doc" + hex.EncodeToString(sum[:4])
	}
	return key
}

func slug(s string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
