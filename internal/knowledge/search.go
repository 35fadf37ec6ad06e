package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/mentor/internal/agent"
)

// Rerank weights.
const (
	weightSemantic  = 0.4
	weightKeyword   = 0.3
	weightQuality   = 0.2
	weightAuthority = 0.1
)

// synonyms expands architecture phrases for the expanded search strategy.
var synonyms = map[string][]string{
	"community center": {"civic center", "public facility", "community hall", "cultural center"},
	"adaptive reuse":   {"building conversion", "repurposing", "retrofit"},
	"warehouse":        {"industrial building", "depot"},
	"housing":          {"residential", "dwelling"},
	"library":          {"reading room", "media center"},
	"sustainable":      {"green building", "passive design"},
	"circulation":      {"movement", "wayfinding"},
	"school":           {"educational facility", "learning environment"},
	"museum":           {"gallery", "exhibition space"},
	"public space":     {"plaza", "civic space"},
	"daylight":         {"natural light", "daylighting"},
	"nordic":           {"scandinavian", "cold climate"},
}

const maxExpansions = 4

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "what": true, "which": true,
	"how": true, "with": true, "that": true, "this": true, "there": true, "exist": true,
	"exists": true, "about": true, "from": true, "into": true, "does": true, "can": true,
	"should": true, "would": true, "could": true, "have": true, "has": true, "any": true,
	"some": true, "of": true, "in": true, "on": true, "to": true, "is": true, "a": true,
	"an": true, "my": true, "your": true, "you": true, "why": true, "when": true,
}

// Search embeds the query and returns up to k chunks whose similarity
// (1 - cosine distance) is at least minSim.
func (s *Store) Search(ctx context.Context, query string, k int, minSim float64) ([]Hit, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := s.semantic(ctx, vec, k, MethodSemantic)
	if err != nil {
		return nil, err
	}
	out := hits[:0]
	for _, h := range hits {
		if h.Similarity >= minSim {
			out = append(out, h)
		}
	}
	return out, nil
}

func (s *Store) semantic(ctx context.Context, vec []float32, k int, method SearchMethod) ([]Hit, error) {
	chunks, scores, err := s.chunks.SearchVector(ctx, vec, k)
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, len(chunks))
	for i, c := range chunks {
		// Cosine distance is 1 - cosine; similarity is 1 - distance, clamped.
		distance := 1 - scores[i]
		hits[i] = newHit(c, agent.Clamp01(1-distance), method)
	}
	return hits, nil
}

// keyword scores every chunk containing a query term and keeps the best k.
func (s *Store) keyword(ctx context.Context, query string, k int) ([]Hit, error) {
	terms := queryTerms(query)
	var hits []Hit
	err := s.chunks.MatchTerms(ctx, terms, func(c Chunk) error {
		score := keywordScore(query, terms, c.Text)
		if score <= 0 {
			return nil
		}
		hits = append(hits, newHit(c, score, MethodKeyword))
		if len(hits) >= 4*k {
			hits = topKeyword(hits, k)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return topKeyword(hits, k), nil
}

// topKeyword orders hits by score then id and truncates to k.
func topKeyword(hits []Hit, k int) []Hit {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].Metadata.ID < hits[j].Metadata.ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func (s *Store) expanded(ctx context.Context, query string, k int) ([]Hit, error) {
	var out []Hit
	for _, q := range ExpandQuery(query) {
		vec, err := s.embedder.Embed(ctx, q)
		if err != nil {
			return nil, err
		}
		hits, err := s.semantic(ctx, vec, k, MethodExpanded)
		if err != nil {
			return nil, err
		}
		out = append(out, hits...)
	}
	return out, nil
}

// EnhancedSearch runs semantic, keyword and expanded strategies concurrently,
// merges their hits by content hash and, when rerank is set, orders them by
// the weighted rerank score. A failing strategy is logged and skipped; the
// call fails only when every strategy fails.
func (s *Store) EnhancedSearch(ctx context.Context, query string, k int, rerank bool) ([]Hit, error) {
	if k <= 0 {
		k = 5
	}
	var (
		mu      sync.Mutex
		all     []Hit
		errs    []error
		pool    = k * 2
		g, gCtx = errgroup.WithContext(ctx)
	)
	collect := func(name string, hits []Hit, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			slog.Warn("knowledge: search strategy failed", "strategy", name, "error", err)
			errs = append(errs, err)
			return
		}
		all = append(all, hits...)
	}

	// Strategies swallow their own errors so one failure does not cancel the rest.
	g.Go(func() error {
		vec, err := s.embedder.Embed(gCtx, query)
		if err != nil {
			collect("semantic", nil, err)
			return nil
		}
		hits, err := s.semantic(gCtx, vec, pool, MethodSemantic)
		collect("semantic", hits, err)
		return nil
	})
	g.Go(func() error {
		hits, err := s.keyword(gCtx, query, pool)
		collect("keyword", hits, err)
		return nil
	})
	g.Go(func() error {
		hits, err := s.expanded(gCtx, query, k)
		collect("expanded", hits, err)
		return nil
	})
	_ = g.Wait()

	if len(errs) == 3 {
		return nil, fmt.Errorf("all search strategies failed: %w", errs[0])
	}

	merged := Merge(query, all)
	if rerank {
		merged = Rerank(query, merged)
	} else {
		sortBySimilarity(merged)
	}
	if len(merged) > k {
		merged = merged[:k]
	}
	return merged, nil
}

// SearchWithCitations runs EnhancedSearch and resolves each hit's citation.
func (s *Store) SearchWithCitations(ctx context.Context, query string, k int) ([]CitedHit, error) {
	hits, err := s.EnhancedSearch(ctx, query, k, true)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(hits))
	for _, h := range hits {
		keys = append(keys, h.Metadata.CitationKey)
	}
	cits, err := s.chunks.CitationsByKey(ctx, keys)
	if err != nil {
		return nil, err
	}

	out := make([]CitedHit, len(hits))
	for i, h := range hits {
		ch := CitedHit{Hit: h, Pages: extractPages(h)}
		if c, ok := cits[h.Metadata.CitationKey]; ok {
			ch.Citation = c.Formatted()
			ch.Record = &c
		} else {
			ch.Citation = Citation{Title: h.Metadata.Title, Author: h.Metadata.Author}.Formatted()
		}
		out[i] = ch
	}
	return out, nil
}

// Merge deduplicates hits by content hash. The surviving hit keeps the best
// similarity and its method; the best semantic similarity seen from the
// semantic or expanded strategies is recorded for reranking.
func Merge(query string, hits []Hit) []Hit {
	type entry struct {
		hit      Hit
		semantic float64
	}
	byHash := make(map[string]*entry)
	var order []string
	for _, h := range hits {
		key := h.Metadata.ContentHash
		if key == "" {
			key = contentHash(h.Content)
		}
		sem := 0.0
		if h.SearchMethod != MethodKeyword {
			sem = h.Similarity
		}
		e, ok := byHash[key]
		if !ok {
			byHash[key] = &entry{hit: h, semantic: sem}
			order = append(order, key)
			continue
		}
		if h.Similarity > e.hit.Similarity ||
			(h.Similarity == e.hit.Similarity && methodRank(h.SearchMethod) < methodRank(e.hit.SearchMethod)) {
			e.hit.Similarity = h.Similarity
			e.hit.SearchMethod = h.SearchMethod
		}
		if sem > e.semantic {
			e.semantic = sem
		}
		// Identical text in two documents: keep the lower id's metadata.
		if h.Metadata.ID < e.hit.Metadata.ID {
			e.hit.Content = h.Content
			e.hit.Metadata = h.Metadata
		}
	}

	out := make([]Hit, 0, len(order))
	for _, key := range order {
		e := byHash[key]
		h := e.hit
		h.Components = &RerankComponents{Semantic: e.semantic}
		h.RerankScore = nil
		out = append(out, h)
	}
	sortByID(out)
	return out
}

func methodRank(m SearchMethod) int {
	switch m {
	case MethodSemantic:
		return 0
	case MethodKeyword:
		return 1
	default:
		return 2
	}
}

// Rerank scores each hit as 0.4*semantic + 0.3*keyword + 0.2*content_quality
// + 0.1*source_authority and sorts descending, ties broken by chunk id, so the
// result does not depend on input order.
func Rerank(query string, hits []Hit) []Hit {
	terms := queryTerms(query)
	out := make([]Hit, len(hits))
	for i, h := range hits {
		sem := 0.0
		if h.Components != nil {
			sem = h.Components.Semantic
		} else if h.SearchMethod != MethodKeyword {
			sem = h.Similarity
		}
		c := RerankComponents{
			Semantic:        agent.Clamp01(sem),
			Keyword:         keywordScore(query, terms, h.Content),
			ContentQuality:  contentQuality(h),
			SourceAuthority: sourceAuthority(h.Metadata),
		}
		score := weightSemantic*c.Semantic + weightKeyword*c.Keyword +
			weightQuality*c.ContentQuality + weightAuthority*c.SourceAuthority
		h.Components = &c
		h.RerankScore = &score
		out[i] = h
	}
	sort.SliceStable(out, func(i, j int) bool {
		if *out[i].RerankScore != *out[j].RerankScore {
			return *out[i].RerankScore > *out[j].RerankScore
		}
		return out[i].Metadata.ID < out[j].Metadata.ID
	})
	return out
}

// ExpandQuery returns variants of query with known phrases replaced by
// synonyms, in a deterministic order and capped at maxExpansions.
func ExpandQuery(query string) []string {
	lower := strings.ToLower(query)
	keys := make([]string, 0, len(synonyms))
	for k := range synonyms {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []string
	for _, k := range keys {
		if !strings.Contains(lower, k) {
			continue
		}
		for _, syn := range synonyms[k] {
			out = append(out, strings.Replace(lower, k, syn, 1))
			if len(out) == maxExpansions {
				return out
			}
		}
	}
	return out
}

func queryTerms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var terms []string
	seen := make(map[string]bool)
	for _, f := range fields {
		if len(f) < 3 || stopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, f)
	}
	return terms
}

// keywordScore is the fraction of query terms present in content, boosted
// when terms repeat or the whole query phrase appears.
func keywordScore(query string, terms []string, content string) float64 {
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(content)
	matched, extra := 0, 0
	for _, t := range terms {
		n := strings.Count(lower, t)
		if n > 0 {
			matched++
			extra += n - 1
		}
	}
	if matched == 0 {
		return 0
	}
	score := float64(matched) / float64(len(terms))
	score += min(0.05*float64(extra), 0.2)
	phrase := strings.TrimSpace(strings.TrimRight(strings.ToLower(query), "?!. "))
	if len(phrase) > 0 && strings.Contains(lower, phrase) {
		score += 0.2
	}
	return agent.Clamp01(score)
}

func contentQuality(h Hit) float64 {
	lenScore := min(float64(len(h.Content))/float64(defaultChunkSize), 1)
	tags := 0.0
	for _, b := range []bool{h.Metadata.HasMeasurements, h.Metadata.HasMaterials, h.Metadata.HasSpatialInfo} {
		if b {
			tags += 0.1
		}
	}
	return agent.Clamp01(0.4*lenScore + 0.3*h.Metadata.ComplexityScore + tags)
}

var authorityBySource = map[string]float64{
	"standard": 0.95,
	"book":     0.9,
	"journal":  0.85,
	"pdf":      0.7,
	"web":      0.5,
}

func sourceAuthority(m Metadata) float64 {
	a, ok := authorityBySource[strings.ToLower(m.SourceType)]
	if !ok {
		a = 0.6
	}
	if m.Author != "" {
		a += 0.1
	}
	return agent.Clamp01(a)
}

var pageRefPattern = regexp.MustCompile(`(?i)\b(?:page|p\.)\s*(\d{1,4})\b`)

// extractPages prefers stored page refs and falls back to "page N" mentions.
func extractPages(h Hit) []int {
	if len(h.Metadata.PageRefs) > 0 {
		return append([]int(nil), h.Metadata.PageRefs...)
	}
	var pages []int
	seen := make(map[int]bool)
	for _, m := range pageRefPattern.FindAllStringSubmatch(h.Content, -1) {
		n, err := strconv.Atoi(m[1])
		if err == nil && !seen[n] {
			seen[n] = true
			pages = append(pages, n)
		}
	}
	sort.Ints(pages)
	return pages
}

func newHit(c Chunk, similarity float64, method SearchMethod) Hit {
	return Hit{
		Content: c.Text,
		Metadata: Metadata{
			ID:              c.ID,
			Title:           c.Title,
			Author:          c.Author,
			SourceType:      c.SourceType,
			PageRefs:        c.PageRefs,
			CitationKey:     c.CitationKey,
			ChunkIndex:      c.ChunkIndex,
			ComplexityScore: c.ComplexityScore,
			HasMeasurements: c.HasMeasurements,
			HasMaterials:    c.HasMaterials,
			HasSpatialInfo:  c.HasSpatialInfo,
			ContentHash:     c.ContentHash,
		},
		Similarity:   similarity,
		SearchMethod: method,
	}
}

func sortBySimilarity(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].Metadata.ID < hits[j].Metadata.ID
	})
}

func sortByID(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Metadata.ID < hits[j].Metadata.ID
	})
}
