// Package knowledge ingests architecture PDFs into a persistent chunk store
// and answers hybrid (semantic, keyword, expanded) searches over it.
package knowledge

import "time"

// Chunk is one persisted window of document text.
type Chunk struct {
	ID              string
	Title           string
	Author          string
	SourceType      string
	PageRefs        []int
	Text            string
	ContentHash     string
	Embedding       []float32
	ComplexityScore float64
	HasMeasurements bool
	HasMaterials    bool
	HasSpatialInfo  bool
	CitationKey     string
	ChunkIndex      int
	CreatedAt       time.Time
}

// Citation describes one ingested document.
type Citation struct {
	Key        string    `json:"citation_key"`
	Title      string    `json:"title"`
	Author     string    `json:"author"`
	Year       string    `json:"year"`
	SourcePath string    `json:"source_path"`
	SourceType string    `json:"source_type"`
	PageCount  int       `json:"page_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// Formatted renders the citation in a short author-year style.
func (c Citation) Formatted() string {
	author := c.Author
	if author == "" {
		author = "Unknown author"
	}
	if c.Year != "" {
		return author + " (" + c.Year + "). " + c.Title + "."
	}
	return author + ". " + c.Title + "."
}

type SearchMethod string

const (
	MethodSemantic SearchMethod = "semantic"
	MethodKeyword  SearchMethod = "keyword"
	MethodExpanded SearchMethod = "expanded"
)

// Metadata is the chunk information attached to every hit.
type Metadata struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Author          string  `json:"author"`
	SourceType      string  `json:"source_type"`
	PageRefs        []int   `json:"page_refs"`
	CitationKey     string  `json:"citation_key"`
	ChunkIndex      int     `json:"chunk_index"`
	ComplexityScore float64 `json:"complexity_score"`
	HasMeasurements bool    `json:"has_measurements"`
	HasMaterials    bool    `json:"has_materials"`
	HasSpatialInfo  bool    `json:"has_spatial_info"`
	ContentHash     string  `json:"content_hash"`
}

// RerankComponents are the inputs to the weighted rerank score.
type RerankComponents struct {
	Semantic        float64 `json:"semantic"`
	Keyword         float64 `json:"keyword"`
	ContentQuality  float64 `json:"content_quality"`
	SourceAuthority float64 `json:"source_authority"`
}

// Hit is one search result. Similarity is always within [0,1].
type Hit struct {
	Content      string            `json:"content"`
	Metadata     Metadata          `json:"metadata"`
	Similarity   float64           `json:"similarity"`
	SearchMethod SearchMethod      `json:"search_method"`
	RerankScore  *float64          `json:"rerank_score,omitempty"`
	Components   *RerankComponents `json:"rerank_components,omitempty"`
}

// CitedHit is a hit with its document citation resolved.
type CitedHit struct {
	Hit
	Citation string    `json:"citation"`
	Pages    []int     `json:"pages"`
	Record   *Citation `json:"citation_record,omitempty"`
}

// IngestResult reports what one ingest call changed.
type IngestResult struct {
	Path        string `json:"path"`
	Title       string `json:"title"`
	CitationKey string `json:"citation_key"`
	Added       int    `json:"added"`
	Skipped     int    `json:"skipped"`
	Total       int    `json:"total"`
}

// Overrides replace extracted document metadata.
type Overrides struct {
	Title      string
	Author     string
	Year       string
	SourceType string
}

type Stats struct {
	Chunks    int `json:"chunks"`
	Documents int `json:"documents"`
}
