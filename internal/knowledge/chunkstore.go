package knowledge

import (
	"container/heap"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ChunkStore persists chunks and citations in SQLite and performs
// brute-force cosine search over stored embeddings.
type ChunkStore struct {
	db *sql.DB
}

// NewChunkStore wraps an existing *sql.DB. The knowledge tables must already
// exist (created via storage migrations).
func NewChunkStore(db *sql.DB) *ChunkStore {
	return &ChunkStore{db: db}
}

const chunkColumns = `id, title, author, source_type, page_refs, text_chunk, content_hash,
	complexity_score, has_measurements, has_materials, has_spatial_info, citation_key, chunk_index, created_at`

// ExistingIDs returns which of ids are already stored.
func (s *ChunkStore) ExistingIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool)
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM knowledge_chunks WHERE id IN (?`+strings.Repeat(",?", len(ids)-1)+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying existing ids: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

// Insert stores chunks and the citation in one transaction. Chunks whose id
// already exists are left untouched. Returns the number of rows added.
func (s *ChunkStore) Insert(ctx context.Context, cit Citation, chunks []Chunk) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning insert transaction: %w", err)
	}
	defer tx.Rollback()

	createdAt := cit.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO citations (citation_key, title, author, year, source_path, source_type, page_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(citation_key) DO UPDATE SET
			title = excluded.title, author = excluded.author, year = excluded.year,
			source_path = excluded.source_path, source_type = excluded.source_type, page_count = excluded.page_count`,
		cit.Key, cit.Title, cit.Author, cit.Year, cit.SourcePath, cit.SourceType, cit.PageCount,
		createdAt.UTC().Format(time.RFC3339),
	); err != nil {
		return 0, fmt.Errorf("upserting citation %s: %w", cit.Key, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO knowledge_chunks (`+chunkColumns+`, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	added := 0
	for _, c := range chunks {
		pages, err := json.Marshal(c.PageRefs)
		if err != nil {
			return 0, fmt.Errorf("encoding page refs: %w", err)
		}
		res, err := stmt.ExecContext(ctx,
			c.ID, c.Title, c.Author, c.SourceType, string(pages), c.Text, c.ContentHash,
			c.ComplexityScore, c.HasMeasurements, c.HasMaterials, c.HasSpatialInfo,
			c.CitationKey, c.ChunkIndex, createdAt.UTC().Format(time.RFC3339), encodeFloat32s(c.Embedding),
		)
		if err != nil {
			return 0, fmt.Errorf("inserting chunk %s: %w", c.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		added += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing insert: %w", err)
	}
	return added, nil
}

// SearchVector returns the topK chunks by cosine similarity to vec.
// Ties are broken by chunk id so results are deterministic.
func (s *ChunkStore) SearchVector(ctx context.Context, vec []float32, topK int) ([]Chunk, []float64, error) {
	queryNorm := l2norm(vec)
	if queryNorm == 0 || topK <= 0 {
		return nil, nil, nil
	}

	// Phase 1: scan only id + embedding to find top-K candidates.
	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM knowledge_chunks`)
	if err != nil {
		return nil, nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	h := &idScoreHeap{}
	var buf []float32
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, nil, fmt.Errorf("scanning row: %w", err)
		}
		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return nil, nil, fmt.Errorf("decoding embedding for %s: %w", id, err)
		}
		item := idScore{ID: id, Score: cosine(vec, buf, queryNorm)}
		if h.Len() < topK {
			heap.Push(h, item)
		} else if top := (*h)[0]; item.Score > top.Score || (item.Score == top.Score && item.ID < top.ID) {
			(*h)[0] = item
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterating rows: %w", err)
	}
	if h.Len() == 0 {
		return nil, nil, nil
	}

	// Phase 2: fetch full records only for the top-K ids, best first.
	ranked := make([]idScore, h.Len())
	for i := len(ranked) - 1; i >= 0; i-- {
		ranked[i] = heap.Pop(h).(idScore)
	}
	ids := make([]string, len(ranked))
	for i, r := range ranked {
		ids[i] = r.ID
	}
	byID, err := s.getByIDs(ctx, ids)
	if err != nil {
		return nil, nil, err
	}

	chunks := make([]Chunk, 0, len(ranked))
	scores := make([]float64, 0, len(ranked))
	for _, r := range ranked {
		if c, ok := byID[r.ID]; ok {
			chunks = append(chunks, c)
			scores = append(scores, r.Score)
		}
	}
	return chunks, scores, nil
}

// MatchTerms calls fn for every chunk whose text contains any of terms, in
// id order. Scanning stops at the first error fn returns.
func (s *ChunkStore) MatchTerms(ctx context.Context, terms []string, fn func(Chunk) error) error {
	if len(terms) == 0 {
		return nil
	}
	clauses := make([]string, len(terms))
	args := make([]any, len(terms))
	for i, t := range terms {
		clauses[i] = "text_chunk LIKE ?"
		args[i] = "%" + t + "%"
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM knowledge_chunks WHERE `+strings.Join(clauses, " OR ")+` ORDER BY id`, args...)
	if err != nil {
		return fmt.Errorf("keyword query: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *ChunkStore) getByIDs(ctx context.Context, ids []string) (map[string]Chunk, error) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM knowledge_chunks WHERE id IN (?`+strings.Repeat(",?", len(ids)-1)+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("fetching chunks by id: %w", err)
	}
	defer rows.Close()
	chunks, err := scanChunks(rows)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Chunk, len(chunks))
	for _, c := range chunks {
		out[c.ID] = c
	}
	return out, nil
}

func scanChunks(rows *sql.Rows) ([]Chunk, error) {
	var out []Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanChunk(rows *sql.Rows) (Chunk, error) {
	var c Chunk
	var pages, createdAt string
	if err := rows.Scan(&c.ID, &c.Title, &c.Author, &c.SourceType, &pages, &c.Text, &c.ContentHash,
		&c.ComplexityScore, &c.HasMeasurements, &c.HasMaterials, &c.HasSpatialInfo,
		&c.CitationKey, &c.ChunkIndex, &createdAt); err != nil {
		return Chunk{}, fmt.Errorf("scanning chunk: %w", err)
	}
	if err := json.Unmarshal([]byte(pages), &c.PageRefs); err != nil {
		return Chunk{}, fmt.Errorf("decoding page refs for %s: %w", c.ID, err)
	}
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Chunk{}, fmt.Errorf("parsing created_at for %s: %w", c.ID, err)
	}
	c.CreatedAt = t
	return c, nil
}

// ChunkIDs returns every stored chunk id in ascending order.
func (s *ChunkStore) ChunkIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM knowledge_chunks ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Citations returns all citations ordered by key.
func (s *ChunkStore) Citations(ctx context.Context) ([]Citation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT citation_key, title, author, year, source_path, source_type, page_count, created_at
		FROM citations ORDER BY citation_key`)
	if err != nil {
		return nil, fmt.Errorf("querying citations: %w", err)
	}
	defer rows.Close()

	var out []Citation
	for rows.Next() {
		var c Citation
		var createdAt string
		if err := rows.Scan(&c.Key, &c.Title, &c.Author, &c.Year, &c.SourcePath, &c.SourceType, &c.PageCount, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at for citation %s: %w", c.Key, err)
		}
		c.CreatedAt = t
		out = append(out, c)
	}
	return out, rows.Err()
}

// CitationsByKey looks up the given citation keys.
func (s *ChunkStore) CitationsByKey(ctx context.Context, keys []string) (map[string]Citation, error) {
	all, err := s.Citations(ctx)
	if err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}
	out := make(map[string]Citation)
	for _, c := range all {
		if want[c.Key] {
			out[c.Key] = c
		}
	}
	return out, nil
}

// Clear deletes every chunk and citation in one transaction.
func (s *ChunkStore) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning clear transaction: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM knowledge_chunks`); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM citations`); err != nil {
		return fmt.Errorf("deleting citations: %w", err)
	}
	return tx.Commit()
}

func (s *ChunkStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM knowledge_chunks`).Scan(&st.Chunks); err != nil {
		return Stats{}, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM citations`).Scan(&st.Documents); err != nil {
		return Stats{}, err
	}
	return st, nil
}
