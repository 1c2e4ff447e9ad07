// Package enrich implements the retrieval engine's optional contextual
// enrichment step (§4.4): given a set of matched chunks, pull in their
// neighboring chunks, document-level stats, and (optionally) the full
// source document so the answer-generation step has more than an
// isolated snippet to work from.
//
// It talks to Postgres directly rather than through the databases package's
// FullTextSearch/VectorStore interfaces because neighbor-by-index and
// full-document reconstruction are range queries over chunk_index that
// those narrow interfaces don't express.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Chunk mirrors the persisted shape of a §3.1 Chunk entity as read back
// from the chunks table: identity, text, and the metadata needed to
// reassemble a document.
type Chunk struct {
	ID        int64             `json:"id"`
	PaperID   string            `json:"paper_id"`
	Content   string            `json:"content"`
	Summary   string            `json:"summary,omitempty"`
	ChunkType string            `json:"chunk_type"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ContextualChunk extends Chunk with its surrounding context.
type ContextualChunk struct {
	Chunk
	NeighborChunks []Chunk        `json:"neighbor_chunks,omitempty"`
	FullDocument   string         `json:"full_document,omitempty"`
	DocumentStats  *DocumentStats `json:"document_stats,omitempty"`
}

// DocumentStats summarizes the source document a chunk belongs to.
type DocumentStats struct {
	TotalChunks   int    `json:"total_chunks"`
	Language      string `json:"language"`
	DocumentTitle string `json:"document_title"`
}

// Engine enriches chunk matches with surrounding context. It is
// constructed with a live connection rather than a pool since enrichment
// runs inline within a single retrieval request.
type Engine struct {
	DB *pgx.Conn
}

// NewEngine returns an enrichment Engine bound to db.
func NewEngine(db *pgx.Conn) *Engine {
	return &Engine{DB: db}
}

// RetrieveWithContext expands each chunk ID with its neighbors, document
// stats, and (if requested) the reconstructed full document. A chunk that
// fails to load is silently skipped rather than failing the whole batch,
// since enrichment is best-effort on top of an already-successful match.
func (e *Engine) RetrieveWithContext(ctx context.Context, chunkIDs []int64, contextWindow int, includeFullDoc bool) ([]ContextualChunk, error) {
	var results []ContextualChunk

	for _, chunkID := range chunkIDs {
		mainChunk, err := e.getChunkByID(ctx, chunkID)
		if err != nil {
			continue
		}

		enriched := ContextualChunk{Chunk: *mainChunk}

		if stats, err := e.getDocumentStats(ctx, mainChunk.PaperID); err == nil {
			enriched.DocumentStats = stats
		}

		if contextWindow > 0 {
			if neighbors, err := e.getNeighboringChunks(ctx, chunkID, mainChunk.PaperID, contextWindow); err == nil {
				enriched.NeighborChunks = neighbors
			}
		}

		if includeFullDoc {
			if fullDoc, err := e.getFullDocument(ctx, mainChunk.PaperID); err == nil {
				enriched.FullDocument = fullDoc
			}
		}

		results = append(results, enriched)
	}

	return results, nil
}

func (e *Engine) getChunkByID(ctx context.Context, chunkID int64) (*Chunk, error) {
	var c Chunk
	var mdBytes []byte
	var summary *string

	err := e.DB.QueryRow(ctx, `
		SELECT id, paper_id, content, summary, chunk_type, metadata
		FROM chunks
		WHERE id = $1
	`, chunkID).Scan(&c.ID, &c.PaperID, &c.Content, &summary, &c.ChunkType, &mdBytes)
	if err != nil {
		return nil, fmt.Errorf("retrieve chunk %d: %w", chunkID, err)
	}
	if summary != nil {
		c.Summary = *summary
	}
	if len(mdBytes) > 0 {
		meta := make(map[string]string)
		_ = json.Unmarshal(mdBytes, &meta)
		c.Metadata = meta
	}
	return &c, nil
}

// getNeighboringChunks returns chunks within contextWindow positions of
// chunkID in the same paper, ordered by chunk_index. Papers whose chunks
// were indexed without a chunk_index fall back to ID proximity.
func (e *Engine) getNeighboringChunks(ctx context.Context, chunkID int64, paperID string, contextWindow int) ([]Chunk, error) {
	main, err := e.getChunkByID(ctx, chunkID)
	if err != nil {
		return nil, err
	}

	idx, ok := chunkIndexOf(main)
	if !ok {
		return e.getChunksByIDProximity(ctx, chunkID, paperID, contextWindow)
	}

	start := idx - contextWindow
	if start < 0 {
		start = 0
	}
	end := idx + contextWindow

	rows, err := e.DB.Query(ctx, `
		SELECT id, paper_id, content, summary, chunk_type, metadata
		FROM chunks
		WHERE paper_id = $1
		  AND metadata->>'chunk_index' IS NOT NULL
		  AND CAST(metadata->>'chunk_index' AS INTEGER) BETWEEN $2 AND $3
		  AND id != $4
		ORDER BY CAST(metadata->>'chunk_index' AS INTEGER)
	`, paperID, start, end, chunkID)
	if err != nil {
		return nil, fmt.Errorf("retrieve neighboring chunks: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (e *Engine) getChunksByIDProximity(ctx context.Context, chunkID int64, paperID string, contextWindow int) ([]Chunk, error) {
	rows, err := e.DB.Query(ctx, `
		SELECT id, paper_id, content, summary, chunk_type, metadata
		FROM chunks
		WHERE paper_id = $1
		  AND id BETWEEN $2 AND $3
		  AND id != $4
		ORDER BY id
	`, paperID, chunkID-int64(contextWindow), chunkID+int64(contextWindow), chunkID)
	if err != nil {
		return nil, fmt.Errorf("retrieve chunks by id proximity: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

func scanChunks(rows pgx.Rows) ([]Chunk, error) {
	var out []Chunk
	for rows.Next() {
		var c Chunk
		var mdBytes []byte
		var summary *string
		if err := rows.Scan(&c.ID, &c.PaperID, &c.Content, &summary, &c.ChunkType, &mdBytes); err != nil {
			continue
		}
		if summary != nil {
			c.Summary = *summary
		}
		if len(mdBytes) > 0 {
			meta := make(map[string]string)
			_ = json.Unmarshal(mdBytes, &meta)
			c.Metadata = meta
		}
		out = append(out, c)
	}
	return out, nil
}

func chunkIndexOf(c *Chunk) (int, bool) {
	if c.Metadata == nil {
		return 0, false
	}
	v, ok := c.Metadata["chunk_index"]
	if !ok {
		return 0, false
	}
	var idx int
	if _, err := fmt.Sscanf(v, "%d", &idx); err != nil {
		return 0, false
	}
	return idx, true
}

func (e *Engine) getDocumentStats(ctx context.Context, paperID string) (*DocumentStats, error) {
	var stats DocumentStats
	var language, title *string

	err := e.DB.QueryRow(ctx, `
		SELECT
			COUNT(*),
			MAX(COALESCE(metadata->>'language', 'unknown')),
			MAX(COALESCE(metadata->>'title', ''))
		FROM chunks
		WHERE paper_id = $1
	`, paperID).Scan(&stats.TotalChunks, &language, &title)
	if err != nil {
		return nil, fmt.Errorf("document stats for %s: %w", paperID, err)
	}
	if language != nil {
		stats.Language = *language
	}
	if title != nil {
		stats.DocumentTitle = *title
	}
	return &stats, nil
}

// getFullDocument reconstructs the full text of a paper by concatenating
// its chunks in chunk_index order (falling back to insertion order).
func (e *Engine) getFullDocument(ctx context.Context, paperID string) (string, error) {
	rows, err := e.DB.Query(ctx, `
		SELECT content, metadata
		FROM chunks
		WHERE paper_id = $1
		ORDER BY CASE
			WHEN metadata->>'chunk_index' IS NOT NULL
			THEN CAST(metadata->>'chunk_index' AS INTEGER)
			ELSE id
		END
	`, paperID)
	if err != nil {
		return "", fmt.Errorf("retrieve document chunks for %s: %w", paperID, err)
	}
	defer rows.Close()

	var b strings.Builder
	for rows.Next() {
		var content string
		var mdBytes []byte
		if err := rows.Scan(&content, &mdBytes); err != nil {
			continue
		}
		b.WriteString(content)
		if !strings.HasSuffix(content, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}
