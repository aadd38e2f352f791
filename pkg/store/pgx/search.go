package pgx

import (
	"context"
	"fmt"

	"github.com/tutorstack/backend/pkg/common"
	"github.com/tutorstack/backend/pkg/store"

	"github.com/pgvector/pgvector-go"
)

// SearchSimilarChunks runs a cosine-distance top-K query against the chunk
// index, restricted to chunks with a complete embedding and to the given
// owner scope. The similarity score returned is 1 - cosine distance.
func (s *ChunkDBStorage) SearchSimilarChunks(
	ctx context.Context,
	embedding []float32,
	filter store.SearchFilter,
	topK int,
) ([]common.ScoredChunk, error) {
	if len(embedding) != s.dim {
		return nil, &common.ValidationError{
			Field:  "embedding",
			Reason: fmt.Sprintf("expected %d dimensions, got %d", s.dim, len(embedding)),
		}
	}
	if topK <= 0 {
		topK = 10
	}

	q := `
SELECT c.id, c.public_id, c.document_id, c.ordinal, c.text, c.token_count,
       c.start_offset, c.end_offset, c.section_title, c.primary_topic,
       c.topics, c.key_concepts, c.embedding_status,
       1 - (c.embedding <=> $1) AS similarity
FROM chunks c
JOIN documents d ON d.id = c.document_id
WHERE c.embedding_status = 'complete' AND c.embedding IS NOT NULL`

	args := []any{pgvector.NewVector(embedding)}
	if filter.CategoryID != 0 {
		args = append(args, filter.CategoryID)
		q += fmt.Sprintf(" AND d.category_id = $%d", len(args))
	}
	if len(filter.DocumentIDs) > 0 {
		args = append(args, filter.DocumentIDs)
		q += fmt.Sprintf(" AND c.document_id = ANY($%d)", len(args))
	}

	args = append(args, topK)
	q += fmt.Sprintf(" ORDER BY c.embedding <=> $1 LIMIT $%d", len(args))

	rows, err := s.conn.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}
	defer rows.Close()

	var results []common.ScoredChunk
	for rows.Next() {
		var sc common.ScoredChunk
		err := rows.Scan(
			&sc.Chunk.ID,
			&sc.Chunk.PublicID,
			&sc.Chunk.DocumentID,
			&sc.Chunk.Ordinal,
			&sc.Chunk.Text,
			&sc.Chunk.TokenCount,
			&sc.Chunk.StartOffset,
			&sc.Chunk.EndOffset,
			&sc.Chunk.SectionTitle,
			&sc.Chunk.PrimaryTopic,
			&sc.Chunk.Topics,
			&sc.Chunk.KeyConcepts,
			&sc.Chunk.EmbedStatus,
			&sc.Score,
		)
		if err != nil {
			return nil, err
		}
		results = append(results, sc)
	}
	return results, rows.Err()
}
