package pgx

import (
	"context"
	"fmt"

	"github.com/tutorstack/backend/internal/util"
	"github.com/tutorstack/backend/pkg/common"
	"github.com/tutorstack/backend/pkg/logger"
	"github.com/tutorstack/backend/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

const saveBatchSize = 1000

// SaveChunks upserts a batch of chunks keyed by (document_id, ordinal).
// Rerunning a chunking pass overwrites earlier rows for the same ordinal and
// resets their embedding status, so re-indexing triggers re-embedding.
func (s *ChunkDBStorage) SaveChunks(ctx context.Context, chunks []*common.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	logger.Debug("[Store][SaveChunks] Bulk upserting chunks", "chunks", len(chunks))

	const q = `
INSERT INTO chunks (
	public_id, document_id, ordinal, text, token_count,
	start_offset, end_offset, section_title, primary_topic,
	topics, key_concepts, embedding_status
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (document_id, ordinal) DO UPDATE
SET public_id        = EXCLUDED.public_id,
    text             = EXCLUDED.text,
    token_count      = EXCLUDED.token_count,
    start_offset     = EXCLUDED.start_offset,
    end_offset       = EXCLUDED.end_offset,
    section_title    = EXCLUDED.section_title,
    primary_topic    = EXCLUDED.primary_topic,
    topics           = EXCLUDED.topics,
    key_concepts     = EXCLUDED.key_concepts,
    embedding        = NULL,
    embedding_status = EXCLUDED.embedding_status,
    updated_at       = now()`

	return store.ChunkRange(len(chunks), saveBatchSize, func(start, end int) error {
		tx, err := s.conn.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		for _, chunk := range chunks[start:end] {
			status := chunk.EmbedStatus
			if status == "" {
				status = common.EmbeddingPending
			}
			_, err := tx.Exec(ctx, q,
				chunk.PublicID,
				chunk.DocumentID,
				chunk.Ordinal,
				util.SanitizePostgresText(chunk.Text),
				chunk.TokenCount,
				chunk.StartOffset,
				chunk.EndOffset,
				util.SanitizePostgresText(chunk.SectionTitle),
				util.SanitizePostgresText(chunk.PrimaryTopic),
				chunk.Topics,
				chunk.KeyConcepts,
				string(status),
			)
			if err != nil {
				return fmt.Errorf("failed to upsert chunk %d/%d: %w", chunk.DocumentID, chunk.Ordinal, err)
			}
		}

		return tx.Commit(ctx)
	})
}

const chunkColumns = `
id, public_id, document_id, ordinal, text, token_count,
start_offset, end_offset, section_title, primary_topic,
topics, key_concepts, embedding_status`

func scanChunk(row pgxv5.Row) (common.Chunk, error) {
	var c common.Chunk
	err := row.Scan(
		&c.ID,
		&c.PublicID,
		&c.DocumentID,
		&c.Ordinal,
		&c.Text,
		&c.TokenCount,
		&c.StartOffset,
		&c.EndOffset,
		&c.SectionTitle,
		&c.PrimaryTopic,
		&c.Topics,
		&c.KeyConcepts,
		&c.EmbedStatus,
	)
	return c, err
}

// GetChunks returns every chunk of a document in ordinal order. Embedding
// vectors are not loaded; they only leave the database through similarity
// search.
func (s *ChunkDBStorage) GetChunks(ctx context.Context, documentID int64) ([]common.Chunk, error) {
	q := `SELECT ` + chunkColumns + `
FROM chunks
WHERE document_id = $1
ORDER BY ordinal`

	rows, err := s.conn.Query(ctx, q, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks for document %d: %w", documentID, err)
	}
	defer rows.Close()

	var chunks []common.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// GetChunksNeedingEmbedding returns the document's chunks whose embedding is
// pending or failed, in ordinal order.
func (s *ChunkDBStorage) GetChunksNeedingEmbedding(ctx context.Context, documentID int64) ([]common.Chunk, error) {
	q := `SELECT ` + chunkColumns + `
FROM chunks
WHERE document_id = $1 AND embedding_status = ANY($2)
ORDER BY ordinal`

	statuses := []string{string(common.EmbeddingPending), string(common.EmbeddingFailed)}
	rows, err := s.conn.Query(ctx, q, documentID, statuses)
	if err != nil {
		return nil, fmt.Errorf("failed to load unembedded chunks for document %d: %w", documentID, err)
	}
	defer rows.Close()

	var chunks []common.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// MaxChunkOrdinal returns the highest persisted ordinal for the document, or
// -1 when the document has no chunks yet.
func (s *ChunkDBStorage) MaxChunkOrdinal(ctx context.Context, documentID int64) (int, error) {
	const q = `SELECT COALESCE(MAX(ordinal), -1) FROM chunks WHERE document_id = $1`

	var ordinal int
	if err := s.conn.QueryRow(ctx, q, documentID).Scan(&ordinal); err != nil {
		return -1, fmt.Errorf("failed to read max ordinal for document %d: %w", documentID, err)
	}
	return ordinal, nil
}

// SetChunkEmbedding stores a validated embedding vector and marks the chunk
// complete. The vector is passed as a bound pgvector parameter.
func (s *ChunkDBStorage) SetChunkEmbedding(ctx context.Context, chunkID int64, embedding []float32) error {
	if len(embedding) != s.dim {
		return &common.ValidationError{
			Field:  "embedding",
			Reason: fmt.Sprintf("expected %d dimensions, got %d", s.dim, len(embedding)),
		}
	}

	const q = `
UPDATE chunks
SET embedding = $2, embedding_status = $3, updated_at = now()
WHERE id = $1`

	_, err := s.conn.Exec(ctx, q, chunkID, pgvector.NewVector(embedding), string(common.EmbeddingComplete))
	if err != nil {
		return fmt.Errorf("failed to store embedding for chunk %d: %w", chunkID, err)
	}
	return nil
}

// SetChunkEmbeddingStatus updates the embedding status for a set of chunks.
// A non-complete status clears any stored vector so the invariant
// "complete implies non-null vector" also holds in reverse.
func (s *ChunkDBStorage) SetChunkEmbeddingStatus(ctx context.Context, chunkIDs []int64, status common.EmbeddingStatus) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	const q = `
UPDATE chunks
SET embedding_status = $2,
    embedding = CASE WHEN $2 = 'complete' THEN embedding ELSE NULL END,
    updated_at = now()
WHERE id = ANY($1)`

	_, err := s.conn.Exec(ctx, q, chunkIDs, string(status))
	if err != nil {
		return fmt.Errorf("failed to update embedding status: %w", err)
	}
	return nil
}
