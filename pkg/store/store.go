package store

import (
	"context"

	"github.com/tutorstack/backend/pkg/common"
)

// SearchFilter restricts a similarity search to an owning scope. A zero
// CategoryID means no category restriction; an empty DocumentIDs slice means
// no document restriction.
type SearchFilter struct {
	CategoryID  int64
	DocumentIDs []int64
}

// Store defines the persistence operations the indexing pipeline needs:
// document state transitions, chunk batches with per-chunk embedding status,
// derived topic and concept data, and vector similarity search.
//
// Implementations must treat every value as untrusted data and pass it as a
// bound query parameter; embedding vectors in particular are never
// interpolated into SQL text.
type Store interface {
	GetDocument(ctx context.Context, id int64) (*common.Document, error)
	// SetDocumentStatus transitions the document state. It fails with
	// ErrIllegalTransition when the stored state does not allow the move,
	// so concurrent runs cannot both claim a document.
	SetDocumentStatus(ctx context.Context, id int64, next common.ChunkingStatus) error
	SetDocumentTotals(ctx context.Context, id int64, totalChunks, totalTokens int) error

	// SaveChunks upserts a batch keyed by (document_id, ordinal) inside one
	// transaction per slice of at most 1000 rows.
	SaveChunks(ctx context.Context, chunks []*common.Chunk) error
	GetChunks(ctx context.Context, documentID int64) ([]common.Chunk, error)
	GetChunksNeedingEmbedding(ctx context.Context, documentID int64) ([]common.Chunk, error)
	// MaxChunkOrdinal returns the highest persisted ordinal for the
	// document, or -1 when no chunks exist. Used to resume interrupted
	// chunking runs.
	MaxChunkOrdinal(ctx context.Context, documentID int64) (int, error)
	SetChunkEmbedding(ctx context.Context, chunkID int64, embedding []float32) error
	SetChunkEmbeddingStatus(ctx context.Context, chunkIDs []int64, status common.EmbeddingStatus) error

	ReplaceTopics(ctx context.Context, documentID int64, topics []common.Topic) error
	ReplaceConceptMap(ctx context.Context, conceptMap *common.ConceptMap) error

	// SearchSimilarChunks returns the topK chunks nearest to the query
	// embedding by cosine distance, restricted by the filter and to chunks
	// whose embedding is complete. Results are ordered by descending
	// similarity.
	SearchSimilarChunks(ctx context.Context, embedding []float32, filter SearchFilter, topK int) ([]common.ScoredChunk, error)
}
