package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tutorstack/backend/pkg/ai"
	"github.com/tutorstack/backend/pkg/common"
	"github.com/tutorstack/backend/pkg/logger"
	"github.com/tutorstack/backend/pkg/store"

	"github.com/cenkalti/backoff/v4"
)

// Storage is the slice of the persistence layer the embedder needs.
type Storage interface {
	GetDocument(ctx context.Context, id int64) (*common.Document, error)
	SetDocumentStatus(ctx context.Context, id int64, next common.ChunkingStatus) error
	GetChunksNeedingEmbedding(ctx context.Context, documentID int64) ([]common.Chunk, error)
	SetChunkEmbedding(ctx context.Context, chunkID int64, embedding []float32) error
	SetChunkEmbeddingStatus(ctx context.Context, chunkIDs []int64, status common.EmbeddingStatus) error
	SearchSimilarChunks(ctx context.Context, embedding []float32, filter store.SearchFilter, topK int) ([]common.ScoredChunk, error)
}

// Service embeds chunk text into vectors and answers similarity queries.
// Chunks keep an individual embedding status, so a rerun after a partial
// failure only touches the chunks that still need a vector.
type Service struct {
	aiClient ai.Client
	store    Storage

	dimensions int
	batchSize  int
	maxRetries int
}

// NewServiceParams configures an embedding Service. Zero values select the
// defaults noted on each field.
type NewServiceParams struct {
	AIClient ai.Client
	Store    Storage

	Dimensions int // required; expected vector dimensionality
	BatchSize  int // default 100 texts per provider call
	MaxRetries int // default 3 attempts per batch
}

// NewService creates an embedding Service.
func NewService(params NewServiceParams) (*Service, error) {
	if params.AIClient == nil {
		return nil, errors.New("ai client is nil")
	}
	if params.Store == nil {
		return nil, errors.New("store is nil")
	}
	if params.Dimensions <= 0 {
		return nil, errors.New("dimensions must be positive")
	}

	s := &Service{
		aiClient:   params.AIClient,
		store:      params.Store,
		dimensions: params.Dimensions,
		batchSize:  params.BatchSize,
		maxRetries: params.MaxRetries,
	}
	if s.batchSize <= 0 || s.batchSize > 100 {
		s.batchSize = 100
	}
	if s.maxRetries <= 0 {
		s.maxRetries = 3
	}
	return s, nil
}

// EmbedDocument embeds every chunk of the document that still needs a vector
// and returns how many chunks were embedded. One failed batch marks its
// chunks failed and moves on; the document only fails when no chunk could be
// embedded at all. A partially successful run completes the document and
// reports the failed chunks through a PartialFailure error.
func (s *Service) EmbedDocument(ctx context.Context, documentID int64) (int, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return 0, err
	}
	if doc.Status.Busy() {
		return 0, fmt.Errorf("document %d: %w", documentID, common.ErrChunkingInProgress)
	}
	if !doc.Status.CanTransition(common.ChunkingEmbedding) {
		return 0, fmt.Errorf("document %d in state %q cannot be embedded", documentID, doc.Status)
	}

	if err := s.store.SetDocumentStatus(ctx, documentID, common.ChunkingEmbedding); err != nil {
		return 0, err
	}

	embedded, failedUnits, err := s.embedPending(ctx, documentID)
	if err != nil {
		if statusErr := s.store.SetDocumentStatus(ctx, documentID, common.ChunkingFailed); statusErr != nil {
			logger.Error("[Embedding] Failed to mark document as failed", "document_id", documentID, "err", statusErr)
		}
		return embedded, err
	}

	if err := s.store.SetDocumentStatus(ctx, documentID, common.ChunkingComplete); err != nil {
		return embedded, err
	}

	logger.Info(
		"[Embedding] Document embedded",
		"document_id", documentID,
		"embedded", embedded,
		"failed", len(failedUnits),
	)
	if len(failedUnits) > 0 {
		return embedded, &common.PartialFailure{
			Op:     "embedding",
			Failed: len(failedUnits),
			Total:  embedded + len(failedUnits),
			Units:  failedUnits,
		}
	}
	return embedded, nil
}

func (s *Service) embedPending(ctx context.Context, documentID int64) (int, []string, error) {
	chunks, err := s.store.GetChunksNeedingEmbedding(ctx, documentID)
	if err != nil {
		return 0, nil, err
	}
	if len(chunks) == 0 {
		return 0, nil, nil
	}

	embedded := 0
	var failedUnits []string

	err = store.ChunkRange(len(chunks), s.batchSize, func(start, end int) error {
		batch := chunks[start:end]

		vectors, batchErr := s.embedBatch(ctx, batch)
		if batchErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("[Embedding] Batch failed after retries", "document_id", documentID, "batch_start", start, "err", batchErr)
			if markErr := s.markFailed(ctx, batch); markErr != nil {
				return markErr
			}
			for _, chunk := range batch {
				failedUnits = append(failedUnits, chunk.PublicID)
			}
			return nil
		}

		for i, chunk := range batch {
			if validErr := ValidateVector(vectors[i], s.dimensions); validErr != nil {
				logger.Warn("[Embedding] Rejecting invalid vector", "chunk", chunk.PublicID, "err", validErr)
				if markErr := s.markFailed(ctx, batch[i:i+1]); markErr != nil {
					return markErr
				}
				failedUnits = append(failedUnits, chunk.PublicID)
				continue
			}
			if saveErr := s.store.SetChunkEmbedding(ctx, chunk.ID, vectors[i]); saveErr != nil {
				return saveErr
			}
			embedded++
		}
		return nil
	})
	if err != nil {
		return embedded, failedUnits, err
	}

	if embedded == 0 {
		return 0, failedUnits, fmt.Errorf("%w: embedding failed for every chunk of document %d", common.ErrExternalService, documentID)
	}
	return embedded, failedUnits, nil
}

func (s *Service) embedBatch(ctx context.Context, batch []common.Chunk) ([][]float32, error) {
	inputs := make([][]byte, len(batch))
	for i, chunk := range batch {
		inputs[i] = []byte(chunk.Text)
	}

	var vectors [][]float32
	operation := func() error {
		var err error
		vectors, err = s.aiClient.GenerateEmbeddings(ctx, inputs)
		if err != nil {
			return err
		}
		if len(vectors) != len(batch) {
			return backoff.Permanent(fmt.Errorf("provider returned %d vectors for %d inputs", len(vectors), len(batch)))
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 10 * time.Second
	policy.MaxElapsedTime = 2 * time.Minute

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(s.maxRetries-1)),
		ctx,
	))
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

func (s *Service) markFailed(ctx context.Context, batch []common.Chunk) error {
	ids := make([]int64, len(batch))
	for i, chunk := range batch {
		ids[i] = chunk.ID
	}
	return s.store.SetChunkEmbeddingStatus(ctx, ids, common.EmbeddingFailed)
}
