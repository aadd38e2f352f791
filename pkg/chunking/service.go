package chunking

import (
	"context"
	"errors"
	"fmt"

	"github.com/tutorstack/backend/pkg/ai"
	"github.com/tutorstack/backend/pkg/common"
	"github.com/tutorstack/backend/pkg/logger"
	"github.com/tutorstack/backend/pkg/tokens"
)

// Storage is the slice of the persistence layer the chunker needs.
type Storage interface {
	GetDocument(ctx context.Context, id int64) (*common.Document, error)
	SetDocumentStatus(ctx context.Context, id int64, next common.ChunkingStatus) error
	SetDocumentTotals(ctx context.Context, id int64, totalChunks, totalTokens int) error
	SaveChunks(ctx context.Context, chunks []*common.Chunk) error
	GetChunks(ctx context.Context, documentID int64) ([]common.Chunk, error)
	MaxChunkOrdinal(ctx context.Context, documentID int64) (int, error)
	ReplaceTopics(ctx context.Context, documentID int64, topics []common.Topic) error
	ReplaceConceptMap(ctx context.Context, conceptMap *common.ConceptMap) error
}

// Result holds everything one chunking run derives from a document.
type Result struct {
	Chunks      []*common.Chunk
	Topics      []common.Topic
	ConceptMap  *common.ConceptMap
	TotalTokens int
	// FailedPages lists page indexes whose topic detection exhausted its
	// retries. Their chunks carry no topic but are complete otherwise.
	FailedPages []int
}

// Service splits documents into topic-tagged, token-bounded, overlapping
// chunks. A Service is safe for concurrent use across documents; per
// document, runs are serialized through the document status guard.
type Service struct {
	aiClient ai.Client
	store    Storage
	counter  tokens.Counter

	targetTokens       int
	minTokens          int
	maxTokens          int
	overlapTokens      int
	pageTokens         int
	parallelMax        int
	maxRetries         int
	boundarySimilarity float64
}

// NewServiceParams configures a chunking Service. Zero values select the
// defaults noted on each field.
type NewServiceParams struct {
	AIClient ai.Client
	Store    Storage
	Counter  tokens.Counter

	TargetTokens       int     // default 1000
	MinTokens          int     // default 500
	MaxTokens          int     // default 1500
	OverlapTokens      int     // default 100
	PageTokens         int     // default 400; paragraph-grouping page size
	ParallelMax        int     // default 10 concurrent topic-detection calls
	MaxRetries         int     // default 3 attempts per page
	BoundarySimilarity float64 // default 0.80 label cosine similarity
}

// NewService creates a chunking Service.
func NewService(params NewServiceParams) (*Service, error) {
	if params.AIClient == nil {
		return nil, errors.New("ai client is nil")
	}
	if params.Store == nil {
		return nil, errors.New("store is nil")
	}
	if params.Counter == nil {
		return nil, errors.New("token counter is nil")
	}

	s := &Service{
		aiClient: params.AIClient,
		store:    params.Store,
		counter:  params.Counter,

		targetTokens:       params.TargetTokens,
		minTokens:          params.MinTokens,
		maxTokens:          params.MaxTokens,
		overlapTokens:      params.OverlapTokens,
		pageTokens:         params.PageTokens,
		parallelMax:        params.ParallelMax,
		maxRetries:         params.MaxRetries,
		boundarySimilarity: params.BoundarySimilarity,
	}
	if s.targetTokens <= 0 {
		s.targetTokens = 1000
	}
	if s.minTokens <= 0 {
		s.minTokens = 500
	}
	if s.maxTokens <= 0 {
		s.maxTokens = 1500
	}
	if s.overlapTokens <= 0 {
		s.overlapTokens = 100
	}
	if s.pageTokens <= 0 {
		s.pageTokens = 400
	}
	if s.parallelMax <= 0 {
		s.parallelMax = 10
	}
	if s.maxRetries <= 0 {
		s.maxRetries = 3
	}
	if s.boundarySimilarity <= 0 || s.boundarySimilarity > 1 {
		s.boundarySimilarity = 0.80
	}
	return s, nil
}

// ChunkDocument runs the full chunking pipeline for one document: per-page
// topic detection, boundary refinement, chunk formation with overlap, and
// multi-topic tagging with a concept map. Progress is checkpointed per
// chunk, so rerunning a failed document skips already-persisted chunks.
//
// Documents currently owned by another run are rejected with
// common.ErrChunkingInProgress.
func (s *Service) ChunkDocument(ctx context.Context, documentID int64) (*Result, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Status.Busy() {
		return nil, fmt.Errorf("document %d: %w", documentID, common.ErrChunkingInProgress)
	}
	if !doc.Status.Runnable() {
		return nil, fmt.Errorf("document %d in state %q: %w", documentID, doc.Status, common.ErrChunkingInProgress)
	}

	if err := s.store.SetDocumentStatus(ctx, documentID, common.ChunkingRunning); err != nil {
		return nil, err
	}

	result, err := s.run(ctx, doc)
	if err != nil {
		if statusErr := s.store.SetDocumentStatus(ctx, documentID, common.ChunkingFailed); statusErr != nil {
			logger.Error("[Chunking] Failed to mark document as failed", "document_id", documentID, "err", statusErr)
		}
		return nil, err
	}

	if err := s.store.SetDocumentStatus(ctx, documentID, common.ChunkingChunked); err != nil {
		return nil, err
	}
	if err := s.store.SetDocumentTotals(ctx, documentID, len(result.Chunks), result.TotalTokens); err != nil {
		return nil, err
	}

	logger.Info(
		"[Chunking] Document chunked",
		"document_id", documentID,
		"chunks", len(result.Chunks),
		"topics", len(result.Topics),
		"total_tokens", result.TotalTokens,
		"failed_pages", len(result.FailedPages),
	)
	return result, nil
}

func (s *Service) run(ctx context.Context, doc *common.Document) (*Result, error) {
	pages := SplitPages(doc.Text, s.counter, s.pageTokens)
	if len(pages) == 0 {
		return &Result{ConceptMap: &common.ConceptMap{DocumentID: doc.ID, Entries: map[string]common.ConceptEntry{}}}, nil
	}

	// Phase 1: per-page topic detection, bounded concurrency, failures
	// degrade to a nil topic instead of aborting the document.
	pageTopics, failedPages, err := s.detectPageTopics(ctx, doc, pages)
	if err != nil {
		return nil, err
	}

	// Phase 2: boundary refinement by semantic label similarity.
	spans, err := s.buildTopicSpans(ctx, pages, pageTopics)
	if err != nil {
		return nil, err
	}

	// Phase 3: chunk formation with overlap. Local computation only.
	chunks := s.formChunks(doc, pages, spans, pageTopics)

	// On a resumed run, chunks up to the checkpoint keep their persisted
	// public IDs so the derived topic and concept data stays consistent.
	checkpoint, err := s.adoptPersistedIDs(ctx, doc.ID, chunks)
	if err != nil {
		return nil, err
	}

	// Phase 4: multi-topic tagging and concept co-occurrence map.
	topics := tagChunks(doc.ID, chunks, spans, pages)
	conceptMap := buildConceptMap(doc.ID, chunks)

	totalTokens := 0
	for _, chunk := range chunks {
		totalTokens += chunk.TokenCount
	}

	if err := s.persist(ctx, doc.ID, checkpoint, chunks, topics, conceptMap); err != nil {
		return nil, err
	}

	return &Result{
		Chunks:      chunks,
		Topics:      topics,
		ConceptMap:  conceptMap,
		TotalTokens: totalTokens,
		FailedPages: failedPages,
	}, nil
}

// adoptPersistedIDs rewrites the minted public IDs of chunks at or below the
// persisted checkpoint to the IDs already in storage. It returns the
// checkpoint ordinal, -1 when the document has no chunks yet.
func (s *Service) adoptPersistedIDs(ctx context.Context, documentID int64, chunks []*common.Chunk) (int, error) {
	checkpoint, err := s.store.MaxChunkOrdinal(ctx, documentID)
	if err != nil {
		return 0, err
	}
	if checkpoint < 0 {
		return checkpoint, nil
	}

	persisted, err := s.store.GetChunks(ctx, documentID)
	if err != nil {
		return 0, err
	}
	byOrdinal := make(map[int]string, len(persisted))
	for _, c := range persisted {
		byOrdinal[c.Ordinal] = c.PublicID
	}
	for _, chunk := range chunks {
		if chunk.Ordinal > checkpoint {
			continue
		}
		if id, ok := byOrdinal[chunk.Ordinal]; ok {
			chunk.PublicID = id
		}
	}
	return checkpoint, nil
}

// persist saves chunks past the last checkpoint, then rebuilds the derived
// topic and concept data.
func (s *Service) persist(
	ctx context.Context,
	documentID int64,
	checkpoint int,
	chunks []*common.Chunk,
	topics []common.Topic,
	conceptMap *common.ConceptMap,
) error {
	toSave := make([]*common.Chunk, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk.Ordinal <= checkpoint {
			continue
		}
		toSave = append(toSave, chunk)
	}
	if checkpoint >= 0 && len(toSave) < len(chunks) {
		logger.Info("[Chunking] Resuming from checkpoint", "document_id", documentID, "checkpoint", checkpoint, "remaining", len(toSave))
	}

	if err := s.store.SaveChunks(ctx, toSave); err != nil {
		return err
	}
	if err := s.store.ReplaceTopics(ctx, documentID, topics); err != nil {
		return err
	}
	return s.store.ReplaceConceptMap(ctx, conceptMap)
}
