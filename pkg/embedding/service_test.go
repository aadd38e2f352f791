package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/tutorstack/backend/pkg/ai"
	"github.com/tutorstack/backend/pkg/common"
	"github.com/tutorstack/backend/pkg/store"
)

type fakeAI struct {
	mu         sync.Mutex
	embed      func(call int, inputs [][]byte) ([][]float32, error)
	embedCalls int
}

func (f *fakeAI) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeAI) GenerateCompletionWithFormat(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	return errors.New("not implemented")
}

func (f *fakeAI) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	vectors, err := f.GenerateEmbeddings(ctx, [][]byte{input})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (f *fakeAI) GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error) {
	f.mu.Lock()
	call := f.embedCalls
	f.embedCalls++
	f.mu.Unlock()
	if f.embed == nil {
		return nil, errors.New("no embed handler")
	}
	return f.embed(call, inputs)
}

func (f *fakeAI) ResetMetrics()                {}
func (f *fakeAI) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

func unitVectors(n, dim int) [][]float32 {
	vectors := make([][]float32, n)
	for i := range vectors {
		v := make([]float32, dim)
		v[0] = 1
		vectors[i] = v
	}
	return vectors
}

type fakeStore struct {
	mu         sync.Mutex
	doc        *common.Document
	pending    []common.Chunk
	statuses   []common.ChunkingStatus
	embeddings map[int64][]float32
	failed     map[int64]bool

	searchResult []common.ScoredChunk
	searchVector []float32
	searchFilter store.SearchFilter
	searchTopK   int
}

func newFakeStore(doc *common.Document, pending []common.Chunk) *fakeStore {
	return &fakeStore{
		doc:        doc,
		pending:    pending,
		embeddings: map[int64][]float32{},
		failed:     map[int64]bool{},
	}
}

func (f *fakeStore) GetDocument(ctx context.Context, id int64) (*common.Document, error) {
	if f.doc == nil || f.doc.ID != id {
		return nil, fmt.Errorf("document %d not found", id)
	}
	doc := *f.doc
	return &doc, nil
}

func (f *fakeStore) SetDocumentStatus(ctx context.Context, id int64, next common.ChunkingStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, next)
	f.doc.Status = next
	return nil
}

func (f *fakeStore) GetChunksNeedingEmbedding(ctx context.Context, documentID int64) ([]common.Chunk, error) {
	return f.pending, nil
}

func (f *fakeStore) SetChunkEmbedding(ctx context.Context, chunkID int64, embedding []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embeddings[chunkID] = embedding
	return nil
}

func (f *fakeStore) SetChunkEmbeddingStatus(ctx context.Context, chunkIDs []int64, status common.EmbeddingStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if status == common.EmbeddingFailed {
		for _, id := range chunkIDs {
			f.failed[id] = true
		}
	}
	return nil
}

func (f *fakeStore) SearchSimilarChunks(ctx context.Context, embedding []float32, filter store.SearchFilter, topK int) ([]common.ScoredChunk, error) {
	f.searchVector = embedding
	f.searchFilter = filter
	f.searchTopK = topK
	return f.searchResult, nil
}

func pendingChunks(n int) []common.Chunk {
	chunks := make([]common.Chunk, n)
	for i := range chunks {
		chunks[i] = common.Chunk{
			ID:          int64(i + 1),
			PublicID:    fmt.Sprintf("chunk-%d", i+1),
			Text:        fmt.Sprintf("chunk text %d", i+1),
			EmbedStatus: common.EmbeddingPending,
		}
	}
	return chunks
}

func newTestService(t *testing.T, client ai.Client, st Storage) *Service {
	t.Helper()
	svc, err := NewService(NewServiceParams{
		AIClient:   client,
		Store:      st,
		Dimensions: 4,
		MaxRetries: 1,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestEmbedDocumentBatches(t *testing.T) {
	doc := &common.Document{ID: 1, Status: common.ChunkingChunked}
	st := newFakeStore(doc, pendingChunks(250))
	client := &fakeAI{embed: func(call int, inputs [][]byte) ([][]float32, error) {
		if len(inputs) > 100 {
			t.Errorf("batch of %d exceeds the 100-text cap", len(inputs))
		}
		return unitVectors(len(inputs), 4), nil
	}}

	embedded, err := newTestService(t, client, st).EmbedDocument(context.Background(), 1)
	if err != nil {
		t.Fatalf("EmbedDocument: %v", err)
	}
	if embedded != 250 {
		t.Errorf("embedded = %d, want 250", embedded)
	}
	if client.embedCalls != 3 {
		t.Errorf("provider calls = %d, want 3", client.embedCalls)
	}
	if len(st.embeddings) != 250 {
		t.Errorf("persisted vectors = %d", len(st.embeddings))
	}

	want := []common.ChunkingStatus{common.ChunkingEmbedding, common.ChunkingComplete}
	if len(st.statuses) != len(want) || st.statuses[0] != want[0] || st.statuses[1] != want[1] {
		t.Errorf("status transitions = %v", st.statuses)
	}
}

func TestEmbedDocumentBatchFailureIsolated(t *testing.T) {
	doc := &common.Document{ID: 2, Status: common.ChunkingChunked}
	st := newFakeStore(doc, pendingChunks(250))
	client := &fakeAI{embed: func(call int, inputs [][]byte) ([][]float32, error) {
		if call == 1 {
			return nil, errors.New("provider overloaded")
		}
		return unitVectors(len(inputs), 4), nil
	}}

	embedded, err := newTestService(t, client, st).EmbedDocument(context.Background(), 2)
	if embedded != 150 {
		t.Errorf("embedded = %d, want 150", embedded)
	}

	var partial *common.PartialFailure
	if !errors.As(err, &partial) {
		t.Fatalf("error = %v, want PartialFailure", err)
	}
	if partial.Failed != 100 || partial.Total != 250 {
		t.Errorf("partial = %d/%d, want 100/250", partial.Failed, partial.Total)
	}
	if len(st.failed) != 100 {
		t.Errorf("chunks marked failed = %d", len(st.failed))
	}
	if got := st.statuses[len(st.statuses)-1]; got != common.ChunkingComplete {
		t.Errorf("final status = %q, want complete", got)
	}
}

func TestEmbedDocumentAllBatchesFailed(t *testing.T) {
	doc := &common.Document{ID: 3, Status: common.ChunkingChunked}
	st := newFakeStore(doc, pendingChunks(10))
	client := &fakeAI{embed: func(call int, inputs [][]byte) ([][]float32, error) {
		return nil, errors.New("provider down")
	}}

	_, err := newTestService(t, client, st).EmbedDocument(context.Background(), 3)
	if !errors.Is(err, common.ErrExternalService) {
		t.Fatalf("error = %v, want ErrExternalService", err)
	}
	if got := st.statuses[len(st.statuses)-1]; got != common.ChunkingFailed {
		t.Errorf("final status = %q, want failed", got)
	}
}

func TestEmbedDocumentRejectsInvalidVector(t *testing.T) {
	doc := &common.Document{ID: 4, Status: common.ChunkingChunked}
	st := newFakeStore(doc, pendingChunks(3))
	client := &fakeAI{embed: func(call int, inputs [][]byte) ([][]float32, error) {
		vectors := unitVectors(len(inputs), 4)
		vectors[1] = []float32{0, 0, 0, 0}
		return vectors, nil
	}}

	embedded, err := newTestService(t, client, st).EmbedDocument(context.Background(), 4)
	if embedded != 2 {
		t.Errorf("embedded = %d, want 2", embedded)
	}
	var partial *common.PartialFailure
	if !errors.As(err, &partial) {
		t.Fatalf("error = %v, want PartialFailure", err)
	}
	if !st.failed[2] {
		t.Error("chunk with invalid vector not marked failed")
	}
}

func TestEmbedDocumentGuards(t *testing.T) {
	tests := []struct {
		name    string
		status  common.ChunkingStatus
		wantErr error
	}{
		{"busy chunking", common.ChunkingRunning, common.ErrChunkingInProgress},
		{"busy embedding", common.ChunkingEmbedding, common.ErrChunkingInProgress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newFakeStore(&common.Document{ID: 5, Status: tt.status}, nil)
			_, err := newTestService(t, &fakeAI{}, st).EmbedDocument(context.Background(), 5)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if len(st.statuses) != 0 {
				t.Error("guard wrote a status transition")
			}
		})
	}

	t.Run("not chunked yet", func(t *testing.T) {
		st := newFakeStore(&common.Document{ID: 6, Status: common.ChunkingPending}, nil)
		_, err := newTestService(t, &fakeAI{}, st).EmbedDocument(context.Background(), 6)
		if err == nil {
			t.Error("expected error for a document that was never chunked")
		}
	})
}

func TestEmbedDocumentNothingPending(t *testing.T) {
	doc := &common.Document{ID: 7, Status: common.ChunkingComplete}
	st := newFakeStore(doc, nil)

	embedded, err := newTestService(t, &fakeAI{}, st).EmbedDocument(context.Background(), 7)
	if err != nil {
		t.Fatalf("EmbedDocument: %v", err)
	}
	if embedded != 0 {
		t.Errorf("embedded = %d, want 0", embedded)
	}
	if got := st.statuses[len(st.statuses)-1]; got != common.ChunkingComplete {
		t.Errorf("final status = %q, want complete", got)
	}
}

func TestSearchSimilar(t *testing.T) {
	st := newFakeStore(&common.Document{ID: 8}, nil)
	st.searchResult = []common.ScoredChunk{{Chunk: common.Chunk{PublicID: "hit"}, Score: 0.92}}
	client := &fakeAI{embed: func(call int, inputs [][]byte) ([][]float32, error) {
		return unitVectors(len(inputs), 4), nil
	}}
	svc := newTestService(t, client, st)

	filter := store.SearchFilter{CategoryID: 11, DocumentIDs: []int64{1, 2}}
	results, err := svc.SearchSimilar(context.Background(), "how does osmosis work", filter, 5)
	if err != nil {
		t.Fatalf("SearchSimilar: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.PublicID != "hit" {
		t.Errorf("results = %v", results)
	}
	if st.searchTopK != 5 || st.searchFilter.CategoryID != 11 {
		t.Errorf("search called with topK=%d filter=%+v", st.searchTopK, st.searchFilter)
	}

	if _, err := svc.SearchSimilar(context.Background(), "", filter, 5); err == nil {
		t.Error("empty query should fail")
	}
}

func TestSearchByConceptExpandsQuery(t *testing.T) {
	st := newFakeStore(&common.Document{ID: 9}, nil)
	var captured string
	client := &fakeAI{embed: func(call int, inputs [][]byte) ([][]float32, error) {
		captured = string(inputs[0])
		return unitVectors(len(inputs), 4), nil
	}}
	svc := newTestService(t, client, st)

	if _, err := svc.SearchByConcept(context.Background(), "osmosis", store.SearchFilter{}, 0); err != nil {
		t.Fatalf("SearchByConcept: %v", err)
	}
	if !strings.Contains(captured, "osmosis") {
		t.Errorf("query %q does not mention the concept", captured)
	}
	if st.searchTopK != DefaultTopK {
		t.Errorf("topK = %d, want default", st.searchTopK)
	}
}
