package common

// ChunkingStatus is the document-level processing state. Transitions are
// closed: use CanTransition before persisting a change.
type ChunkingStatus string

const (
	ChunkingPending   ChunkingStatus = "pending"
	ChunkingRunning   ChunkingStatus = "chunking"
	ChunkingChunked   ChunkingStatus = "chunked"
	ChunkingEmbedding ChunkingStatus = "embedding"
	ChunkingComplete  ChunkingStatus = "complete"
	ChunkingFailed    ChunkingStatus = "failed"
)

var chunkingTransitions = map[ChunkingStatus][]ChunkingStatus{
	ChunkingPending:   {ChunkingRunning},
	ChunkingRunning:   {ChunkingChunked, ChunkingFailed},
	ChunkingChunked:   {ChunkingEmbedding, ChunkingRunning},
	ChunkingEmbedding: {ChunkingComplete, ChunkingFailed},
	ChunkingComplete:  {ChunkingRunning, ChunkingEmbedding},
	ChunkingFailed:    {ChunkingRunning, ChunkingEmbedding},
}

// CanTransition reports whether moving from s to next is a legal document
// state change. Re-indexing re-enters "chunking" from chunked, complete or
// failed; embedding may be rerun from complete or failed.
func (s ChunkingStatus) CanTransition(next ChunkingStatus) bool {
	for _, allowed := range chunkingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// StatesAllowing returns every state from which next is a legal transition,
// in a stable order. Storage layers use it to guard status updates in SQL.
func StatesAllowing(next ChunkingStatus) []ChunkingStatus {
	order := []ChunkingStatus{
		ChunkingPending,
		ChunkingRunning,
		ChunkingChunked,
		ChunkingEmbedding,
		ChunkingComplete,
		ChunkingFailed,
	}
	var out []ChunkingStatus
	for _, from := range order {
		if from.CanTransition(next) {
			out = append(out, from)
		}
	}
	return out
}

// Runnable reports whether a chunking run may start in this state.
func (s ChunkingStatus) Runnable() bool {
	return s == ChunkingPending || s == ChunkingFailed || s == ChunkingChunked ||
		s == ChunkingComplete
}

// Busy reports whether another run currently owns the document.
func (s ChunkingStatus) Busy() bool {
	return s == ChunkingRunning || s == ChunkingEmbedding
}

// EmbeddingStatus is the per-chunk embedding state.
type EmbeddingStatus string

const (
	EmbeddingPending  EmbeddingStatus = "pending"
	EmbeddingComplete EmbeddingStatus = "complete"
	EmbeddingFailed   EmbeddingStatus = "failed"
)

// NeedsEmbedding reports whether a rerun should process this chunk.
func (s EmbeddingStatus) NeedsEmbedding() bool {
	return s == EmbeddingPending || s == EmbeddingFailed
}
