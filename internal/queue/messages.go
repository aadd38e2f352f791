package queue

// ChunkJobMsg requests the chunking pipeline for one document.
type ChunkJobMsg struct {
	Message    string `json:"message"`
	DocumentID int64  `json:"document_id"`
}

// EmbedJobMsg requests embedding for a chunked document.
type EmbedJobMsg struct {
	Message    string `json:"message"`
	DocumentID int64  `json:"document_id"`
}
