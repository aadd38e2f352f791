package pgx

import (
	"context"
	"errors"
	"fmt"

	"github.com/tutorstack/backend/pkg/common"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrIllegalTransition is returned when a document status update is refused
// because the stored state does not allow the requested transition.
var ErrIllegalTransition = errors.New("illegal document status transition")

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// ChunkDBStorage implements store.Store using PostgreSQL with pgvector for
// vector similarity search. All values are passed as bound parameters.
type ChunkDBStorage struct {
	conn pgxIConn
	dim  int
}

// NewChunkDBStorage creates a ChunkDBStorage on an existing connection or
// pool. dim is the configured embedding dimensionality; vectors of any other
// length are rejected before they reach the database.
func NewChunkDBStorage(conn pgxIConn, dim int) (*ChunkDBStorage, error) {
	if conn == nil {
		return nil, errors.New("conn is nil")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("invalid embedding dimensionality: %d", dim)
	}
	return &ChunkDBStorage{conn: conn, dim: dim}, nil
}

// GetDocument loads a single document row.
func (s *ChunkDBStorage) GetDocument(ctx context.Context, id int64) (*common.Document, error) {
	const q = `
SELECT id, category_id, title, text, chunking_status, total_chunks, total_tokens
FROM documents
WHERE id = $1`

	var doc common.Document
	err := s.conn.QueryRow(ctx, q, id).Scan(
		&doc.ID,
		&doc.CategoryID,
		&doc.Title,
		&doc.Text,
		&doc.Status,
		&doc.TotalChunks,
		&doc.TotalTokens,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load document %d: %w", id, err)
	}
	return &doc, nil
}

// SetDocumentStatus transitions the document to next, guarded in SQL by the
// set of states that may legally precede next. The guard runs inside the
// UPDATE so two concurrent runs cannot both win the same transition.
func (s *ChunkDBStorage) SetDocumentStatus(ctx context.Context, id int64, next common.ChunkingStatus) error {
	allowed := common.StatesAllowing(next)
	if len(allowed) == 0 {
		return fmt.Errorf("%w: nothing transitions to %q", ErrIllegalTransition, next)
	}

	const q = `
UPDATE documents
SET chunking_status = $2, updated_at = now()
WHERE id = $1 AND chunking_status = ANY($3)`

	from := make([]string, 0, len(allowed))
	for _, st := range allowed {
		from = append(from, string(st))
	}

	tag, err := s.conn.Exec(ctx, q, id, string(next), from)
	if err != nil {
		return fmt.Errorf("failed to update document %d status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: document %d cannot enter %q", ErrIllegalTransition, id, next)
	}
	return nil
}

// SetDocumentTotals records the chunk and token totals computed by a
// completed chunking run.
func (s *ChunkDBStorage) SetDocumentTotals(ctx context.Context, id int64, totalChunks, totalTokens int) error {
	const q = `
UPDATE documents
SET total_chunks = $2, total_tokens = $3, updated_at = now()
WHERE id = $1`

	_, err := s.conn.Exec(ctx, q, id, totalChunks, totalTokens)
	if err != nil {
		return fmt.Errorf("failed to update document %d totals: %w", id, err)
	}
	return nil
}
