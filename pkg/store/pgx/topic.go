package pgx

import (
	"context"
	"fmt"

	"github.com/tutorstack/backend/internal/util"
	"github.com/tutorstack/backend/pkg/common"
	"github.com/tutorstack/backend/pkg/logger"
)

// ReplaceTopics swaps the document's derived topic set for the given one in
// a single transaction. Topics are derived data: a chunking rerun always
// rebuilds them from scratch.
func (s *ChunkDBStorage) ReplaceTopics(ctx context.Context, documentID int64, topics []common.Topic) error {
	logger.Debug("[Store][ReplaceTopics] Replacing document topics", "document_id", documentID, "topics", len(topics))

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM topics WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("failed to clear topics for document %d: %w", documentID, err)
	}

	const q = `
INSERT INTO topics (document_id, name, parent_id, chunk_ids, key_concepts, importance)
VALUES ($1, $2, $3, $4, $5, $6)`

	for _, topic := range topics {
		_, err := tx.Exec(ctx, q,
			documentID,
			util.SanitizePostgresText(topic.Name),
			topic.ParentID,
			topic.ChunkIDs,
			topic.KeyConcepts,
			topic.Importance,
		)
		if err != nil {
			return fmt.Errorf("failed to insert topic %q: %w", topic.Name, err)
		}
	}

	return tx.Commit(ctx)
}

// GetTopics returns the document's topics ordered by descending importance.
func (s *ChunkDBStorage) GetTopics(ctx context.Context, documentID int64) ([]common.Topic, error) {
	const q = `
SELECT id, document_id, name, parent_id, chunk_ids, key_concepts, importance
FROM topics
WHERE document_id = $1
ORDER BY importance DESC, name`

	rows, err := s.conn.Query(ctx, q, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load topics for document %d: %w", documentID, err)
	}
	defer rows.Close()

	var topics []common.Topic
	for rows.Next() {
		var t common.Topic
		err := rows.Scan(&t.ID, &t.DocumentID, &t.Name, &t.ParentID, &t.ChunkIDs, &t.KeyConcepts, &t.Importance)
		if err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

// ReplaceConceptMap swaps the document's concept co-occurrence index for the
// given one in a single transaction.
func (s *ChunkDBStorage) ReplaceConceptMap(ctx context.Context, conceptMap *common.ConceptMap) error {
	if conceptMap == nil {
		return nil
	}

	logger.Debug("[Store][ReplaceConceptMap] Replacing concept entries", "document_id", conceptMap.DocumentID, "concepts", len(conceptMap.Entries))

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM concept_entries WHERE document_id = $1`, conceptMap.DocumentID); err != nil {
		return fmt.Errorf("failed to clear concept entries for document %d: %w", conceptMap.DocumentID, err)
	}

	const q = `
INSERT INTO concept_entries (document_id, concept, chunk_ids, related_concepts)
VALUES ($1, $2, $3, $4)`

	for concept, entry := range conceptMap.Entries {
		_, err := tx.Exec(ctx, q,
			conceptMap.DocumentID,
			util.SanitizePostgresText(concept),
			entry.ChunkIDs,
			entry.RelatedConcepts,
		)
		if err != nil {
			return fmt.Errorf("failed to insert concept entry %q: %w", concept, err)
		}
	}

	return tx.Commit(ctx)
}
