package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tutorstack/backend/internal/util"
	"github.com/tutorstack/backend/pkg/chunking"
	"github.com/tutorstack/backend/pkg/common"
	"github.com/tutorstack/backend/pkg/embedding"
	"github.com/tutorstack/backend/pkg/leaselock"
	"github.com/tutorstack/backend/pkg/logger"
	"github.com/tutorstack/backend/pkg/store"

	"github.com/rabbitmq/amqp091-go"
)

// documentLeaseTTL bounds how long a crashed worker can block a document
// before another worker may take it over.
const documentLeaseTTL = 10 * time.Minute

func documentLockKey(documentID int64) string {
	return fmt.Sprintf("document:%d", documentID)
}

// ProcessChunkMessage runs the chunking pipeline for the document named in
// the message. The per-document lease serializes workers; a successful run
// publishes the follow-up embedding job.
func ProcessChunkMessage(
	ctx context.Context,
	st store.Store,
	chunker *chunking.Service,
	locks *leaselock.Client,
	ch *amqp091.Channel,
	msgBody string,
) error {
	var msg ChunkJobMsg
	if err := json.Unmarshal([]byte(msgBody), &msg); err != nil {
		return fmt.Errorf("failed to unmarshal chunk job: %w", err)
	}
	if msg.DocumentID <= 0 {
		return fmt.Errorf("chunk job carries no document id: %q", msgBody)
	}

	return locks.WithLease(ctx, documentLockKey(msg.DocumentID), leaselock.Options{TTL: documentLeaseTTL}, func(ctx context.Context) error {
		if err := recoverStaleDocument(ctx, st, msg.DocumentID); err != nil {
			return err
		}

		result, err := chunker.ChunkDocument(ctx, msg.DocumentID)
		if err != nil {
			return fmt.Errorf("chunking document %d: %w", msg.DocumentID, err)
		}
		if len(result.FailedPages) > 0 {
			logger.Warn("[Queue] Chunked with degraded pages", "document_id", msg.DocumentID, "failed_pages", result.FailedPages)
		}

		embedMsg, err := json.Marshal(EmbedJobMsg{
			Message:    "Document chunked",
			DocumentID: msg.DocumentID,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal embed job: %w", err)
		}
		if err := PublishFIFO(ch, EmbedQueue, embedMsg); err != nil {
			return fmt.Errorf("failed to publish embed job for document %d: %w", msg.DocumentID, err)
		}
		return nil
	})
}

// ProcessEmbedMessage embeds every pending chunk of the document named in
// the message. Partial failures complete the job; the failed chunks stay
// marked for the next rerun.
func ProcessEmbedMessage(
	ctx context.Context,
	st store.Store,
	embedder *embedding.Service,
	locks *leaselock.Client,
	msgBody string,
) error {
	var msg EmbedJobMsg
	if err := json.Unmarshal([]byte(msgBody), &msg); err != nil {
		return fmt.Errorf("failed to unmarshal embed job: %w", err)
	}
	if msg.DocumentID <= 0 {
		return fmt.Errorf("embed job carries no document id: %q", msgBody)
	}

	return locks.WithLease(ctx, documentLockKey(msg.DocumentID), leaselock.Options{TTL: documentLeaseTTL}, func(ctx context.Context) error {
		if err := recoverStaleDocument(ctx, st, msg.DocumentID); err != nil {
			return err
		}

		embedded, err := embedder.EmbedDocument(ctx, msg.DocumentID)

		var partial *common.PartialFailure
		if errors.As(err, &partial) {
			logger.Warn(
				"[Queue] Embedding completed partially",
				"document_id", msg.DocumentID,
				"embedded", embedded,
				"failed", partial.Failed,
			)
			return nil
		}
		if err != nil {
			return fmt.Errorf("embedding document %d: %w", msg.DocumentID, err)
		}
		return nil
	})
}

// recoverStaleDocument resets a document stuck in a busy state. The caller
// holds the document lease, so a busy status can only be the leftover of a
// crashed run.
func recoverStaleDocument(ctx context.Context, st store.Store, documentID int64) error {
	doc, err := util.RetryWithContext(ctx, 3, func(ctx context.Context) (*common.Document, error) {
		return st.GetDocument(ctx, documentID)
	})
	if err != nil {
		return err
	}
	if !doc.Status.Busy() {
		return nil
	}

	logger.Warn("[Queue] Resetting stale document state", "document_id", documentID, "status", doc.Status)
	return st.SetDocumentStatus(ctx, documentID, common.ChunkingFailed)
}
