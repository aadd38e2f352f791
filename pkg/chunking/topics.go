package chunking

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tutorstack/backend/pkg/ai"
	"github.com/tutorstack/backend/pkg/common"
	"github.com/tutorstack/backend/pkg/logger"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
)

// pageTopic is the structured judgment for one page. A zero value (empty
// Topic) marks a page whose detection failed or was skipped.
type pageTopic struct {
	Topic        string   `json:"topic" jsonschema_description:"Short topic label covering the whole page"`
	SectionTitle string   `json:"section_title" jsonschema_description:"Heading of the section starting on this page, empty if none"`
	KeyConcepts  []string `json:"key_concepts" jsonschema_description:"Up to 8 key concepts a student must learn from this page"`
}

// detectPageTopics runs phase 1: one topic-detection call per page with
// bounded concurrency. Each page retries with exponential backoff; a page
// that exhausts its retries degrades to a nil topic and is reported in the
// failed list. Only a fully failed run (no page succeeded) aborts the
// document.
func (s *Service) detectPageTopics(
	ctx context.Context,
	doc *common.Document,
	pages []Page,
) ([]pageTopic, []int, error) {
	results := make([]pageTopic, len(pages))
	var failed []int
	var failedMu sync.Mutex

	detectable := 0
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelMax)
	for _, page := range pages {
		if page.Blank() {
			continue
		}
		detectable++

		p := page
		g.Go(func() error {
			topic, err := s.detectOnePage(gCtx, doc, p, len(pages))
			if err != nil {
				if gCtx.Err() != nil {
					return gCtx.Err()
				}
				logger.Warn("[Chunking] Topic detection exhausted retries, degrading to nil topic", "document_id", doc.ID, "page", p.Index, "err", err)
				failedMu.Lock()
				failed = append(failed, p.Index)
				failedMu.Unlock()
				return nil
			}
			results[p.Index] = *topic
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("topic detection aborted: %w", err)
	}

	if detectable > 0 && len(failed) == detectable {
		return nil, nil, fmt.Errorf("%w: topic detection failed for every page of document %d", common.ErrExternalService, doc.ID)
	}

	sort.Ints(failed)
	return results, failed, nil
}

func (s *Service) detectOnePage(
	ctx context.Context,
	doc *common.Document,
	page Page,
	totalPages int,
) (*pageTopic, error) {
	prompt := fmt.Sprintf(ai.TopicDetectPrompt, page.Index+1, totalPages, doc.Title, page.Text)

	var out pageTopic
	operation := func() error {
		out = pageTopic{}
		return s.aiClient.GenerateCompletionWithFormat(
			ctx,
			"page_topic",
			"Detect the topic and key concepts of one document page.",
			prompt,
			&out,
		)
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
	return &out, nil
}
