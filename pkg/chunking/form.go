package chunking

import (
	"strconv"

	"github.com/tutorstack/backend/pkg/common"
	"github.com/tutorstack/backend/pkg/logger"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// formChunks runs phase 3: pages are merged into token-bounded chunks. Topic
// boundaries close a chunk once it has reached the minimum size; remainders
// below the minimum are carried into the next chunk so only the final chunk
// of a document may fall under the lower bound. Every chunk after the first
// is prefixed with the tail of the previous chunk's original content; the
// recorded offsets always describe the original, non-overlapped span.
func (s *Service) formChunks(
	doc *common.Document,
	pages []Page,
	spans []topicSpan,
	pageTopics []pageTopic,
) []*common.Chunk {
	spanEnd := make(map[int]bool, len(spans))
	spanOfPage := make([]int, len(pages))
	for spanIdx, span := range spans {
		spanEnd[span.EndPage-1] = true
		for p := span.StartPage; p < span.EndPage; p++ {
			spanOfPage[p] = spanIdx
		}
	}

	// TokenCount includes the overlap prefix, so the original content of a
	// chunk must leave headroom for it to stay under the upper bound.
	maxOriginal := s.maxTokens - s.overlapTokens
	if maxOriginal <= 0 {
		maxOriginal = s.maxTokens
	}

	var chunks []*common.Chunk
	var prevOriginal string

	firstPage := -1
	curTokens := 0

	flush := func(lastPage int) {
		if firstPage < 0 {
			return
		}

		start := pages[firstPage].Start
		end := pages[lastPage].End
		original := doc.Text[start:end]

		text := original
		if len(chunks) > 0 {
			// The overlap tail is the suffix of the document text right
			// before this span, so plain concatenation keeps the chunk
			// readable without duplicating separators.
			text = s.counter.Tail(prevOriginal, s.overlapTokens) + original
		}

		publicID, err := gonanoid.New()
		if err != nil {
			// nanoid only fails when the OS entropy source does; fall back
			// to a deterministic id rather than dropping the chunk.
			logger.Error("[Chunking] Failed to generate chunk id", "err", err)
			publicID = chunkFallbackID(doc.ID, len(chunks))
		}

		span := spans[spanOfPage[firstPage]]
		chunk := &common.Chunk{
			PublicID:     publicID,
			DocumentID:   doc.ID,
			Ordinal:      len(chunks),
			Text:         text,
			TokenCount:   s.counter.Count(text),
			StartOffset:  start,
			EndOffset:    end,
			SectionTitle: sectionTitle(pageTopics, firstPage, lastPage, span),
			PrimaryTopic: span.Topic,
			Topics:       []string{},
			KeyConcepts:  pageConcepts(pageTopics, firstPage, lastPage),
			EmbedStatus:  common.EmbeddingPending,
		}
		chunks = append(chunks, chunk)

		prevOriginal = original
		firstPage = -1
		curTokens = 0
	}

	for i, page := range pages {
		pageTokens := s.counter.Count(page.Text)

		if firstPage >= 0 && curTokens+pageTokens > maxOriginal {
			flush(i - 1)
		}
		if firstPage < 0 {
			firstPage = i
		}
		curTokens += pageTokens

		if curTokens >= s.targetTokens {
			flush(i)
			continue
		}
		if spanEnd[i] && curTokens >= s.minTokens {
			flush(i)
		}
	}
	flush(len(pages) - 1)

	return chunks
}

func sectionTitle(pageTopics []pageTopic, firstPage, lastPage int, span topicSpan) string {
	for p := firstPage; p <= lastPage && p < len(pageTopics); p++ {
		if pageTopics[p].SectionTitle != "" {
			return pageTopics[p].SectionTitle
		}
	}
	return span.SectionTitle
}

func pageConcepts(pageTopics []pageTopic, firstPage, lastPage int) []string {
	var concepts []string
	for p := firstPage; p <= lastPage && p < len(pageTopics); p++ {
		concepts = appendDistinct(concepts, pageTopics[p].KeyConcepts)
	}
	if concepts == nil {
		concepts = []string{}
	}
	return concepts
}

func chunkFallbackID(documentID int64, ordinal int) string {
	return "chunk-" + strconv.FormatInt(documentID, 10) + "-" + strconv.Itoa(ordinal)
}
