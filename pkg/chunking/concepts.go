package chunking

import (
	"sort"

	"github.com/tutorstack/backend/pkg/common"
)

// tagChunks runs phase 4 topic tagging. A chunk carries every topic whose
// page span overlaps the chunk's original offsets, not just the span it
// started in. Importance is the fraction of the document's chunks a topic
// covers.
func tagChunks(documentID int64, chunks []*common.Chunk, spans []topicSpan, pages []Page) []common.Topic {
	topics := make([]common.Topic, 0, len(spans))

	for _, span := range spans {
		spanStart := pages[span.StartPage].Start
		spanEnd := pages[span.EndPage-1].End

		topic := common.Topic{
			DocumentID:  documentID,
			Name:        span.Topic,
			ChunkIDs:    []string{},
			KeyConcepts: span.KeyConcepts,
			Importance:  0,
		}
		if topic.KeyConcepts == nil {
			topic.KeyConcepts = []string{}
		}

		for _, chunk := range chunks {
			if chunk.StartOffset < spanEnd && chunk.EndOffset > spanStart {
				topic.ChunkIDs = append(topic.ChunkIDs, chunk.PublicID)
				chunk.Topics = append(chunk.Topics, span.Topic)
			}
		}

		if len(chunks) > 0 {
			topic.Importance = float64(len(topic.ChunkIDs)) / float64(len(chunks))
		}
		topics = append(topics, topic)
	}

	return topics
}

// buildConceptMap indexes key concepts across chunks: which chunks mention
// each concept and which other concepts share a chunk with it.
func buildConceptMap(documentID int64, chunks []*common.Chunk) *common.ConceptMap {
	entries := make(map[string]common.ConceptEntry)

	for _, chunk := range chunks {
		for _, concept := range chunk.KeyConcepts {
			entry, ok := entries[concept]
			if !ok {
				entry = common.ConceptEntry{
					ChunkIDs:        []string{},
					RelatedConcepts: []string{},
				}
			}
			entry.ChunkIDs = append(entry.ChunkIDs, chunk.PublicID)
			for _, other := range chunk.KeyConcepts {
				if other != concept {
					entry.RelatedConcepts = appendDistinct(entry.RelatedConcepts, []string{other})
				}
			}
			entries[concept] = entry
		}
	}

	for concept, entry := range entries {
		sort.Strings(entry.RelatedConcepts)
		entries[concept] = entry
	}

	return &common.ConceptMap{DocumentID: documentID, Entries: entries}
}
