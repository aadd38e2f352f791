package chunking

import (
	"context"
	"math"
	"strings"

	"github.com/tutorstack/backend/pkg/logger"
	"github.com/tutorstack/backend/pkg/store"
)

// topicSpan is a run of adjacent pages that share one topic. Boundaries are
// snapped to page granularity; no sub-page splitting occurs.
type topicSpan struct {
	Topic        string
	SectionTitle string
	KeyConcepts  []string
	StartPage    int // inclusive
	EndPage      int // exclusive
}

// buildTopicSpans runs phase 2: adjacent page labels are compared by
// embedding cosine similarity, and a boundary opens where the similarity
// drops below the configured threshold. Pages with a nil topic never open a
// boundary. Labels like "Mitochondria and ATP" and "ATP and Mitochondria"
// compare as the same topic, which literal string equality would miss.
func (s *Service) buildTopicSpans(
	ctx context.Context,
	pages []Page,
	pageTopics []pageTopic,
) ([]topicSpan, error) {
	if len(pages) == 0 {
		return nil, nil
	}

	same, err := s.labelComparer(ctx, pageTopics)
	if err != nil {
		return nil, err
	}

	var spans []topicSpan
	current := topicSpan{StartPage: 0}

	adopt := func(span *topicSpan, pt pageTopic) {
		if span.Topic == "" {
			span.Topic = pt.Topic
		}
		if span.SectionTitle == "" {
			span.SectionTitle = pt.SectionTitle
		}
		span.KeyConcepts = appendDistinct(span.KeyConcepts, pt.KeyConcepts)
	}
	adopt(&current, pageTopics[0])

	for i := 1; i < len(pages); i++ {
		pt := pageTopics[i]
		if pt.Topic == "" || current.Topic == "" || same(current.Topic, pt.Topic) {
			adopt(&current, pt)
			continue
		}

		current.EndPage = i
		spans = append(spans, current)
		current = topicSpan{StartPage: i}
		adopt(&current, pt)
	}
	current.EndPage = len(pages)
	spans = append(spans, current)

	return spans, nil
}

// labelComparer returns a semantic equality predicate over topic labels.
// Every distinct label is embedded in one batch; when embedding fails the
// comparer degrades to case-insensitive string equality so a provider
// hiccup cannot abort the document.
func (s *Service) labelComparer(ctx context.Context, pageTopics []pageTopic) (func(a, b string) bool, error) {
	literal := func(a, b string) bool {
		return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
	}

	var labels []string
	for _, pt := range pageTopics {
		if pt.Topic != "" {
			labels = append(labels, pt.Topic)
		}
	}
	labels = store.DedupeStrings(labels)
	if len(labels) < 2 {
		return literal, nil
	}

	inputs := make([][]byte, len(labels))
	for i, label := range labels {
		inputs[i] = []byte(label)
	}

	vectors, err := s.aiClient.GenerateEmbeddings(ctx, inputs)
	if err != nil || len(vectors) != len(labels) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("[Chunking] Label embedding failed, falling back to literal comparison", "err", err)
		return literal, nil
	}

	byLabel := make(map[string][]float32, len(labels))
	for i, label := range labels {
		byLabel[label] = vectors[i]
	}

	threshold := s.boundarySimilarity
	return func(a, b string) bool {
		if literal(a, b) {
			return true
		}
		va, okA := byLabel[a]
		vb, okB := byLabel[b]
		if !okA || !okB {
			return false
		}
		return cosineSimilarity(va, vb) >= threshold
	}, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func appendDistinct(dst []string, src []string) []string {
	for _, v := range src {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		exists := false
		for _, have := range dst {
			if strings.EqualFold(have, v) {
				exists = true
				break
			}
		}
		if !exists {
			dst = append(dst, v)
		}
	}
	return dst
}
