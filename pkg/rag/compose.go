package rag

import (
	"fmt"
	"strings"

	"github.com/tutorstack/backend/pkg/common"
)

// GenerationContext is the fully assembled prompt material: retrieved source
// chunks, few-shot exemplars from the style profile, and the scoring rubric.
type GenerationContext struct {
	Chunks     []common.ScoredChunk
	Exemplars  []common.Exemplar
	Rubric     string
	TokensUsed int
}

// ComposeGenerationContext merges retrieved chunks, style-profile exemplars
// and the rubric under the service token budget. The rubric is mandatory;
// when space runs out, chunks are dropped before exemplars, from the lowest
// rank upward. A rubric that alone exceeds the budget fails with
// ErrCapacityExceeded.
func (s *Service) ComposeGenerationContext(retrieved *Context, profile *common.StyleProfile) (*GenerationContext, error) {
	rubric := RubricText()
	used := s.counter.Count(rubric)
	if used > s.budget {
		return nil, fmt.Errorf("rubric of %d tokens: %w", used, common.ErrCapacityExceeded)
	}

	out := &GenerationContext{Rubric: rubric}

	if profile != nil {
		for _, exemplar := range profile.Exemplars {
			cost := s.counter.Count(exemplar.Candidate.Text) + s.counter.Count(exemplar.Candidate.Answer)
			if used+cost > s.budget {
				break
			}
			out.Exemplars = append(out.Exemplars, exemplar)
			used += cost
		}
	}

	if retrieved != nil {
		for _, scored := range retrieved.Chunks {
			cost := s.chunkTokens(scored.Chunk)
			if used+cost > s.budget {
				break
			}
			out.Chunks = append(out.Chunks, scored)
			used += cost
		}
	}

	out.TokensUsed = used
	return out, nil
}

// RubricText renders the scoring rubric shared by generation and validation.
func RubricText() string {
	var b strings.Builder
	b.WriteString("Quality rubric. Score each dimension from 1 (poor) to 5 (excellent):\n")
	for _, dim := range common.Dimensions {
		fmt.Fprintf(&b, "- %s (weight %.2f)\n", dim, common.DimensionWeights[dim])
	}
	fmt.Fprintf(&b, "An item is acceptable when its weighted overall score reaches %.1f.\n", common.DefaultAcceptThreshold)
	return b.String()
}
