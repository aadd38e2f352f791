package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/tutorstack/backend/pkg/common"
	"github.com/tutorstack/backend/pkg/store"
)

// DefaultTopK is the result count used when a caller passes no limit.
const DefaultTopK = 10

// SearchSimilar embeds the query text and returns the topK most similar
// chunks by cosine similarity, restricted by the filter. Only chunks whose
// embedding completed participate.
func (s *Service) SearchSimilar(
	ctx context.Context,
	query string,
	filter store.SearchFilter,
	topK int,
) ([]common.ScoredChunk, error) {
	if query == "" {
		return nil, errors.New("query is empty")
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	vector, err := s.aiClient.GenerateEmbedding(ctx, []byte(query))
	if err != nil {
		return nil, fmt.Errorf("%w: embedding query: %v", common.ErrExternalService, err)
	}
	if err := ValidateVector(vector, s.dimensions); err != nil {
		return nil, err
	}

	return s.store.SearchSimilarChunks(ctx, vector, filter, topK)
}

// SearchByConcept searches for chunks explaining a key concept. The concept
// label is expanded into a descriptive query so short labels still embed
// close to explanatory prose.
func (s *Service) SearchByConcept(
	ctx context.Context,
	concept string,
	filter store.SearchFilter,
	topK int,
) ([]common.ScoredChunk, error) {
	if concept == "" {
		return nil, errors.New("concept is empty")
	}
	query := fmt.Sprintf("Key concept: %s. Definition, explanation and examples of %s.", concept, concept)
	return s.SearchSimilar(ctx, query, filter, topK)
}
