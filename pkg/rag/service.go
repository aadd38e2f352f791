package rag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tutorstack/backend/pkg/common"
	"github.com/tutorstack/backend/pkg/logger"
	"github.com/tutorstack/backend/pkg/store"
	"github.com/tutorstack/backend/pkg/tokens"
)

// Searcher answers similarity queries over embedded chunks. Satisfied by
// *embedding.Service.
type Searcher interface {
	SearchSimilar(ctx context.Context, query string, filter store.SearchFilter, topK int) ([]common.ScoredChunk, error)
}

// Request describes what content the caller wants to generate items from.
// Explicit Topics take precedence over the synthesized description; each
// topic becomes its own subquery and the merged results are deduplicated.
type Request struct {
	ItemCount   int
	ItemType    string // "quiz" or "flashcard"
	Difficulty  string
	Topics      []string
	CategoryID  int64
	DocumentIDs []int64
}

// Context is the retrieval result handed to generation: ranked chunks that
// fit the token budget, plus the queries that produced them.
type Context struct {
	Chunks     []common.ScoredChunk
	TokensUsed int
	Queries    []string
}

// Service retrieves source material for item generation under a token
// budget. Safe for concurrent use.
type Service struct {
	searcher Searcher
	counter  tokens.Counter

	topK   int
	budget int
	cache  *queryCache
}

// NewServiceParams configures a RAG Service. Zero values select the defaults
// noted on each field.
type NewServiceParams struct {
	Searcher Searcher
	Counter  tokens.Counter

	TopK        int           // default 20 chunks fetched per subquery
	TokenBudget int           // default 6000 tokens of retrieved context
	CacheSize   int           // default 256 cached retrievals
	CacheTTL    time.Duration // default 15m
}

// NewService creates a RAG Service.
func NewService(params NewServiceParams) (*Service, error) {
	if params.Searcher == nil {
		return nil, errors.New("searcher is nil")
	}
	if params.Counter == nil {
		return nil, errors.New("token counter is nil")
	}

	s := &Service{
		searcher: params.Searcher,
		counter:  params.Counter,
		topK:     params.TopK,
		budget:   params.TokenBudget,
		cache:    newQueryCache(params.CacheSize, params.CacheTTL),
	}
	if s.topK <= 0 {
		s.topK = 20
	}
	if s.budget <= 0 {
		s.budget = 6000
	}
	return s, nil
}

// RetrieveContext fetches the most relevant chunks for the request and
// accumulates them in rank order until the token budget is reached. The
// first chunk that would overflow the budget is excluded and accumulation
// stops there, keeping the result a rank-order prefix.
func (s *Service) RetrieveContext(ctx context.Context, req Request) (*Context, error) {
	queries := buildQueries(req)
	if len(queries) == 0 {
		return nil, errors.New("request yields no query")
	}

	filter := store.SearchFilter{CategoryID: req.CategoryID, DocumentIDs: req.DocumentIDs}
	key := requestKey(queries, filter)
	if cached, ok := s.cache.get(key); ok {
		logger.Debug("[RAG] Cache hit", "queries", len(queries))
		return cached, nil
	}

	merged, err := s.searchAll(ctx, queries, filter)
	if err != nil {
		return nil, err
	}

	result := &Context{Queries: queries}
	for _, scored := range merged {
		cost := s.chunkTokens(scored.Chunk)
		if result.TokensUsed+cost > s.budget {
			break
		}
		result.Chunks = append(result.Chunks, scored)
		result.TokensUsed += cost
	}

	s.cache.set(key, result)
	logger.Info(
		"[RAG] Context retrieved",
		"queries", len(queries),
		"candidates", len(merged),
		"included", len(result.Chunks),
		"tokens", result.TokensUsed,
	)
	return result, nil
}

// searchAll runs every subquery, deduplicates by chunk identity keeping the
// best score, and returns the union ordered by descending score.
func (s *Service) searchAll(ctx context.Context, queries []string, filter store.SearchFilter) ([]common.ScoredChunk, error) {
	best := make(map[string]common.ScoredChunk)
	for _, query := range queries {
		results, err := s.searcher.SearchSimilar(ctx, query, filter, s.topK)
		if err != nil {
			return nil, fmt.Errorf("subquery %q: %w", query, err)
		}
		for _, scored := range results {
			have, ok := best[scored.Chunk.PublicID]
			if !ok || scored.Score > have.Score {
				best[scored.Chunk.PublicID] = scored
			}
		}
	}

	merged := make([]common.ScoredChunk, 0, len(best))
	for _, scored := range best {
		merged = append(merged, scored)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].Chunk.PublicID < merged[j].Chunk.PublicID
	})
	return merged, nil
}

func (s *Service) chunkTokens(chunk common.Chunk) int {
	if chunk.TokenCount > 0 {
		return chunk.TokenCount
	}
	return s.counter.Count(chunk.Text)
}

func buildQueries(req Request) []string {
	topics := store.DedupeStrings(trimAll(req.Topics))
	if len(topics) > 0 {
		queries := make([]string, len(topics))
		for i, topic := range topics {
			queries[i] = fmt.Sprintf("Educational content about %s: definitions, explanations and examples.", topic)
		}
		return queries
	}

	itemType := req.ItemType
	if itemType == "" {
		itemType = "quiz"
	}
	difficulty := req.Difficulty
	if difficulty == "" {
		difficulty = "medium"
	}
	return []string{fmt.Sprintf(
		"Core concepts, definitions and explanations suitable for %s items at %s difficulty.",
		itemType, difficulty,
	)}
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		out = append(out, strings.TrimSpace(v))
	}
	return out
}

func requestKey(queries []string, filter store.SearchFilter) string {
	parts := make([]string, 0, len(queries)+2)
	for _, q := range queries {
		parts = append(parts, strings.ToLower(strings.TrimSpace(q)))
	}
	sort.Strings(parts)
	parts = append(parts, strconv.FormatInt(filter.CategoryID, 10))
	ids := append([]int64(nil), filter.DocumentIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return cacheKey(parts...)
}
