package quality

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tutorstack/backend/pkg/common"
	"github.com/tutorstack/backend/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// maxExemplars bounds how many reference items a style profile carries for
// few-shot prompting.
const maxExemplars = 5

// ProfileBuilder derives a StyleProfile from existing reference items of a
// content collection, using the same rubric the validator applies to new
// candidates so the scores stay comparable.
type ProfileBuilder struct {
	scorer      CandidateScorer
	parallelMax int
}

// NewProfileBuilder creates a ProfileBuilder. parallelMax bounds concurrent
// scoring calls; values below 1 select the default of 5.
func NewProfileBuilder(scorer CandidateScorer, parallelMax int) (*ProfileBuilder, error) {
	if scorer == nil {
		return nil, errors.New("scorer is nil")
	}
	if parallelMax <= 0 {
		parallelMax = 5
	}
	return &ProfileBuilder{scorer: scorer, parallelMax: parallelMax}, nil
}

// Build scores the reference items and assembles the profile: the top items
// reaching the exemplar threshold become few-shot exemplars, per-dimension
// averages over all scored references form the criteria summary, and the
// distinct cognitive levels describe what the collection targets. A
// collection with no qualifying reference fails; a profile must never carry
// mediocre exemplars.
func (b *ProfileBuilder) Build(
	ctx context.Context,
	categoryID int64,
	refs []common.Candidate,
) (*common.StyleProfile, error) {
	if len(refs) == 0 {
		return nil, errors.New("no reference items")
	}

	type scoredRef struct {
		candidate common.Candidate
		score     *common.ScoreResult
	}
	var scored []scoredRef
	var mu sync.Mutex

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(b.parallelMax)
	for _, ref := range refs {
		ref := ref
		g.Go(func() error {
			// Reference items are judged against their own text: they are
			// assumed grounded, the rubric here measures style and rigor.
			score, err := b.scorer.Score(gCtx, ref, ref.Text)
			if err != nil {
				if gCtx.Err() != nil {
					return gCtx.Err()
				}
				logger.Warn("[Quality] Skipping unscorable reference item", "candidate", ref.ID, "err", err)
				return nil
			}
			mu.Lock()
			scored = append(scored, scoredRef{candidate: ref, score: score})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("profile build aborted: %w", err)
	}
	if len(scored) == 0 {
		return nil, fmt.Errorf("%w: no reference item could be scored", common.ErrExternalService)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score.Overall > scored[j].score.Overall
	})

	profile := &common.StyleProfile{
		CategoryID:      categoryID,
		CriteriaSummary: map[common.Dimension]float64{},
	}

	for _, sr := range scored {
		if sr.score.Overall < common.ExemplarThreshold || len(profile.Exemplars) >= maxExemplars {
			break
		}
		profile.Exemplars = append(profile.Exemplars, common.Exemplar{
			Candidate: sr.candidate,
			Score:     *sr.score,
		})
	}
	if len(profile.Exemplars) == 0 {
		return nil, fmt.Errorf("no reference item of category %d reaches the exemplar threshold %.1f", categoryID, common.ExemplarThreshold)
	}

	for _, dim := range common.Dimensions {
		var sum float64
		for _, sr := range scored {
			sum += sr.score.Dimensions[dim]
		}
		profile.CriteriaSummary[dim] = sum / float64(len(scored))
	}

	seen := map[string]bool{}
	for _, sr := range scored {
		level := sr.score.CognitiveLevel
		if level == "" || seen[level] {
			continue
		}
		seen[level] = true
		profile.CognitiveLevels = append(profile.CognitiveLevels, level)
	}
	sort.Strings(profile.CognitiveLevels)

	logger.Info(
		"[Quality] Style profile built",
		"category_id", categoryID,
		"references", len(refs),
		"exemplars", len(profile.Exemplars),
	)
	return profile, nil
}
