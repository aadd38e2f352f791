package quality

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tutorstack/backend/pkg/ai"
	"github.com/tutorstack/backend/pkg/common"
	"github.com/tutorstack/backend/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// CandidateScorer judges one candidate. Satisfied by *Scorer.
type CandidateScorer interface {
	Score(ctx context.Context, candidate common.Candidate, sourceExcerpt string) (*common.ScoreResult, error)
}

// ScoredCandidate pairs a candidate with its judgment. Score is nil when the
// scoring call itself failed; the failure reason is recorded as an issue.
type ScoredCandidate struct {
	Candidate common.Candidate   `json:"candidate"`
	Score     *common.ScoreResult `json:"score,omitempty"`
	Issues    []string            `json:"issues,omitempty"`
}

// Report is the outcome of one validation batch. Accepted holds at most
// targetCount candidates ranked by descending overall score; Shortfall is
// set when even refinement could not fill the target.
type Report struct {
	Accepted  []ScoredCandidate `json:"accepted"`
	Rejected  []ScoredCandidate `json:"rejected"`
	Refined   int               `json:"refined"`
	Shortfall bool              `json:"shortfall"`
}

// Validator filters candidate batches through the quality rubric. One
// candidate failing to score never aborts the batch; it is rejected with the
// failure recorded. Safe for concurrent use.
type Validator struct {
	scorer   CandidateScorer
	aiClient ai.Client

	threshold      float64
	parallelMax    int
	maxRefinements int
}

// NewValidatorParams configures a Validator. Zero values select the defaults
// noted on each field.
type NewValidatorParams struct {
	Scorer   CandidateScorer
	AIClient ai.Client

	Threshold      float64 // default common.DefaultAcceptThreshold
	ParallelMax    int     // default 5 concurrent scoring calls
	MaxRefinements int     // default 2 refinement passes on shortfall
}

// NewValidator creates a Validator.
func NewValidator(params NewValidatorParams) (*Validator, error) {
	if params.Scorer == nil {
		return nil, errors.New("scorer is nil")
	}
	if params.AIClient == nil {
		return nil, errors.New("ai client is nil")
	}

	v := &Validator{
		scorer:         params.Scorer,
		aiClient:       params.AIClient,
		threshold:      params.Threshold,
		parallelMax:    params.ParallelMax,
		maxRefinements: params.MaxRefinements,
	}
	if v.threshold <= 0 {
		v.threshold = common.DefaultAcceptThreshold
	}
	if v.parallelMax <= 0 {
		v.parallelMax = 5
	}
	if v.maxRefinements < 0 {
		v.maxRefinements = 0
	} else if v.maxRefinements == 0 {
		v.maxRefinements = 2
	}
	return v, nil
}

// ValidateBatch scores every candidate, accepts the top targetCount above
// the threshold, and on shortfall refines rejected candidates for up to
// MaxRefinements passes before reporting the gap.
func (v *Validator) ValidateBatch(
	ctx context.Context,
	candidates []common.Candidate,
	sourceExcerpt string,
	targetCount int,
) (*Report, error) {
	if targetCount <= 0 {
		return nil, errors.New("target count must be positive")
	}
	if len(candidates) == 0 {
		return &Report{Shortfall: true}, nil
	}

	scored, err := v.scoreAll(ctx, candidates, sourceExcerpt)
	if err != nil {
		return nil, err
	}

	passed, failed := v.partition(scored)

	for pass := 0; len(passed) < targetCount && pass < v.maxRefinements; pass++ {
		refinable := refinableCandidates(failed)
		if len(refinable) == 0 {
			break
		}
		logger.Info("[Quality] Refinement pass", "pass", pass+1, "shortfall", targetCount-len(passed), "refinable", len(refinable))

		refined, refineErr := v.refineAll(ctx, refinable, sourceExcerpt)
		if refineErr != nil {
			return nil, refineErr
		}

		rescored, scoreErr := v.scoreAll(ctx, refined, sourceExcerpt)
		if scoreErr != nil {
			return nil, scoreErr
		}

		newPassed, newFailed := v.partition(rescored)
		passed = append(passed, newPassed...)
		failed = replaceRefined(failed, newPassed, newFailed)
	}

	rankByScore(passed)
	report := &Report{Refined: countRefined(passed)}
	for i, sc := range passed {
		if i < targetCount {
			report.Accepted = append(report.Accepted, sc)
		} else {
			report.Rejected = append(report.Rejected, sc)
		}
	}
	report.Rejected = append(report.Rejected, failed...)
	report.Shortfall = len(report.Accepted) < targetCount

	logger.Info(
		"[Quality] Batch validated",
		"candidates", len(candidates),
		"accepted", len(report.Accepted),
		"rejected", len(report.Rejected),
		"shortfall", report.Shortfall,
	)
	return report, nil
}

// scoreAll scores candidates with bounded concurrency. A failed scoring call
// yields a ScoredCandidate with a nil score and the failure as an issue.
func (v *Validator) scoreAll(ctx context.Context, candidates []common.Candidate, sourceExcerpt string) ([]ScoredCandidate, error) {
	results := make([]ScoredCandidate, len(candidates))
	var mu sync.Mutex

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(v.parallelMax)
	for i, candidate := range candidates {
		idx, c := i, candidate
		g.Go(func() error {
			score, err := v.scorer.Score(gCtx, c, sourceExcerpt)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if gCtx.Err() != nil {
					return gCtx.Err()
				}
				logger.Warn("[Quality] Scoring failed, rejecting candidate", "candidate", c.ID, "err", err)
				results[idx] = ScoredCandidate{
					Candidate: c,
					Issues:    []string{fmt.Sprintf("scoring failed: %v", err)},
				}
				return nil
			}
			results[idx] = ScoredCandidate{Candidate: c, Score: score}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("validation aborted: %w", err)
	}
	return results, nil
}

func (v *Validator) partition(scored []ScoredCandidate) (passed, failed []ScoredCandidate) {
	for _, sc := range scored {
		if sc.Score != nil && sc.Score.Overall >= v.threshold {
			passed = append(passed, sc)
		} else {
			failed = append(failed, sc)
		}
	}
	return passed, failed
}

// refinement mirrors the structured output of one refinement call.
type refinement struct {
	Text        string   `json:"text" jsonschema_description:"Revised question or prompt text"`
	Answer      string   `json:"answer" jsonschema_description:"Revised answer"`
	Distractors []string `json:"distractors" jsonschema_description:"Revised distractors, empty if the item type has none"`
	Rationale   string   `json:"rationale" jsonschema_description:"Revised rationale"`
}

func (v *Validator) refineAll(ctx context.Context, scored []ScoredCandidate, sourceExcerpt string) ([]common.Candidate, error) {
	refined := make([]common.Candidate, 0, len(scored))
	var mu sync.Mutex

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(v.parallelMax)
	for _, sc := range scored {
		sc := sc
		g.Go(func() error {
			candidate, err := v.refineOne(gCtx, sc, sourceExcerpt)
			if err != nil {
				if gCtx.Err() != nil {
					return gCtx.Err()
				}
				logger.Warn("[Quality] Refinement failed, dropping candidate", "candidate", sc.Candidate.ID, "err", err)
				return nil
			}
			mu.Lock()
			refined = append(refined, candidate)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("refinement aborted: %w", err)
	}
	return refined, nil
}

func (v *Validator) refineOne(ctx context.Context, sc ScoredCandidate, sourceExcerpt string) (common.Candidate, error) {
	rendered, err := renderCandidate(sc.Candidate)
	if err != nil {
		return common.Candidate{}, err
	}
	prompt := fmt.Sprintf(
		ai.RefinePrompt,
		sourceExcerpt,
		sc.Candidate.Type,
		rendered,
		strings.Join(weakestDimensions(sc.Score, 3), ", "),
		strings.Join(allIssues(sc), "\n"),
	)

	var out refinement
	err = v.aiClient.GenerateCompletionWithFormat(
		ctx,
		"refined_item",
		"Revise a study item that failed quality review.",
		prompt,
		&out,
	)
	if err != nil {
		return common.Candidate{}, fmt.Errorf("%w: refining candidate %s: %v", common.ErrExternalService, sc.Candidate.ID, err)
	}

	candidate := sc.Candidate
	if out.Text != "" {
		candidate.Text = out.Text
	}
	if out.Answer != "" {
		candidate.Answer = out.Answer
	}
	if len(out.Distractors) > 0 {
		candidate.Distractors = out.Distractors
	}
	if out.Rationale != "" {
		candidate.Rationale = out.Rationale
	}
	if candidate.Extra == nil {
		candidate.Extra = map[string]string{}
	}
	candidate.Extra["refined"] = "true"
	return candidate, nil
}

// weakestDimensions names the n lowest-scoring rubric dimensions.
func weakestDimensions(score *common.ScoreResult, n int) []string {
	if score == nil {
		return nil
	}
	dims := append([]common.Dimension(nil), common.Dimensions...)
	sort.SliceStable(dims, func(i, j int) bool {
		return score.Dimensions[dims[i]] < score.Dimensions[dims[j]]
	})
	if n > len(dims) {
		n = len(dims)
	}
	names := make([]string, n)
	for i := 0; i < n; i++ {
		names[i] = string(dims[i])
	}
	return names
}

func allIssues(sc ScoredCandidate) []string {
	issues := append([]string(nil), sc.Issues...)
	if sc.Score != nil {
		issues = append(issues, sc.Score.Issues...)
	}
	if len(issues) == 0 {
		issues = []string{"overall score below the acceptance threshold"}
	}
	return issues
}

// refinableCandidates returns failed candidates that have a score to refine
// against. Candidates whose scoring call itself failed are left alone.
func refinableCandidates(failed []ScoredCandidate) []ScoredCandidate {
	var out []ScoredCandidate
	for _, sc := range failed {
		if sc.Score != nil {
			out = append(out, sc)
		}
	}
	return out
}

// replaceRefined swaps failed entries for their refined versions, keeping
// entries that were not refined (or failed again) in the rejected pool.
func replaceRefined(failed, newPassed, newFailed []ScoredCandidate) []ScoredCandidate {
	passedIDs := make(map[string]bool, len(newPassed))
	for _, sc := range newPassed {
		passedIDs[sc.Candidate.ID] = true
	}

	var out []ScoredCandidate
	for _, sc := range failed {
		if passedIDs[sc.Candidate.ID] {
			continue
		}
		replaced := false
		for _, nf := range newFailed {
			if nf.Candidate.ID == sc.Candidate.ID {
				out = append(out, nf)
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, sc)
		}
	}
	return out
}

func countRefined(scored []ScoredCandidate) int {
	n := 0
	for _, sc := range scored {
		if sc.Candidate.Extra["refined"] == "true" {
			n++
		}
	}
	return n
}

func rankByScore(scored []ScoredCandidate) {
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score.Overall > scored[j].Score.Overall
	})
}
