package quality

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tutorstack/backend/pkg/ai"
	"github.com/tutorstack/backend/pkg/common"
)

// rubricScores mirrors the structured output of one scoring call.
type rubricScores struct {
	Clarity            float64  `json:"clarity" jsonschema_description:"Item is unambiguous, grammatical, understandable on first read (1-5)"`
	ContentAccuracy    float64  `json:"content_accuracy" jsonschema_description:"Every factual claim is supported by the source excerpt (1-5)"`
	AnswerAccuracy     float64  `json:"answer_accuracy" jsonschema_description:"The marked answer is correct per the source excerpt (1-5)"`
	DistractorQuality  float64  `json:"distractor_quality" jsonschema_description:"Wrong options are plausible and clearly incorrect (1-5)"`
	CognitiveMatch     float64  `json:"cognitive_level_match" jsonschema_description:"Exercised mental skill matches the difficulty (1-5)"`
	RationaleQuality   float64  `json:"rationale_quality" jsonschema_description:"Explanation justifies the answer from the source (1-5)"`
	SingleConceptFocus float64  `json:"single_concept_focus" jsonschema_description:"Item tests exactly one concept (1-5)"`
	CoverTest          float64  `json:"cover_test" jsonschema_description:"Question is answerable without seeing the options (1-5)"`
	CognitiveLevel     string   `json:"cognitive_level" jsonschema_description:"One of recall, understand, apply, analyze, evaluate"`
	Issues             []string `json:"issues" jsonschema_description:"Concrete defects found, empty if none"`
}

// Scorer judges candidate items against the fixed 8-dimension rubric using
// one structured AI call per candidate.
type Scorer struct {
	aiClient ai.Client
}

// NewScorer creates a Scorer.
func NewScorer(aiClient ai.Client) (*Scorer, error) {
	if aiClient == nil {
		return nil, errors.New("ai client is nil")
	}
	return &Scorer{aiClient: aiClient}, nil
}

// Score judges one candidate against the source excerpt it must be grounded
// in. Dimension values outside [1,5] are clamped and flagged as issues; the
// overall score is the fixed weighted sum of the dimensions.
func (s *Scorer) Score(ctx context.Context, candidate common.Candidate, sourceExcerpt string) (*common.ScoreResult, error) {
	rendered, err := renderCandidate(candidate)
	if err != nil {
		return nil, err
	}
	prompt := fmt.Sprintf(ai.ScorePrompt, sourceExcerpt, candidate.Type, rendered)

	var raw rubricScores
	err = s.aiClient.GenerateCompletionWithFormat(
		ctx,
		"rubric_scores",
		"Score one study item on the 8-dimension quality rubric.",
		prompt,
		&raw,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: scoring candidate %s: %v", common.ErrExternalService, candidate.ID, err)
	}

	result := &common.ScoreResult{
		Dimensions:     map[common.Dimension]float64{},
		CognitiveLevel: raw.CognitiveLevel,
		Issues:         raw.Issues,
	}
	if result.Issues == nil {
		result.Issues = []string{}
	}

	values := map[common.Dimension]float64{
		common.DimClarity:         raw.Clarity,
		common.DimContentAccuracy: raw.ContentAccuracy,
		common.DimAnswerAccuracy:  raw.AnswerAccuracy,
		common.DimDistractors:     raw.DistractorQuality,
		common.DimCognitiveMatch:  raw.CognitiveMatch,
		common.DimRationale:       raw.RationaleQuality,
		common.DimSingleConcept:   raw.SingleConceptFocus,
		common.DimCoverTest:       raw.CoverTest,
	}
	for _, dim := range common.Dimensions {
		value := values[dim]
		if value < common.MinScore || value > common.MaxScore {
			result.Issues = append(result.Issues, fmt.Sprintf("dimension %s returned out-of-range score %.2f", dim, value))
			value = clamp(value, common.MinScore, common.MaxScore)
		}
		result.Dimensions[dim] = value
		result.Overall += value * common.DimensionWeights[dim]
	}
	result.Overall = clamp(result.Overall, common.MinScore, common.MaxScore)

	return result, nil
}

func renderCandidate(candidate common.Candidate) (string, error) {
	data, err := json.MarshalIndent(candidate, "", "  ")
	if err != nil {
		return "", fmt.Errorf("rendering candidate %s: %w", candidate.ID, err)
	}
	return string(data), nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
