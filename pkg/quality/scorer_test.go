package quality

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/tutorstack/backend/pkg/ai"
	"github.com/tutorstack/backend/pkg/common"
)

type fakeAI struct {
	mu     sync.Mutex
	format func(name, prompt string, out any) error
	calls  int
}

func (f *fakeAI) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeAI) GenerateCompletionWithFormat(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.format == nil {
		return errors.New("no format handler")
	}
	return f.format(name, prompt, out)
}

func (f *fakeAI) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAI) GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAI) ResetMetrics()                {}
func (f *fakeAI) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

func uniformScores(v float64) rubricScores {
	return rubricScores{
		Clarity: v, ContentAccuracy: v, AnswerAccuracy: v, DistractorQuality: v,
		CognitiveMatch: v, RationaleQuality: v, SingleConceptFocus: v, CoverTest: v,
		CognitiveLevel: "recall", Issues: []string{},
	}
}

func TestScoreWeightedOverall(t *testing.T) {
	client := &fakeAI{format: func(name, prompt string, out any) error {
		scores := uniformScores(3)
		scores.ContentAccuracy = 5 // weight 0.20
		*(out.(*rubricScores)) = scores
		return nil
	}}
	scorer, err := NewScorer(client)
	if err != nil {
		t.Fatalf("NewScorer: %v", err)
	}

	result, err := scorer.Score(context.Background(), common.Candidate{ID: "q1", Type: "quiz"}, "source")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}

	want := 3.0 + 2.0*0.20
	if diff := result.Overall - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("overall = %v, want %v", result.Overall, want)
	}
	if len(result.Dimensions) != len(common.Dimensions) {
		t.Errorf("dimensions = %d, want %d", len(result.Dimensions), len(common.Dimensions))
	}
	if result.CognitiveLevel != "recall" {
		t.Errorf("cognitive level = %q", result.CognitiveLevel)
	}
}

func TestScoreClampsOutOfRange(t *testing.T) {
	client := &fakeAI{format: func(name, prompt string, out any) error {
		scores := uniformScores(4)
		scores.Clarity = 7
		scores.CoverTest = 0
		*(out.(*rubricScores)) = scores
		return nil
	}}
	scorer, _ := NewScorer(client)

	result, err := scorer.Score(context.Background(), common.Candidate{ID: "q2"}, "source")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if result.Dimensions[common.DimClarity] != common.MaxScore {
		t.Errorf("clarity = %v, want clamped to %v", result.Dimensions[common.DimClarity], common.MaxScore)
	}
	if result.Dimensions[common.DimCoverTest] != common.MinScore {
		t.Errorf("cover test = %v, want clamped to %v", result.Dimensions[common.DimCoverTest], common.MinScore)
	}
	if len(result.Issues) != 2 {
		t.Errorf("issues = %v, want 2 clamp flags", result.Issues)
	}
}

func TestScoreMonotonicity(t *testing.T) {
	score := func(v float64) float64 {
		client := &fakeAI{format: func(name, prompt string, out any) error {
			*(out.(*rubricScores)) = uniformScores(v)
			return nil
		}}
		scorer, _ := NewScorer(client)
		result, err := scorer.Score(context.Background(), common.Candidate{ID: "m"}, "source")
		if err != nil {
			t.Fatalf("Score: %v", err)
		}
		return result.Overall
	}

	prev := score(1)
	for _, v := range []float64{2, 3, 4, 5} {
		cur := score(v)
		if cur <= prev {
			t.Errorf("overall not monotone: f(%v)=%v <= previous %v", v, cur, prev)
		}
		prev = cur
	}
}

func TestScorePromptCarriesSourceAndCandidate(t *testing.T) {
	var captured string
	client := &fakeAI{format: func(name, prompt string, out any) error {
		captured = prompt
		*(out.(*rubricScores)) = uniformScores(3)
		return nil
	}}
	scorer, _ := NewScorer(client)

	candidate := common.Candidate{ID: "q3", Type: "flashcard", Text: "What is osmosis?"}
	if _, err := scorer.Score(context.Background(), candidate, "the source excerpt"); err != nil {
		t.Fatalf("Score: %v", err)
	}
	if !strings.Contains(captured, "the source excerpt") || !strings.Contains(captured, "What is osmosis?") {
		t.Error("prompt missing source excerpt or candidate text")
	}
}

func TestScoreProviderFailure(t *testing.T) {
	client := &fakeAI{format: func(name, prompt string, out any) error {
		return errors.New("provider down")
	}}
	scorer, _ := NewScorer(client)

	_, err := scorer.Score(context.Background(), common.Candidate{ID: "q4"}, "source")
	if !errors.Is(err, common.ErrExternalService) {
		t.Errorf("error = %v, want ErrExternalService", err)
	}
}
