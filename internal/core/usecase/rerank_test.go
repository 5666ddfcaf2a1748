package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/clinical-ai-assistant/internal/core/domain"
)

type scorerFake struct {
	scores []float64
	err    error
	calls  int
	texts  []string
}

func (f *scorerFake) ScorePairs(_ context.Context, _ string, texts []string) ([]float64, error) {
	f.calls++
	f.texts = texts
	if f.err != nil {
		return nil, f.err
	}
	return f.scores, nil
}

type poolFake struct {
	submitErr error
	submitted int
}

func (f *poolFake) Submit(task func()) error {
	if f.submitErr != nil {
		return f.submitErr
	}
	f.submitted++
	task()
	return nil
}

func (f *poolFake) Running() int { return 0 }

func TestRerankOrdersByModelScore(t *testing.T) {
	fused := []domain.GuidelinePassage{passage("a", 0), passage("b", 0), passage("c", 0)}
	scorer := &scorerFake{scores: []float64{0.1, 0.9, 0.5}}
	pool := &poolFake{}

	got, skipped := rerankPassages(context.Background(), scorer, pool, "q", fused, 2)
	if skipped {
		t.Fatalf("expected rerank to run")
	}
	if pool.submitted != 1 {
		t.Fatalf("expected scoring through the pool, submitted=%d", pool.submitted)
	}
	if len(got) != 2 {
		t.Fatalf("expected truncation to 2, got %d", len(got))
	}
	if got[0].DocID != "b" || got[1].DocID != "c" {
		t.Fatalf("expected order b, c; got %s, %s", got[0].DocID, got[1].DocID)
	}
	if got[0].Score != 0.9 {
		t.Fatalf("expected model score on output, got %v", got[0].Score)
	}
}

func TestRerankTieBreaksByDocID(t *testing.T) {
	fused := []domain.GuidelinePassage{passage("zeta", 0), passage("alpha", 0)}
	scorer := &scorerFake{scores: []float64{0.5, 0.5}}

	got, skipped := rerankPassages(context.Background(), scorer, &poolFake{}, "q", fused, 0)
	if skipped {
		t.Fatalf("expected rerank to run")
	}
	if got[0].DocID != "alpha" || got[1].DocID != "zeta" {
		t.Fatalf("expected lexicographic tiebreak, got %s, %s", got[0].DocID, got[1].DocID)
	}
}

func TestRerankSkipsOnScorerError(t *testing.T) {
	fused := []domain.GuidelinePassage{passage("a", 0), passage("b", 0), passage("c", 0)}
	scorer := &scorerFake{err: errors.New("model down")}

	got, skipped := rerankPassages(context.Background(), scorer, &poolFake{}, "q", fused, 2)
	if !skipped {
		t.Fatalf("expected skip on scorer error")
	}
	if len(got) != 2 || got[0].DocID != "a" || got[1].DocID != "b" {
		t.Fatalf("expected fused order passthrough, got %+v", got)
	}
}

func TestRerankSkipsOnScoreCountMismatch(t *testing.T) {
	fused := []domain.GuidelinePassage{passage("a", 0), passage("b", 0)}
	scorer := &scorerFake{scores: []float64{0.4}}

	_, skipped := rerankPassages(context.Background(), scorer, &poolFake{}, "q", fused, 2)
	if !skipped {
		t.Fatalf("expected skip on score/candidate mismatch")
	}
}

func TestRerankSkipsWithoutScorer(t *testing.T) {
	fused := []domain.GuidelinePassage{passage("a", 0), passage("b", 0)}

	got, skipped := rerankPassages(context.Background(), nil, &poolFake{}, "q", fused, 1)
	if !skipped {
		t.Fatalf("expected skip without scorer")
	}
	if len(got) != 1 || got[0].DocID != "a" {
		t.Fatalf("expected trimmed passthrough, got %+v", got)
	}
}

func TestRerankSkipsOnPoolRejection(t *testing.T) {
	fused := []domain.GuidelinePassage{passage("a", 0)}
	scorer := &scorerFake{scores: []float64{0.9}}
	pool := &poolFake{submitErr: errors.New("pool full")}

	got, skipped := rerankPassages(context.Background(), scorer, pool, "q", fused, 1)
	if !skipped {
		t.Fatalf("expected skip when pool rejects the task")
	}
	if scorer.calls != 0 {
		t.Fatalf("scorer must not run when pool rejects, calls=%d", scorer.calls)
	}
	if len(got) != 1 || got[0].DocID != "a" {
		t.Fatalf("expected passthrough, got %+v", got)
	}
}

func TestRerankScoresAllCandidates(t *testing.T) {
	fused := []domain.GuidelinePassage{passage("a", 0), passage("b", 0), passage("c", 0)}
	scorer := &scorerFake{scores: []float64{0.1, 0.2, 0.99}}

	got, skipped := rerankPassages(context.Background(), scorer, &poolFake{}, "q", fused, 1)
	if skipped {
		t.Fatalf("expected rerank to run")
	}
	if len(scorer.texts) != 3 {
		t.Fatalf("expected all candidates scored, got %d", len(scorer.texts))
	}
	if len(got) != 1 || got[0].DocID != "c" {
		t.Fatalf("a low-RRF candidate with the best model score must win, got %+v", got)
	}
}
