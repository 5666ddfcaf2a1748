package usecase

import (
	"context"
	"sort"

	"github.com/kirillkom/clinical-ai-assistant/internal/core/domain"
	"github.com/kirillkom/clinical-ai-assistant/internal/core/ports"
)

// rerankPassages scores every (query, passage) pair with the
// cross-encoder and re-sorts descending, truncated to topN. The blocking
// scorer call is funneled through the shared pool so concurrent requests
// cannot oversubscribe the model. Any failure falls back to the fused
// order, trimmed, with skipped=true.
func rerankPassages(
	ctx context.Context,
	scorer ports.RelevanceScorer,
	pool ports.WorkerPool,
	query string,
	fused []domain.GuidelinePassage,
	topN int,
) ([]domain.GuidelinePassage, bool) {
	if len(fused) == 0 {
		return fused, false
	}
	if topN <= 0 || topN > len(fused) {
		topN = len(fused)
	}
	if scorer == nil {
		return trimPassages(fused, topN), true
	}

	texts := make([]string, len(fused))
	for i, passage := range fused {
		texts[i] = passage.Text
	}

	scores, err := scorePairsPooled(ctx, scorer, pool, query, texts)
	if err != nil || len(scores) != len(fused) {
		return trimPassages(fused, topN), true
	}

	scored := make([]domain.GuidelinePassage, len(fused))
	copy(scored, fused)
	for i := range scored {
		scored[i].Score = scores[i]
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if scored[i].DocID != scored[j].DocID {
			return scored[i].DocID < scored[j].DocID
		}
		if scored[i].ChunkIndex != scored[j].ChunkIndex {
			return scored[i].ChunkIndex < scored[j].ChunkIndex
		}
		return scored[i].Filename < scored[j].Filename
	})

	return trimPassages(scored, topN), false
}

// scorePairsPooled runs the scorer on the shared pool and waits under
// the request context. A nil pool degrades to a direct call.
func scorePairsPooled(
	ctx context.Context,
	scorer ports.RelevanceScorer,
	pool ports.WorkerPool,
	query string,
	texts []string,
) ([]float64, error) {
	if pool == nil {
		return scorer.ScorePairs(ctx, query, texts)
	}

	type scoreResult struct {
		scores []float64
		err    error
	}
	done := make(chan scoreResult, 1)
	if err := pool.Submit(func() {
		scores, err := scorer.ScorePairs(ctx, query, texts)
		done <- scoreResult{scores: scores, err: err}
	}); err != nil {
		return nil, err
	}

	select {
	case res := <-done:
		return res.scores, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
