package usecase

import (
	"fmt"
	"sort"

	"github.com/kirillkom/clinical-ai-assistant/internal/core/domain"
)

type fusedCandidate struct {
	passage domain.GuidelinePassage
	score   float64
}

// fusePassagesRRF merges two ranked lists with reciprocal rank fusion:
// score(d) = sum over lists of 1/(rrfK + rank), 1-based ranks. A passage
// absent from one list simply contributes nothing for it. Ordering is
// deterministic for identical inputs.
func fusePassagesRRF(semantic, lexical []domain.GuidelinePassage, rrfK int) []domain.GuidelinePassage {
	if rrfK <= 0 {
		rrfK = 60
	}

	acc := make(map[string]fusedCandidate, len(semantic)+len(lexical))
	addList := func(passages []domain.GuidelinePassage) {
		for rank, passage := range passages {
			key := passageKey(passage)
			candidate := acc[key]
			candidate.passage = preferRicherPassage(candidate.passage, passage)
			candidate.score += 1.0 / float64(rrfK+rank+1)
			acc[key] = candidate
		}
	}

	addList(semantic)
	addList(lexical)

	out := make([]domain.GuidelinePassage, 0, len(acc))
	for _, c := range acc {
		passage := c.passage
		passage.Score = c.score
		out = append(out, passage)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].DocID != out[j].DocID {
			return out[i].DocID < out[j].DocID
		}
		if out[i].ChunkIndex != out[j].ChunkIndex {
			return out[i].ChunkIndex < out[j].ChunkIndex
		}
		return out[i].Filename < out[j].Filename
	})

	return out
}

func trimPassages(passages []domain.GuidelinePassage, limit int) []domain.GuidelinePassage {
	if limit <= 0 || len(passages) <= limit {
		return passages
	}
	return passages[:limit]
}

func passageKey(passage domain.GuidelinePassage) string {
	if passage.DocID != "" && passage.ChunkIndex >= 0 {
		return fmt.Sprintf("%s:%d", passage.DocID, passage.ChunkIndex)
	}
	return fmt.Sprintf("%s|%s|%s", passage.DocID, passage.Filename, passage.Text)
}

func preferRicherPassage(current, candidate domain.GuidelinePassage) domain.GuidelinePassage {
	if current.DocID == "" && current.Filename == "" && current.Text == "" {
		return candidate
	}
	if current.Text == "" && candidate.Text != "" {
		current.Text = candidate.Text
	}
	if current.Filename == "" && candidate.Filename != "" {
		current.Filename = candidate.Filename
	}
	if current.Section == "" && candidate.Section != "" {
		current.Section = candidate.Section
	}
	if current.EvidenceGrade == "" && candidate.EvidenceGrade != "" {
		current.EvidenceGrade = candidate.EvidenceGrade
	}
	if current.DocID == "" && candidate.DocID != "" {
		current.DocID = candidate.DocID
	}
	if current.ChunkIndex < 0 && candidate.ChunkIndex >= 0 {
		current.ChunkIndex = candidate.ChunkIndex
	}
	return current
}
