package usecase

import (
	"reflect"
	"testing"

	"github.com/kirillkom/clinical-ai-assistant/internal/core/domain"
)

func passage(docID string, chunk int) domain.GuidelinePassage {
	return domain.GuidelinePassage{DocID: docID, ChunkIndex: chunk, Text: "text-" + docID}
}

func TestFuseRRFBothListsOutrankSingleList(t *testing.T) {
	semantic := []domain.GuidelinePassage{passage("shared", 0), passage("semantic-only", 0)}
	lexical := []domain.GuidelinePassage{passage("shared", 0), passage("lexical-only", 0)}

	fused := fusePassagesRRF(semantic, lexical, 60)
	if len(fused) != 3 {
		t.Fatalf("expected 3 fused passages, got %d", len(fused))
	}
	if fused[0].DocID != "shared" {
		t.Fatalf("expected shared doc first, got %s", fused[0].DocID)
	}

	wantShared := 2.0 / 61.0
	if fused[0].Score != wantShared {
		t.Fatalf("expected shared score %v, got %v", wantShared, fused[0].Score)
	}
	for _, p := range fused[1:] {
		if p.Score >= fused[0].Score {
			t.Fatalf("single-list doc %s outranked the shared doc", p.DocID)
		}
	}
}

func TestFuseRRFSingleSourceSurvives(t *testing.T) {
	semantic := []domain.GuidelinePassage{passage("a", 0), passage("b", 0)}

	fused := fusePassagesRRF(semantic, nil, 60)
	if len(fused) != 2 {
		t.Fatalf("expected 2 passages, got %d", len(fused))
	}
	if fused[0].DocID != "a" || fused[1].DocID != "b" {
		t.Fatalf("expected semantic order preserved, got %s, %s", fused[0].DocID, fused[1].DocID)
	}
	if fused[0].Score != 1.0/61.0 || fused[1].Score != 1.0/62.0 {
		t.Fatalf("unexpected single-source scores: %v, %v", fused[0].Score, fused[1].Score)
	}
}

func TestFuseRRFTieBreaksByDocID(t *testing.T) {
	semantic := []domain.GuidelinePassage{passage("zeta", 0)}
	lexical := []domain.GuidelinePassage{passage("alpha", 0)}

	fused := fusePassagesRRF(semantic, lexical, 60)
	if len(fused) != 2 {
		t.Fatalf("expected 2 passages, got %d", len(fused))
	}
	if fused[0].DocID != "alpha" || fused[1].DocID != "zeta" {
		t.Fatalf("expected lexicographic tiebreak, got %s, %s", fused[0].DocID, fused[1].DocID)
	}
}

func TestFuseRRFDeterministic(t *testing.T) {
	semantic := []domain.GuidelinePassage{passage("a", 0), passage("b", 1), passage("c", 2)}
	lexical := []domain.GuidelinePassage{passage("c", 2), passage("d", 0), passage("a", 0)}

	first := fusePassagesRRF(semantic, lexical, 60)
	for i := 0; i < 20; i++ {
		again := fusePassagesRRF(semantic, lexical, 60)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("fusion order changed between runs:\nfirst: %+v\nagain: %+v", first, again)
		}
	}
}

func TestFuseRRFMergesMetadataAcrossLists(t *testing.T) {
	semantic := []domain.GuidelinePassage{{DocID: "doc", ChunkIndex: 3, Text: "正文"}}
	lexical := []domain.GuidelinePassage{{DocID: "doc", ChunkIndex: 3, Section: "用药安全", EvidenceGrade: "A", Filename: "指南.pdf"}}

	fused := fusePassagesRRF(semantic, lexical, 60)
	if len(fused) != 1 {
		t.Fatalf("expected merged single passage, got %d", len(fused))
	}
	got := fused[0]
	if got.Text != "正文" || got.Section != "用药安全" || got.EvidenceGrade != "A" || got.Filename != "指南.pdf" {
		t.Fatalf("metadata not merged: %+v", got)
	}
}

func TestTrimPassages(t *testing.T) {
	passages := []domain.GuidelinePassage{passage("a", 0), passage("b", 0), passage("c", 0)}
	if got := trimPassages(passages, 2); len(got) != 2 {
		t.Fatalf("expected 2 passages, got %d", len(got))
	}
	if got := trimPassages(passages, 0); len(got) != 3 {
		t.Fatalf("expected no trim for limit 0, got %d", len(got))
	}
	if got := trimPassages(passages, 10); len(got) != 3 {
		t.Fatalf("expected no trim past length, got %d", len(got))
	}
}
