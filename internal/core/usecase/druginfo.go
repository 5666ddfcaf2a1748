package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/clinical-ai-assistant/internal/core/domain"
	"github.com/kirillkom/clinical-ai-assistant/internal/core/ports"
)

type DrugInfoUseCase struct {
	graph ports.GraphStore
	drugs domain.DrugAliases
}

func NewDrugInfoUseCase(graph ports.GraphStore, drugs domain.DrugAliases) *DrugInfoUseCase {
	return &DrugInfoUseCase{graph: graph, drugs: drugs}
}

// Lookup returns the drug entity with its classification, brands,
// indications, and attached rules. Brand names resolve through the
// alias table first, so 格华止 finds the 二甲双胍 node.
func (uc *DrugInfoUseCase) Lookup(ctx context.Context, name string) (*domain.DrugInfo, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "drug info", errors.New("empty drug name"))
	}
	info, err := uc.graph.DrugInfo(ctx, uc.drugs.Normalize(name))
	if err != nil {
		return nil, fmt.Errorf("drug info lookup: %w", err)
	}
	return info, nil
}
