package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/clinical-ai-assistant/internal/config"
	"github.com/kirillkom/clinical-ai-assistant/internal/core/domain"
)

type capturingRetrieveFake struct {
	req    domain.RetrieveRequest
	result *domain.RetrieveResult
}

func (f *capturingRetrieveFake) Retrieve(_ context.Context, req domain.RetrieveRequest) (*domain.RetrieveResult, error) {
	f.req = req
	return f.result, nil
}

func TestRetrieveReturnsPipelineResult(t *testing.T) {
	fake := &capturingRetrieveFake{result: &domain.RetrieveResult{
		Query:          "eGFR小于30能用二甲双胍吗",
		UseKGEffective: true,
		RAGResults:     []domain.GuidelinePassage{{DocID: "d1", Text: "片段", Score: 0.9}},
		KGResults:      []domain.GraphRecord{{"药品名称": "二甲双胍"}},
		KGSource:       domain.KGSourceTemplate,
		MergedContext:  "上下文",
		Success:        true,
	}}
	handler := NewRouter(config.Config{}, fake, assessFake{}, drugCatalogFake{}, guidelineLibraryFake{}, nil).Handler()

	useKG := true
	payload, _ := json.Marshal(domain.RetrieveRequest{
		Query:      "eGFR小于30能用二甲双胍吗",
		UseKG:      &useKG,
		RerankTopK: 5,
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/retrieve", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if fake.req.UseKG == nil || !*fake.req.UseKG {
		t.Fatalf("use_kg override must reach the pipeline, got %+v", fake.req)
	}
	if fake.req.RerankTopK != 5 {
		t.Fatalf("rerank_top_k must reach the pipeline, got %d", fake.req.RerankTopK)
	}

	var result domain.RetrieveResult
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !result.Success || result.KGSource != domain.KGSourceTemplate {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(result.RAGResults) != 1 || len(result.KGResults) != 1 {
		t.Fatalf("unexpected result payload %+v", result)
	}
}

func TestRetrieveRejectsBlankQuery(t *testing.T) {
	handler := newTestHandler(config.Config{})

	payload := []byte(`{"query": "   "}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/retrieve", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestRetrieveRejectsWrongMethod(t *testing.T) {
	handler := newTestHandler(config.Config{})

	req := httptest.NewRequest(http.MethodGet, "/v1/retrieve", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

func TestAssessReturnsRiskReport(t *testing.T) {
	handler := NewRouter(
		config.Config{},
		retrieveFake{},
		assessFake{report: &domain.RiskReport{
			Warnings: []domain.Warning{{
				Drug:     "二甲双胍",
				Reason:   "eGFR < 30（患者: 25）",
				Severity: domain.SeverityCritical,
			}},
			MostSevere: domain.SeverityCritical,
			Summary:    "检测到 1 个严重风险，涉及药品: 二甲双胍，建议立即评估",
		}},
		drugCatalogFake{},
		guidelineLibraryFake{},
		nil,
	).Handler()

	payload, _ := json.Marshal(domain.PatientProfile{
		Medications: []string{"二甲双胍"},
		Metrics:     map[string]float64{"eGFR": 25},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/assess", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}

	var report domain.RiskReport
	if err := json.NewDecoder(res.Body).Decode(&report); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(report.Warnings) != 1 || report.MostSevere != domain.SeverityCritical {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestDrugInfoByName(t *testing.T) {
	handler := NewRouter(
		config.Config{},
		retrieveFake{},
		assessFake{},
		drugCatalogFake{info: &domain.DrugInfo{Name: "二甲双胍", Category: "双胍类", Brands: []string{"格华止"}}},
		guidelineLibraryFake{},
		nil,
	).Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/drugs/二甲双胍", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}

	var info domain.DrugInfo
	if err := json.NewDecoder(res.Body).Decode(&info); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if info.Category != "双胍类" || len(info.Brands) != 1 {
		t.Fatalf("unexpected info %+v", info)
	}
}

func TestRequestIDEchoedOnResponses(t *testing.T) {
	handler := newTestHandler(config.Config{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "req-42")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if got := res.Header().Get("X-Request-Id"); got != "req-42" {
		t.Fatalf("supplied request id must echo back, got %q", got)
	}

	res2 := httptest.NewRecorder()
	handler.ServeHTTP(res2, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res2.Header().Get("X-Request-Id") == "" {
		t.Fatalf("a request id must be generated when absent")
	}
}
