package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/clinical-ai-assistant/internal/core/domain"
)

type retrieverFake struct {
	req domain.RetrieveRequest
	err error
}

func (f *retrieverFake) Retrieve(_ context.Context, req domain.RetrieveRequest) (*domain.RetrieveResult, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &domain.RetrieveResult{Query: req.Query, Success: true, KGSource: domain.KGSourceNone}, nil
}

type assessorFake struct {
	profile domain.PatientProfile
}

func (f *assessorFake) Assess(_ context.Context, profile domain.PatientProfile) (*domain.RiskReport, error) {
	f.profile = profile
	return &domain.RiskReport{Summary: "当前用药方案未检测到明显风险"}, nil
}

type drugReaderFake struct {
	err error
}

func (f drugReaderFake) Lookup(_ context.Context, name string) (*domain.DrugInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.DrugInfo{Name: name, Category: "双胍类"}, nil
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	request := mcp.CallToolRequest{}
	request.Params.Arguments = args
	return request
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatalf("empty tool result content")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}
	return text.Text
}

func TestSearchToolForwardsQueryAndOverride(t *testing.T) {
	fake := &retrieverFake{}
	handler := searchHandler(fake)

	result, err := handler(context.Background(), callRequest(map[string]any{
		"query":  "二甲双胍的禁忌症有哪些",
		"use_kg": true,
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, result))
	}

	if fake.req.Query != "二甲双胍的禁忌症有哪些" {
		t.Fatalf("query did not reach the pipeline: %+v", fake.req)
	}
	if fake.req.UseKG == nil || !*fake.req.UseKG {
		t.Fatalf("use_kg override did not reach the pipeline: %+v", fake.req)
	}

	var decoded domain.RetrieveResult
	if err := json.Unmarshal([]byte(resultText(t, result)), &decoded); err != nil {
		t.Fatalf("tool result is not valid JSON: %v", err)
	}
	if !decoded.Success {
		t.Fatalf("unexpected result payload %+v", decoded)
	}
}

func TestSearchToolWithoutOverrideLeavesRoutingAutomatic(t *testing.T) {
	fake := &retrieverFake{}
	handler := searchHandler(fake)

	_, err := handler(context.Background(), callRequest(map[string]any{
		"query": "什么是糖尿病",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if fake.req.UseKG != nil {
		t.Fatalf("absent use_kg must stay nil, got %v", *fake.req.UseKG)
	}
}

func TestSearchToolRequiresQuery(t *testing.T) {
	handler := searchHandler(&retrieverFake{})

	result, err := handler(context.Background(), callRequest(map[string]any{}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Fatalf("missing query must produce a tool error")
	}
}

func TestAssessToolBindsProfile(t *testing.T) {
	fake := &assessorFake{}
	handler := assessHandler(fake)

	result, err := handler(context.Background(), callRequest(map[string]any{
		"medications":   []any{"格华止", "恩格列净"},
		"metrics":       map[string]any{"eGFR": 25.0},
		"complications": []any{"心力衰竭"},
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, result))
	}

	if len(fake.profile.Medications) != 2 || fake.profile.Medications[0] != "格华止" {
		t.Fatalf("medications did not bind: %+v", fake.profile)
	}
	if fake.profile.Metrics["eGFR"] != 25 {
		t.Fatalf("metrics did not bind: %+v", fake.profile)
	}
	if len(fake.profile.Complications) != 1 {
		t.Fatalf("complications did not bind: %+v", fake.profile)
	}
}

func TestDrugInfoToolReportsLookupFailure(t *testing.T) {
	handler := drugInfoHandler(drugReaderFake{
		err: domain.WrapError(domain.ErrDrugNotFound, "drug lookup", errors.New("no node matched")),
	})

	result, err := handler(context.Background(), callRequest(map[string]any{
		"name": "不存在的药",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Fatalf("lookup failure must produce a tool error")
	}
	if !strings.Contains(resultText(t, result), "drug lookup") {
		t.Fatalf("error text should carry the operation, got %s", resultText(t, result))
	}
}
