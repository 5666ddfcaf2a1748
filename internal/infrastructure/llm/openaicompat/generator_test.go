package openaicompat

import (
	"context"
	"errors"
	"testing"

	"github.com/tmc/langchaingo/llms"

	"github.com/kirillkom/clinical-ai-assistant/internal/core/domain"
)

type modelStub struct {
	response *llms.ContentResponse
	err      error

	messages []llms.MessageContent
}

func (m *modelStub) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

func (m *modelStub) Call(context.Context, string, ...llms.CallOption) (string, error) {
	return "", errors.New("not used")
}

func TestGenerateFromPromptReturnsTrimmedChoice(t *testing.T) {
	stub := &modelStub{response: &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: "  MATCH (d:Drug) RETURN d.name  "}},
	}}
	gen := &Generator{client: stub}

	text, err := gen.GenerateFromPrompt(context.Background(), "生成查询")
	if err != nil {
		t.Fatalf("GenerateFromPrompt() error = %v", err)
	}
	if text != "MATCH (d:Drug) RETURN d.name" {
		t.Fatalf("text = %q", text)
	}

	if len(stub.messages) != 1 || stub.messages[0].Role != llms.ChatMessageTypeHuman {
		t.Fatalf("unexpected messages: %+v", stub.messages)
	}
}

func TestGenerateFromPromptEmptyChoices(t *testing.T) {
	gen := &Generator{client: &modelStub{response: &llms.ContentResponse{}}}

	_, err := gen.GenerateFromPrompt(context.Background(), "q")
	if !domain.IsKind(err, domain.ErrGenerationFailed) {
		t.Fatalf("expected generation failure kind, got %v", err)
	}
}

func TestGenerateFromPromptMarksBackendUnavailable(t *testing.T) {
	gen := &Generator{client: &modelStub{err: errors.New("connection refused")}}

	_, err := gen.GenerateFromPrompt(context.Background(), "q")
	if !domain.IsKind(err, domain.ErrModelUnavailable) {
		t.Fatalf("expected model unavailable kind, got %v", err)
	}
}

func TestGenerateFromPromptPassesContextErrorsThrough(t *testing.T) {
	gen := &Generator{client: &modelStub{err: context.Canceled}}

	_, err := gen.GenerateFromPrompt(context.Background(), "q")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	if domain.IsKind(err, domain.ErrModelUnavailable) {
		t.Fatalf("cancellation is not an outage: %v", err)
	}
}
