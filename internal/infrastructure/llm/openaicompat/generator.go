package openaicompat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/kirillkom/clinical-ai-assistant/internal/core/domain"
)

// Generator drives any OpenAI-compatible chat endpoint (vLLM, DashScope,
// OpenAI itself) as the statement-generation backend. Selected over the
// local ollama backend with CAA_LLM_PROVIDER=openai.
type Generator struct {
	client llms.Model
}

func New(baseURL, apiKey, model string) (*Generator, error) {
	if strings.TrimSpace(apiKey) == "" {
		// Local OpenAI-compatible servers accept any token.
		apiKey = "none"
	}
	client, err := openai.New(
		openai.WithBaseURL(baseURL),
		openai.WithToken(apiKey),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	return &Generator{client: client}, nil
}

func (g *Generator) GenerateFromPrompt(ctx context.Context, prompt string) (string, error) {
	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(prompt)},
		},
	}

	response, err := g.client.GenerateContent(ctx, content, llms.WithTemperature(0.0))
	if err != nil {
		return "", wrapGenerateError(err)
	}
	if len(response.Choices) == 0 {
		return "", domain.WrapError(domain.ErrGenerationFailed, "openai generate", errors.New("no completion choices"))
	}
	text := strings.TrimSpace(response.Choices[0].Content)
	if text == "" {
		return "", domain.WrapError(domain.ErrGenerationFailed, "openai generate", errors.New("empty completion"))
	}
	return text, nil
}

// The client does not expose status codes, so any failure short of a
// canceled context counts as an unreachable backend.
func wrapGenerateError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return domain.WrapError(domain.ErrModelUnavailable, "openai generate", err)
}
