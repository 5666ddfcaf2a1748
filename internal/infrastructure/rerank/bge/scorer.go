package bge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/clinical-ai-assistant/internal/core/domain"
)

// Scorer talks to a BGE reranker served over the text-embeddings-
// inference /rerank API: {"query", "texts"} in, [{"index","score"}] out.
type Scorer struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) *Scorer {
	return &Scorer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *Scorer) ScorePairs(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	payload := map[string]any{
		"query": query,
		"texts": texts,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, domain.WrapError(domain.ErrModelUnavailable, "rerank request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("rerank status: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var items []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}

	// The service returns one entry per text, ordered by score. Map
	// back by index so the caller can align scores with candidates.
	scores := make([]float64, len(texts))
	for _, item := range items {
		if item.Index < 0 || item.Index >= len(scores) {
			return nil, fmt.Errorf("rerank index %d out of range for %d texts", item.Index, len(texts))
		}
		scores[item.Index] = item.Score
	}
	return scores, nil
}
