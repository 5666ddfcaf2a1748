// Package console is the interactive terminal frontend. It talks to a
// running API process over HTTP and renders pipeline answers, risk
// reports, and drug cards.
package console

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kirillkom/clinical-ai-assistant/internal/core/domain"
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) Retrieve(ctx context.Context, query string, useKG *bool) (*domain.RetrieveResult, error) {
	var result domain.RetrieveResult
	err := c.postJSON(ctx, "/v1/retrieve", domain.RetrieveRequest{Query: query, UseKG: useKG}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Assess(ctx context.Context, profile domain.PatientProfile) (*domain.RiskReport, error) {
	var report domain.RiskReport
	if err := c.postJSON(ctx, "/v1/assess", profile, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (c *Client) DrugInfo(ctx context.Context, name string) (*domain.DrugInfo, error) {
	var info domain.DrugInfo
	if err := c.getJSON(ctx, "/v1/drugs/"+url.PathEscape(name), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return apiError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode api response: %w", err)
	}
	return nil
}

// apiError surfaces the server's error field when present, falling back
// to the HTTP status line.
func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))

	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return fmt.Errorf("api: %s", payload.Error)
	}
	return fmt.Errorf("api: %s", resp.Status)
}
