package httpadapter

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/clinical-ai-assistant/internal/config"
)

func multipartUpload(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return &body, writer.FormDataContentType()
}

func TestHealthzEndpoint(t *testing.T) {
	handler := newTestHandler(config.Config{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}

func TestUploadGuidelineSuccess(t *testing.T) {
	handler := newTestHandler(config.Config{})

	body, contentType := multipartUpload(t, "file", "guideline.txt", "第一章 诊断\n空腹血糖≥7.0mmol/L")
	req := httptest.NewRequest(http.MethodPost, "/v1/guidelines", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", res.Code)
	}

	var docResp map[string]any
	if err := json.NewDecoder(res.Body).Decode(&docResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if docResp["id"] != "doc-1" {
		t.Fatalf("unexpected response: %+v", docResp)
	}
	if docResp["status"] != "uploaded" {
		t.Fatalf("expected uploaded status, got %+v", docResp)
	}
}

func TestUploadGuidelineMissingMultipartField(t *testing.T) {
	handler := newTestHandler(config.Config{})

	req := httptest.NewRequest(http.MethodPost, "/v1/guidelines", bytes.NewBufferString("plain-text"))
	req.Header.Set("Content-Type", "text/plain")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestUploadGuidelineRequiresAPIKey(t *testing.T) {
	handler := newTestHandler(config.Config{APIKey: "secret"})

	body, contentType := multipartUpload(t, "file", "guideline.txt", "content")
	req := httptest.NewRequest(http.MethodPost, "/v1/guidelines", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", res.Code)
	}

	body, contentType = multipartUpload(t, "file", "guideline.txt", "content")
	req = httptest.NewRequest(http.MethodPost, "/v1/guidelines", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer secret")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202 with the configured token, got %d", res.Code)
	}
}

func TestGuidelineReadsDoNotRequireAPIKey(t *testing.T) {
	handler := newTestHandler(config.Config{APIKey: "secret"})

	req := httptest.NewRequest(http.MethodGet, "/v1/guidelines/doc-1", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("status polling must stay open, got %d", res.Code)
	}
}
