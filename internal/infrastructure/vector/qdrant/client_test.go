package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/kirillkom/clinical-ai-assistant/internal/core/domain"
)

type embedderStub struct {
	vector []float32
	err    error
}

func (e *embedderStub) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = e.vector
	}
	return out, nil
}

func (e *embedderStub) EmbedQuery(context.Context, string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.vector, nil
}

func TestIndexChunksEnsuresCollectionOncePerVectorSize(t *testing.T) {
	var ensureCalls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/guidelines":
			atomic.AddInt32(&ensureCalls, 1)
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/guidelines/points":
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "guidelines", &embedderStub{})
	doc := &domain.GuidelineDocument{ID: "doc-1", Filename: "guideline.pdf"}
	chunks := []domain.SectionChunk{{Section: "药物治疗", Text: "二甲双胍"}, {Section: "控糖目标", Text: "HbA1c"}}
	vectors := [][]float32{{0.1, 0.2}, {0.3, 0.4}}

	if err := client.IndexChunks(context.Background(), doc, chunks, vectors); err != nil {
		t.Fatalf("first IndexChunks() error = %v", err)
	}
	if err := client.IndexChunks(context.Background(), doc, chunks, vectors); err != nil {
		t.Fatalf("second IndexChunks() error = %v", err)
	}
	if got := atomic.LoadInt32(&ensureCalls); got != 1 {
		t.Fatalf("expected ensure collection called once, got %d", got)
	}
}

func TestIndexChunksWritesNamedVectorsAndPayload(t *testing.T) {
	var upsert struct {
		Points []struct {
			Vector  map[string]json.RawMessage `json:"vector"`
			Payload map[string]any             `json:"payload"`
		} `json:"points"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/guidelines":
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/guidelines/points":
			if err := json.NewDecoder(r.Body).Decode(&upsert); err != nil {
				t.Errorf("decode upsert: %v", err)
			}
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "guidelines", &embedderStub{})
	doc := &domain.GuidelineDocument{ID: "doc-1", Filename: "guideline.pdf"}
	chunks := []domain.SectionChunk{{Section: "药物治疗", EvidenceGrade: "A", Text: "二甲双胍是一线用药"}}

	if err := client.IndexChunks(context.Background(), doc, chunks, [][]float32{{0.1, 0.2}}); err != nil {
		t.Fatalf("IndexChunks() error = %v", err)
	}

	if len(upsert.Points) != 1 {
		t.Fatalf("expected one point, got %d", len(upsert.Points))
	}
	point := upsert.Points[0]
	if _, ok := point.Vector[denseVectorName]; !ok {
		t.Fatalf("missing dense vector: %v", point.Vector)
	}
	if _, ok := point.Vector[sparseVectorName]; !ok {
		t.Fatalf("missing sparse vector: %v", point.Vector)
	}
	if point.Payload["doc_id"] != "doc-1" || point.Payload["section"] != "药物治疗" {
		t.Fatalf("unexpected payload %v", point.Payload)
	}
	if point.Payload["evidence_grade"] != "A" {
		t.Fatalf("evidence grade must be indexed, got %v", point.Payload)
	}
}

func TestSearchSemanticMapsPayloadToPassages(t *testing.T) {
	var request map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/collections/guidelines/points/search" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			t.Errorf("decode search: %v", err)
		}
		_, _ = w.Write([]byte(`{"result":[
			{"score":0.91,"payload":{"doc_id":"doc-1","chunk_index":4,"filename":"guideline.pdf","section":"肾病管理","evidence_grade":"B","text":"eGFR低于30时禁用二甲双胍"}}
		]}`))
	}))
	defer server.Close()

	client := New(server.URL, "guidelines", &embedderStub{vector: []float32{0.5, 0.6}})
	passages, err := client.SearchSemantic(context.Background(), "肾功能不全用药", 5)
	if err != nil {
		t.Fatalf("SearchSemantic() error = %v", err)
	}

	vector, _ := request["vector"].(map[string]any)
	if vector["name"] != denseVectorName {
		t.Fatalf("semantic search must target the dense vector, got %v", request["vector"])
	}
	if len(passages) != 1 {
		t.Fatalf("expected one passage, got %d", len(passages))
	}
	p := passages[0]
	if p.DocID != "doc-1" || p.ChunkIndex != 4 || p.Section != "肾病管理" || p.EvidenceGrade != "B" {
		t.Fatalf("unexpected passage %+v", p)
	}
	if p.Score != 0.91 {
		t.Fatalf("unexpected score %v", p.Score)
	}
}

func TestSearchLexicalUsesSparseVector(t *testing.T) {
	var request map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			t.Errorf("decode search: %v", err)
		}
		_, _ = w.Write([]byte(`{"result":[]}`))
	}))
	defer server.Close()

	client := New(server.URL, "guidelines", &embedderStub{})
	if _, err := client.SearchLexical(context.Background(), "二甲双胍 eGFR", 5); err != nil {
		t.Fatalf("SearchLexical() error = %v", err)
	}

	vector, _ := request["vector"].(map[string]any)
	if vector["name"] != sparseVectorName {
		t.Fatalf("lexical search must target the sparse vector, got %v", request["vector"])
	}
	inner, _ := vector["vector"].(map[string]any)
	if indices, _ := inner["indices"].([]any); len(indices) == 0 {
		t.Fatalf("sparse query vector must carry indices, got %v", inner)
	}
}

func TestSearchLexicalSkipsEmptyQuery(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		_, _ = w.Write([]byte(`{"result":[]}`))
	}))
	defer server.Close()

	client := New(server.URL, "guidelines", &embedderStub{})
	passages, err := client.SearchLexical(context.Background(), "___---!!!", 5)
	if err != nil {
		t.Fatalf("SearchLexical() error = %v", err)
	}
	if passages != nil {
		t.Fatalf("expected no passages, got %+v", passages)
	}
	if called {
		t.Fatalf("no request expected for an unencodable query")
	}
}

func TestSearchSemanticEmbedderErrorPropagates(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		_, _ = w.Write([]byte(`{"result":[]}`))
	}))
	defer server.Close()

	client := New(server.URL, "guidelines", &embedderStub{err: context.DeadlineExceeded})
	if _, err := client.SearchSemantic(context.Background(), "q", 5); err == nil {
		t.Fatalf("expected error")
	}
	if called {
		t.Fatalf("no request expected when embedding fails")
	}
}

func TestEnsureCollectionIncludesResponseBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && r.URL.Path == "/collections/guidelines" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := New(server.URL, "guidelines", &embedderStub{})
	doc := &domain.GuidelineDocument{ID: "doc-1", Filename: "guideline.pdf"}
	err := client.IndexChunks(context.Background(), doc, []domain.SectionChunk{{Text: "a"}}, [][]float32{{0.1, 0.2}})
	if err == nil {
		t.Fatalf("expected error")
	}
	if got := err.Error(); !strings.Contains(got, "boom") {
		t.Fatalf("expected error to include body, got %v", err)
	}
}
