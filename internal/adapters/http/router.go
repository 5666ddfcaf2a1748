// Package httpadapter exposes the pipeline over REST: question
// answering, profile risk assessment, drug lookups, and guideline
// ingestion, behind the shared middleware chain.
package httpadapter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/clinical-ai-assistant/internal/config"
	"github.com/kirillkom/clinical-ai-assistant/internal/core/domain"
	"github.com/kirillkom/clinical-ai-assistant/internal/observability/metrics"
)

// Retriever answers one clinical question through the two-branch
// pipeline.
type Retriever interface {
	Retrieve(ctx context.Context, req domain.RetrieveRequest) (*domain.RetrieveResult, error)
}

// RiskAssessor evaluates a patient profile against the hard rules.
type RiskAssessor interface {
	Assess(ctx context.Context, profile domain.PatientProfile) (*domain.RiskReport, error)
}

// DrugCatalog serves single-drug knowledge graph lookups.
type DrugCatalog interface {
	Lookup(ctx context.Context, name string) (*domain.DrugInfo, error)
}

// GuidelineLibrary accepts guideline uploads and reports their indexing
// state.
type GuidelineLibrary interface {
	Upload(ctx context.Context, filename, mimeType string, body io.Reader) (*domain.GuidelineDocument, error)
	GetByID(ctx context.Context, id string) (*domain.GuidelineDocument, error)
}

type Router struct {
	cfg        config.Config
	retriever  Retriever
	assessor   RiskAssessor
	drugs      DrugCatalog
	guidelines GuidelineLibrary
	metrics    *metrics.HTTPServerMetrics
}

func NewRouter(
	cfg config.Config,
	retriever Retriever,
	assessor RiskAssessor,
	drugs DrugCatalog,
	guidelines GuidelineLibrary,
	m *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		cfg:        cfg,
		retriever:  retriever,
		assessor:   assessor,
		drugs:      drugs,
		guidelines: guidelines,
		metrics:    m,
	}
}

// Handler assembles the route table and the middleware chain. Health
// and metrics bypass rate limiting and backpressure so probes keep
// working while the API sheds load.
func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("/v1/retrieve", rt.retrieve)
	api.HandleFunc("/v1/assess", rt.assess)
	api.HandleFunc("/v1/drugs/", rt.drugInfo)
	api.HandleFunc("/v1/guidelines", rt.requireAPIKey(rt.uploadGuideline))
	api.HandleFunc("/v1/guidelines/", rt.guidelineByID)

	var guarded http.Handler = api
	if rt.cfg.APIMaxInFlight > 0 {
		guarded = backpressureMiddleware(guarded, rt.cfg.APIMaxInFlight, defaultBackpressureWait)
	}
	if rt.cfg.APIRateLimitRPS > 0 {
		guarded = rateLimitMiddleware(guarded, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	}

	root := http.NewServeMux()
	root.HandleFunc("/healthz", rt.healthz)
	if rt.metrics != nil {
		root.Handle("/metrics", rt.metrics.Handler())
	}
	root.Handle("/", guarded)

	var handler http.Handler = root
	if rt.metrics != nil {
		handler = rt.metrics.Middleware("api", handler)
	}
	return requestIDMiddleware(accessLogMiddleware(recoverMiddleware(handler)))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) retrieve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req domain.RetrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	start := time.Now()
	result, err := rt.retriever.Retrieve(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	rt.recordRetrieve(result, time.Since(start))

	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) recordRetrieve(result *domain.RetrieveResult, elapsed time.Duration) {
	if rt.metrics == nil {
		return
	}
	rt.metrics.RecordPipelineObservation("api", "retrieve", len(result.RAGResults), elapsed)
	if result.UseKGEffective {
		rt.metrics.RecordTierRequest("api", "retrieve", string(result.KGSource))
	}
	for _, marker := range result.Degraded {
		rt.metrics.RecordDegradation("api", "retrieve", marker)
	}
}

func (rt *Router) assess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var profile domain.PatientProfile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	report, err := rt.assessor.Assess(r.Context(), profile)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		for _, warning := range report.Warnings {
			rt.metrics.RecordRiskFinding("api", string(warning.Severity))
		}
	}

	writeJSON(w, http.StatusOK, report)
}

func (rt *Router) drugInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/v1/drugs/")
	if name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "drug name is required"})
		return
	}

	info, err := rt.drugs.Lookup(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (rt *Router) uploadGuideline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	doc, err := rt.guidelines.Upload(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) guidelineByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/guidelines/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "guideline id is required"})
		return
	}

	doc, err := rt.guidelines.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// requireAPIKey guards mutating endpoints with a bearer token. An empty
// configured key disables the check for local development.
func (rt *Router) requireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rt.cfg.APIKey == "" || isAuthorizedBearerHeader(r.Header.Get("Authorization"), rt.cfg.APIKey) {
			next(w, r)
			return
		}
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}
}

func isAuthorizedBearerHeader(headerValue, expectedToken string) bool {
	headerValue = strings.TrimSpace(headerValue)
	if headerValue == "" || expectedToken == "" {
		return false
	}
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(headerValue, bearerPrefix) {
		return false
	}
	token := strings.TrimSpace(strings.TrimPrefix(headerValue, bearerPrefix))
	return token == expectedToken
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
