// Package mcpadapter exposes the pipeline as Model Context Protocol
// tools over stdio, so agent frontends can call retrieval, risk
// assessment, and drug lookups without the REST surface.
package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/clinical-ai-assistant/internal/core/domain"
	"github.com/kirillkom/clinical-ai-assistant/internal/core/ports"
)

type Server struct {
	inner *server.MCPServer
}

func NewServer(
	retriever ports.ClinicalRetriever,
	assessor ports.RiskAssessor,
	drugs ports.DrugInfoReader,
	version string,
) *Server {
	s := server.NewMCPServer("clinical-ai-assistant", version,
		server.WithToolCapabilities(false),
	)

	searchTool := mcp.NewTool("search_guidelines",
		mcp.WithDescription("Answer a clinical question from the diabetes guideline corpus and the drug knowledge graph. Returns ranked passages, graph records, and the fused context."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The clinical question, typically in Chinese"),
		),
		mcp.WithBoolean("use_kg",
			mcp.Description("Force the knowledge graph branch on or off; omit for automatic routing"),
		),
	)
	s.AddTool(searchTool, searchHandler(retriever))

	assessTool := mcp.NewTool("assess_medication_risk",
		mcp.WithDescription("Check a medication list against the patient's lab values and diagnosed conditions. Returns graded contraindication warnings and the medications that triggered nothing."),
		mcp.WithArray("medications",
			mcp.Required(),
			mcp.Description("Drug names; brand names are accepted"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithObject("metrics",
			mcp.Description("Lab values keyed by metric name, for example {\"eGFR\": 25}"),
		),
		mcp.WithArray("complications",
			mcp.Description("Diagnosed conditions, for example 心力衰竭"),
			mcp.Items(map[string]any{"type": "string"}),
		),
	)
	s.AddTool(assessTool, assessHandler(assessor))

	drugTool := mcp.NewTool("drug_info",
		mcp.WithDescription("Look up one drug: category, brand names, indications, contraindication rules, and dosage guidance."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Drug or brand name"),
		),
	)
	s.AddTool(drugTool, drugInfoHandler(drugs))

	return &Server{inner: s}
}

// ServeStdio blocks until stdin closes or the context given to the
// transport is canceled.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.inner)
}

func searchHandler(retriever ports.ClinicalRetriever) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := request.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		req := domain.RetrieveRequest{Query: query}
		if _, ok := request.GetArguments()["use_kg"]; ok {
			useKG := request.GetBool("use_kg", false)
			req.UseKG = &useKG
		}

		result, err := retriever.Retrieve(ctx, req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(result)
	}
}

func assessHandler(assessor ports.RiskAssessor) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var profile domain.PatientProfile
		if err := request.BindArguments(&profile); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		report, err := assessor.Assess(ctx, profile)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(report)
	}
}

func drugInfoHandler(drugs ports.DrugInfoReader) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := request.RequireString("name")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		info, err := drugs.Lookup(ctx, name)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(info)
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(payload)), nil
}
