package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/kian/internal/analysis"
	"github.com/kalambet/kian/internal/profile"
	"github.com/kalambet/kian/internal/prompt"
	"github.com/kalambet/kian/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Engine   Analyzer
	Store    *storage.Store
	Registry *prompt.Registry
}

// NewMCPServer creates an MCP server with all kian tools and resources
// registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"kian",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("kian — AI use-case analysis for small German businesses: feasibility checks, comparisons and implementation roadmaps via a local language model."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("analyze_use_case",
			mcp.WithDescription("Run a full AI use-case analysis for a company and return the structured record as JSON."),
			mcp.WithString("company", mcp.Description("Company profile as a JSON object (German intake fields)"), mcp.Required()),
			mcp.WithString("use_case", mcp.Description("Use case as a JSON object"), mcp.Required()),
			mcp.WithString("template", mcp.Description("Analysis template key (default use_case_analysis)")),
		),
		mcpAnalyzeUseCase(deps),
	)

	s.AddTool(
		mcp.NewTool("quick_feasibility",
			mcp.WithDescription("Fast go/no-go feasibility check for one use case. Never fails; errors are reported inside the result."),
			mcp.WithString("company", mcp.Description("Company profile as a JSON object"), mcp.Required()),
			mcp.WithString("use_case", mcp.Description("Use case as a JSON object"), mcp.Required()),
		),
		mcpQuickFeasibility(deps),
	)

	s.AddTool(
		mcp.NewTool("compare_use_cases",
			mcp.WithDescription("Rank several use cases by feasibility for one company and recommend the best."),
			mcp.WithString("company", mcp.Description("Company profile as a JSON object"), mcp.Required()),
			mcp.WithString("use_cases", mcp.Description("JSON array of at least two use-case objects"), mcp.Required()),
		),
		mcpCompareUseCases(deps),
	)

	s.AddTool(
		mcp.NewTool("build_roadmap",
			mcp.WithDescription("Build a phased implementation roadmap for one use case."),
			mcp.WithString("company", mcp.Description("Company profile as a JSON object"), mcp.Required()),
			mcp.WithString("use_case", mcp.Description("Use case as a JSON object"), mcp.Required()),
		),
		mcpBuildRoadmap(deps),
	)

	s.AddTool(
		mcp.NewTool("list_analyses",
			mcp.WithDescription("List stored analyses, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 10)")),
			mcp.WithString("template", mcp.Description("Only analyses produced by this template")),
		),
		mcpListAnalyses(deps),
	)

	s.AddTool(
		mcp.NewTool("get_analysis",
			mcp.WithDescription("Fetch one stored analysis by ID, including the full result."),
			mcp.WithString("id", mcp.Description("Analysis ID"), mcp.Required()),
		),
		mcpGetAnalysis(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"kian://templates",
			"Analysis Templates",
			mcp.WithResourceDescription("Catalog of registered analysis templates as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceTemplates(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"kian://stats",
			"Analysis Statistics",
			mcp.WithResourceDescription("Aggregate statistics over all stored analyses"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceStats(deps),
	)

	return s
}

// mcpIntake decodes the company and use_case JSON arguments shared by
// the analysis tools.
func mcpIntake(req mcp.CallToolRequest) (profile.Company, profile.UseCase, *mcp.CallToolResult) {
	companyJSON, err := req.RequireString("company")
	if err != nil {
		return profile.Company{}, profile.UseCase{}, mcpError("company is required")
	}
	useCaseJSON, err := req.RequireString("use_case")
	if err != nil {
		return profile.Company{}, profile.UseCase{}, mcpError("use_case is required")
	}

	var company profile.Company
	if err := json.Unmarshal([]byte(companyJSON), &company); err != nil {
		return profile.Company{}, profile.UseCase{}, mcpError(fmt.Sprintf("invalid company JSON: %v", err))
	}
	var uc profile.UseCase
	if err := json.Unmarshal([]byte(useCaseJSON), &uc); err != nil {
		return profile.Company{}, profile.UseCase{}, mcpError(fmt.Sprintf("invalid use_case JSON: %v", err))
	}
	return company, uc, nil
}

func mcpAnalyzeUseCase(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		company, uc, errResult := mcpIntake(req)
		if errResult != nil {
			return errResult, nil
		}

		template := req.GetString("template", defaultTemplate)

		rec, err := deps.Engine.Analyze(ctx, template, company, uc, nil)
		if err != nil {
			return mcpError(fmt.Sprintf("analysis failed: %v", err)), nil
		}
		return mcpJSON(rec)
	}
}

func mcpQuickFeasibility(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		company, uc, errResult := mcpIntake(req)
		if errResult != nil {
			return errResult, nil
		}
		return mcpJSON(deps.Engine.QuickFeasibility(ctx, company, uc))
	}
}

func mcpCompareUseCases(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		companyJSON, err := req.RequireString("company")
		if err != nil {
			return mcpError("company is required"), nil
		}
		casesJSON, err := req.RequireString("use_cases")
		if err != nil {
			return mcpError("use_cases is required"), nil
		}

		var company profile.Company
		if err := json.Unmarshal([]byte(companyJSON), &company); err != nil {
			return mcpError(fmt.Sprintf("invalid company JSON: %v", err)), nil
		}
		var cases []profile.UseCase
		if err := json.Unmarshal([]byte(casesJSON), &cases); err != nil {
			return mcpError(fmt.Sprintf("invalid use_cases JSON: %v", err)), nil
		}

		cmp, err := deps.Engine.Compare(ctx, company, cases)
		if err != nil {
			return mcpError(fmt.Sprintf("comparison failed: %v", err)), nil
		}
		return mcpJSON(cmp)
	}
}

func mcpBuildRoadmap(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		company, uc, errResult := mcpIntake(req)
		if errResult != nil {
			return errResult, nil
		}

		road, err := deps.Engine.BuildRoadmap(ctx, company, uc)
		if err != nil {
			return mcpError(fmt.Sprintf("roadmap failed: %v", err)), nil
		}
		return mcpJSON(road)
	}
}

func mcpListAnalyses(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 100 {
			limit = 100
		}
		template := req.GetString("template", "")

		rows, err := deps.Store.ListAnalyses(limit, template)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list analyses: %v", err)), nil
		}
		if len(rows) == 0 {
			return mcpText("[]"), nil
		}
		return mcpJSON(summarize(rows))
	}
}

func mcpGetAnalysis(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		a, err := deps.Store.GetAnalysis(id)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("analysis %s not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get analysis: %v", err)), nil
		}

		if a.ResultJSON != "" {
			return mcpText(a.ResultJSON), nil
		}
		return mcpJSON(summarizeRow(a))
	}
}

func mcpResourceTemplates(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		list := deps.Registry.List()
		infos := make([]templateInfo, len(list))
		for i, t := range list {
			infos[i] = templateToInfo(t)
		}

		b, err := json.Marshal(infos)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal templates: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceStats(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		rows, err := deps.Store.ListAnalyses(0, "")
		if err != nil {
			return nil, fmt.Errorf("failed to load analyses: %w", err)
		}

		b, err := json.Marshal(analysis.Statistics(rows))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal statistics: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

// mcpJSON marshals v and wraps it as a text result.
func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
