package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/helmsman-ai/helmsman/internal/docstore"
	"github.com/helmsman-ai/helmsman/internal/routing"
	"github.com/helmsman-ai/helmsman/internal/task"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Orchestrator *task.Orchestrator
	Queue        *task.Queue
	Router       *routing.Router
	Repo         Searcher
	Embedder     Embedder
}

// Searcher abstracts corpus search for the MCP layer.
type Searcher interface {
	Search(ctx context.Context, queryVector []float32, limit int) ([]docstore.SearchResult, error)
}

// NewMCPServer creates an MCP server exposing generation and corpus search
// as tools, plus the queue and routing history as resources.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"helmsman",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("helmsman routes generation requests across local and cloud models and searches the ingested document corpus."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("generate",
			mcp.WithDescription("Generate text using the best available model for the prompt's intent."),
			mcp.WithString("prompt", mcp.Description("The prompt to execute"), mcp.Required()),
			mcp.WithString("system_prompt", mcp.Description("Optional system prompt")),
			mcp.WithString("intent", mcp.Description("Optional intent tag; classified automatically when omitted")),
			mcp.WithBoolean("require_local", mcp.Description("Restrict routing to local models")),
		),
		mcpGenerate(deps),
	)

	s.AddTool(
		mcp.NewTool("search",
			mcp.WithDescription("Semantically search the ingested document corpus and return relevant chunks."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpSearch(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"helmsman://queue",
			"Task Queue",
			mcp.WithResourceDescription("Current task queue snapshot as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceQueue(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"helmsman://routing/history",
			"Routing History",
			mcp.WithResourceDescription("Recent routing decisions as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRoutingHistory(deps),
	)

	return s
}

func mcpGenerate(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		prompt, err := req.RequireString("prompt")
		if err != nil {
			return mcpError("prompt is required"), nil
		}

		opts := task.ExecuteOptions{
			SystemPrompt: req.GetString("system_prompt", ""),
			Intent:       routing.Intent(req.GetString("intent", "")),
			Constraints: routing.Constraints{
				RequireLocal: req.GetBool("require_local", false),
			},
		}

		_, ch, err := deps.Orchestrator.Execute(ctx, prompt, opts)
		if errors.Is(err, routing.ErrNoModelAvailable) {
			return mcpError(fmt.Sprintf("no model available: %v", err)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("execute failed: %v", err)), nil
		}

		res := <-ch
		if res.Err != nil {
			return mcpError(fmt.Sprintf("generation failed: %v", res.Err)), nil
		}
		return mcpText(res.Output), nil
	}
}

func mcpSearch(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		if limit > 50 {
			limit = 50
		}

		vector, err := deps.Embedder.Embed(ctx, query)
		if err != nil {
			return mcpError(fmt.Sprintf("embedding query: %v", err)), nil
		}

		hits, err := deps.Repo.Search(ctx, vector, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(hits) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(hits)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceQueue(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(deps.Queue.Snapshot())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal queue snapshot: %w", err)
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

func mcpResourceRoutingHistory(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(deps.Router.History())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal routing history: %w", err)
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
