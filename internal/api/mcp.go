package api

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mkoval/hybridrag/internal/retrieval"
)

// MCPRetriever abstracts hybrid retrieval for the MCP layer.
type MCPRetriever interface {
	Retrieve(ctx context.Context, query string) (retrieval.Result, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Catalog   DocumentLister
	Sync      Synchronizer
	Retriever MCPRetriever
	Answerer  Answerer
}

// NewMCPServer creates an MCP server exposing the knowledge base tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"hybridrag",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("hybridrag: local hybrid retrieval over technical documents, combining vector similarity and graph traversal."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ingest_document",
			mcp.WithDescription("Ingest a document or directory into the knowledge base. Both stores are updated; unchanged documents are skipped."),
			mcp.WithString("path", mcp.Description("File or directory path on the server"), mcp.Required()),
			mcp.WithBoolean("force", mcp.Description("Re-ingest even if the content is unchanged")),
		),
		mcpIngestDocument(deps),
	)

	s.AddTool(
		mcp.NewTool("query_knowledge",
			mcp.WithDescription("Run hybrid retrieval and return the ranked context chunks with their source tags and scores."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
		),
		mcpQueryKnowledge(deps),
	)

	s.AddTool(
		mcp.NewTool("answer_question",
			mcp.WithDescription("Answer a question using retrieved context. Returns the answer plus provenance."),
			mcp.WithString("question", mcp.Description("The question to answer"), mcp.Required()),
		),
		mcpAnswerQuestion(deps),
	)

	s.AddTool(
		mcp.NewTool("reconcile_stores",
			mcp.WithDescription("Repair drift between the vector index and the graph."),
		),
		mcpReconcile(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"hybridrag://documents",
			"Document Catalog",
			mcp.WithResourceDescription("All ingested documents with their sync status"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceDocuments(deps),
	)

	return s
}

func mcpIngestDocument(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := req.RequireString("path")
		if err != nil {
			return mcpError("path is required"), nil
		}
		force := req.GetBool("force", false)

		info, err := os.Stat(path)
		if err != nil {
			return mcpError(fmt.Sprintf("path not accessible: %v", err)), nil
		}

		var payload any
		if info.IsDir() {
			reports, err := deps.Sync.SyncDir(ctx, path, force)
			if err != nil && len(reports) == 0 {
				return mcpError(fmt.Sprintf("ingestion failed: %v", err)), nil
			}
			payload = reports
		} else {
			report, err := deps.Sync.SyncFile(ctx, path, force)
			if err != nil {
				return mcpError(fmt.Sprintf("ingestion failed: %v", err)), nil
			}
			payload = report
		}

		b, err := json.Marshal(payload)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal report: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpQueryKnowledge(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		result, err := deps.Retriever.Retrieve(ctx, query)
		if err != nil {
			return mcpError(fmt.Sprintf("retrieval failed: %v", err)), nil
		}

		b, err := json.Marshal(result)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAnswerQuestion(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		answer, err := deps.Answerer.Answer(ctx, question)
		if err != nil {
			return mcpError(fmt.Sprintf("answer failed: %v", err)), nil
		}

		b, err := json.Marshal(answer)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal answer: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpReconcile(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		report, err := deps.Sync.Reconcile(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("reconciliation failed: %v", err)), nil
		}

		b, err := json.Marshal(report)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal report: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceDocuments(deps MCPDeps) server.ResourceHandlerFunc {
	return func(_ context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		docs, err := deps.Catalog.ListDocuments()
		if err != nil {
			return nil, fmt.Errorf("failed to list documents: %w", err)
		}

		type docSummary struct {
			SourcePath string `json:"source_path"`
			DocID      string `json:"doc_id"`
			Status     string `json:"status"`
			Chunks     int    `json:"chunks"`
			UpdatedAt  string `json:"updated_at"`
		}
		summaries := make([]docSummary, len(docs))
		for i, d := range docs {
			summaries[i] = docSummary{
				SourcePath: d.SourcePath,
				DocID:      d.DocID,
				Status:     d.Status,
				Chunks:     len(d.ChunkIDs),
				UpdatedAt:  d.UpdatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal documents: %w", err)
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
