// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes clustermap tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/clustermap/internal/apperr"
	"github.com/starford/clustermap/internal/ingest"
	"github.com/starford/clustermap/internal/resultservice"
	"github.com/starford/clustermap/internal/tree"
)

const resultFormatURI = "clustermap://result-format"

// Server wraps the MCP server with clustermap tools.
type Server struct {
	mcp *server.MCPServer
	svc *resultservice.Service
}

// New creates a new MCP server with all clustermap tools registered.
func New(svc *resultservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"clustermap",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("submit_result",
		mcp.WithDescription("Submit a clustering result; it becomes the current snapshot. "+
			"Read the format first via get_result_format or the "+resultFormatURI+" resource."),
		mcp.WithString("result", mcp.Required(), mcp.Description("The result document")),
		mcp.WithString("format", mcp.Description("Document format"), mcp.Enum("json", "yaml")),
	), s.submitResult)

	s.mcp.AddTool(mcp.NewTool("get_current_result",
		mcp.WithDescription("Return the current snapshot with its sequence number and checksum."),
	), s.getCurrentResult)

	s.mcp.AddTool(mcp.NewTool("list_results",
		mcp.WithDescription("List stored snapshots, newest first."),
		mcp.WithNumber("limit", mcp.Description("Max entries (default 20)")),
	), s.listResults)

	s.mcp.AddTool(mcp.NewTool("get_tree",
		mcp.WithDescription("Return the display tree built from the current snapshot."),
		mcp.WithString("format", mcp.Description("outline (indented text) or json"), mcp.Enum("outline", "json")),
	), s.getTree)

	s.mcp.AddTool(mcp.NewTool("get_result_format",
		mcp.WithDescription("Returns the result format contract. "+
			"Call this before submitting results to ensure correct structure."),
	), s.getResultFormat)

	s.mcp.AddResource(
		mcp.NewResource(resultFormatURI, "Result Format Contract",
			mcp.WithResourceDescription("Snapshot document format accepted by clustermap."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readResultFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) submitResult(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, err := req.RequireString("result")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	format := req.GetString("format", "json")

	r, err := ingest.Decode("mcp."+format, []byte(doc))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	snap, stored, err := s.svc.Submit(ctx, "mcp", r)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !stored {
		return mcp.NewToolResultText(fmt.Sprintf("unchanged: seq %d", snap.Seq)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("stored: seq %d", snap.Seq)), nil
}

func (s *Server) getCurrentResult(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap, err := s.svc.Current(ctx)
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError("no result submitted yet"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(snap, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listResults(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := s.svc.History(ctx, req.GetInt("limit", 20))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(items) == 0 {
		return mcp.NewToolResultText("no results stored"), nil
	}
	lines := make([]string, 0, len(items))
	for _, it := range items {
		lines = append(lines, fmt.Sprintf("%d\t%s\t%s\t%s",
			it.Seq, it.CreatedAt.Format(time.RFC3339), it.Source, it.Checksum[:12]))
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) getTree(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	root, _, err := s.svc.BuildTree(ctx)
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError("no result submitted yet"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if req.GetString("format", "outline") == "json" {
		out, _ := json.MarshalIndent(root, "", "  ")
		return mcp.NewToolResultText(string(out)), nil
	}
	return mcp.NewToolResultText(Outline(root)), nil
}

// Outline renders root as indented text, one node per line. A node
// referenced from several groups appears under each of them.
func Outline(root *tree.Node) string {
	var b strings.Builder
	root.Walk(func(n *tree.Node, depth int) bool {
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString(n.Label)
		b.WriteByte('\n')
		return true
	})
	return b.String()
}

func (s *Server) getResultFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ResultFormatContract), nil
}

func (s *Server) readResultFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      resultFormatURI,
			MIMEType: "text/markdown",
			Text:     ResultFormatContract,
		},
	}, nil
}
