// Package mcpserver provides an MCP (Model Context Protocol) server
// that answers recent-change queries over stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/githighlight/internal/apperr"
	"github.com/starford/githighlight/internal/highlight"
)

// Resource URIs.
const (
	SnapshotURI = "githighlight://snapshot"
	UsageURI    = "githighlight://usage"
)

// Server wraps the MCP server with githighlight tools.
type Server struct {
	mcp *server.MCPServer
	svc *highlight.Service
}

// New creates a new MCP server with all tools registered.
func New(svc *highlight.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"githighlight",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("match_file",
		mcp.WithDescription("Report whether a file was changed in the recent commit window "+
			"and, if so, the subject of the most recent commit that touched it."),
		mcp.WithString("path", mcp.Required(), mcp.Description("File path, relative to the repository root or absolute")),
	), s.matchFile)

	s.mcp.AddTool(mcp.NewTool("highlight_file",
		mcp.WithDescription("Return the byte range and tooltip an editor should annotate for a file. "+
			"Empty when the file was not recently changed."),
		mcp.WithString("path", mcp.Required(), mcp.Description("File path, relative to the repository root or absolute")),
		mcp.WithString("text", mcp.Description("Current document text; the worktree file is read when omitted")),
	), s.highlightFile)

	s.mcp.AddTool(mcp.NewTool("recent_commits",
		mcp.WithDescription("List the commits in the current window, most recent first, with their changed files."),
	), s.recentCommits)

	s.mcp.AddTool(mcp.NewTool("refresh_history",
		mcp.WithDescription("Request a background re-read of the commit window. Returns immediately."),
	), s.refreshHistory)

	s.mcp.AddTool(mcp.NewTool("cache_status",
		mcp.WithDescription("Report the repository, cache state, refresh counters and last error."),
	), s.cacheStatus)

	s.mcp.AddResource(
		mcp.NewResource(SnapshotURI, "Commit Window",
			mcp.WithResourceDescription("The current snapshot of recent commits and their changed files."),
			mcp.WithMIMEType("application/json"),
		),
		s.readSnapshotResource,
	)

	s.mcp.AddResource(
		mcp.NewResource(UsageURI, "Usage Guide",
			mcp.WithResourceDescription("How matches, highlights and refreshes behave."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readUsageResource,
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

func toolError(err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrSessionInactive) {
		return mcp.NewToolResultError("no git repository found for this project")
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) matchFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tooltip, ok, err := s.svc.Match(ctx, path)
	if err != nil {
		return toolError(err), nil
	}
	if !ok {
		return mcp.NewToolResultText(fmt.Sprintf("not changed recently: %s", path)), nil
	}
	return mcp.NewToolResultText(tooltip), nil
}

func (s *Server) highlightFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var text *string
	if t, err := req.RequireString("text"); err == nil {
		text = &t
	}
	res, err := s.svc.Highlight(ctx, path, text)
	if err != nil {
		return toolError(err), nil
	}
	if res == nil {
		return mcp.NewToolResultText("nothing to highlight"), nil
	}
	return jsonResult(res)
}

func (s *Server) recentCommits(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.Commits(ctx).Commits)
}

func (s *Server) refreshHistory(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.svc.Refresh(ctx); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText("refresh requested"), nil
}

func (s *Server) cacheStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.Status(ctx))
}

func (s *Server) readSnapshotResource(ctx context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	out, err := json.Marshal(s.svc.Commits(ctx))
	if err != nil {
		return nil, fmt.Errorf("mcpserver: encode snapshot: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      SnapshotURI,
			MIMEType: "application/json",
			Text:     string(out),
		},
	}, nil
}

func (s *Server) readUsageResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      UsageURI,
			MIMEType: "text/markdown",
			Text:     UsageGuide,
		},
	}, nil
}
