// Package mcptools exposes ingestion and questions as MCP tools.
package mcptools

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/satriahrh/vidqa/domain"
	"github.com/satriahrh/vidqa/domain/entities"
	"github.com/satriahrh/vidqa/usecase"
)

const (
	serverName    = "vidqa"
	serverVersion = "1.0.0"
)

// Ingester creates sessions from remote media
type Ingester interface {
	Ingest(ctx context.Context, req usecase.IngestRequest) (*entities.Session, error)
}

// Asker answers questions against a session
type Asker interface {
	Ask(ctx context.Context, sessionID, question string) (*usecase.AskResult, error)
}

// Tools holds the tool handlers
type Tools struct {
	ingestion Ingester
	queries   Asker
	logger    *zap.Logger
}

// NewTools creates the tool handlers
func NewTools(ingestion Ingester, queries Asker, logger *zap.Logger) *Tools {
	return &Tools{ingestion: ingestion, queries: queries, logger: logger}
}

// NewServer registers the tools on a new MCP server
func NewServer(tools *Tools) *server.MCPServer {
	s := server.NewMCPServer(serverName, serverVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s.AddTool(mcp.NewTool("ingest_video",
		mcp.WithDescription("Fetch the captions of a YouTube video and open a Q&A session on them. Returns the session id."),
		mcp.WithString("remote_reference",
			mcp.Required(),
			mcp.Description("YouTube URL or 11 character video id"),
		),
	), tools.IngestVideo)

	s.AddTool(mcp.NewTool("ask_video",
		mcp.WithDescription("Ask a question about an ingested video. Returns the answer and the supporting timestamps in seconds."),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session id returned by ingest_video"),
		),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("Question about the video"),
		),
	), tools.AskVideo)

	return s
}

// NewHandler serves the tools over streamable HTTP
func NewHandler(tools *Tools) http.Handler {
	return server.NewStreamableHTTPServer(NewServer(tools), server.WithStateLess(true))
}

// IngestVideo handles the ingest_video tool
func (t *Tools) IngestVideo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	reference, err := request.RequireString("remote_reference")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	session, err := t.ingestion.Ingest(ctx, usecase.IngestRequest{RemoteReference: reference})
	if err != nil {
		return t.toolError("ingest_video", err), nil
	}

	return jsonResult(map[string]any{
		"session_id": session.ID,
		"language":   session.Language,
		"utterances": len(session.TranscriptIndex),
	})
}

// AskVideo handles the ask_video tool
func (t *Tools) AskVideo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := t.queries.Ask(ctx, sessionID, question)
	if err != nil {
		return t.toolError("ask_video", err), nil
	}

	return jsonResult(map[string]any{
		"answer":                result.Answer,
		"supporting_timestamps": result.SupportingTimestamps,
	})
}

// toolError reports err to the model as a tool result. Provider detail is
// only logged.
func (t *Tools) toolError(tool string, err error) *mcp.CallToolResult {
	code := domain.Code(err)
	t.logger.Warn("Tool call failed",
		zap.String("tool", tool),
		zap.String("error_code", code),
		zap.Error(err))

	message := domain.Message(code)
	if code == domain.CodeInvalidInput {
		message = err.Error()
	}
	return mcp.NewToolResultError(code + ": " + message)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}
