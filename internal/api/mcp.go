package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/mentor/internal/session"
	"github.com/kalambet/mentor/internal/tutor"
)

const (
	summaryURIPrefix = "session://"
	summaryURISuffix = "/summary"
	maxSnippetRunes  = 600
)

// NewMCPServer creates an MCP server exposing the tutor's session API and
// knowledge search as tools.
func NewMCPServer(t Tutor, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"mentor",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("mentor is a Socratic architecture tutor. Start a session with a design brief, then post the student's messages to it."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_knowledge",
			mcp.WithDescription("Search the architecture knowledge base and return cited passages."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpSearchKnowledge(t),
	)

	s.AddTool(
		mcp.NewTool("start_session",
			mcp.WithDescription("Start a tutoring session for a design brief and return its id."),
			mcp.WithString("brief", mcp.Description("The design brief the student is working on"), mcp.Required()),
			mcp.WithString("skill_level", mcp.Description("beginner, intermediate or advanced (default intermediate)")),
		),
		mcpStartSession(t),
	)

	s.AddTool(
		mcp.NewTool("post_message",
			mcp.WithDescription("Post a student message to a session and return the tutor's reply with routing metadata."),
			mcp.WithString("session_id", mcp.Description("Session id from start_session"), mcp.Required()),
			mcp.WithString("text", mcp.Description("The student's message"), mcp.Required()),
			mcp.WithArray("artifact_refs", mcp.Description("Ids of previously uploaded artifacts the message refers to")),
		),
		mcpPostMessage(t),
	)

	s.AddTool(
		mcp.NewTool("export_session",
			mcp.WithDescription("Write the session's CSV and JSON exports and return their paths."),
			mcp.WithString("session_id", mcp.Description("Session id"), mcp.Required()),
		),
		mcpExportSession(t),
	)

	s.AddResourceTemplate(
		mcp.NewResourceTemplate(
			summaryURIPrefix+"{id}"+summaryURISuffix,
			"Session Summary",
			mcp.WithTemplateDescription("Aggregated learning metrics for a session"),
			mcp.WithTemplateMIMEType("application/json"),
		),
		mcpResourceSummary(t),
	)

	return s
}

func mcpSearchKnowledge(t Tutor) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		limit = min(limit, maxSearchResults)

		hits, err := t.SearchKnowledge(ctx, query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(hits) == 0 {
			return mcpText("[]"), nil
		}

		type hitResult struct {
			Citation   string  `json:"citation"`
			Pages      []int   `json:"pages"`
			Similarity float64 `json:"similarity"`
			Method     string  `json:"search_method"`
			Text       string  `json:"text"`
		}

		results := make([]hitResult, len(hits))
		for i, h := range hits {
			results[i] = hitResult{
				Citation:   h.Citation,
				Pages:      h.Pages,
				Similarity: h.Similarity,
				Method:     string(h.SearchMethod),
				Text:       snippet(h.Content),
			}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpStartSession(t Tutor) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		brief, err := req.RequireString("brief")
		if err != nil {
			return mcpError("brief is required"), nil
		}

		st, err := t.StartSession(brief, req.GetString("skill_level", ""))
		if err != nil {
			return mcpError(toolErrorMessage(err)), nil
		}
		return mcpJSON(map[string]any{
			"session_id":  st.ID,
			"skill_level": st.Profile.SkillLevel,
		})
	}
}

func mcpPostMessage(t Tutor) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}

		res, err := t.PostMessage(ctx, id, text, req.GetStringSlice("artifact_refs", nil), nil)
		if err != nil {
			return mcpError(toolErrorMessage(err)), nil
		}
		return mcpJSON(MessageResponse{
			Response:    res.Response,
			RoutingPath: res.RoutingPath,
			Metadata:    res.Metadata,
		})
	}
}

func mcpExportSession(t Tutor) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}

		paths, err := t.ExportSession(id)
		if err != nil {
			return mcpError(toolErrorMessage(err)), nil
		}
		return mcpJSON(paths)
	}
}

func mcpResourceSummary(t Tutor) server.ResourceTemplateHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		id, ok := strings.CutPrefix(req.Params.URI, summaryURIPrefix)
		id, ok2 := strings.CutSuffix(id, summaryURISuffix)
		if !ok || !ok2 || id == "" {
			return nil, fmt.Errorf("invalid session summary URI %q", req.Params.URI)
		}

		sum, err := t.Summary(id)
		if err != nil {
			return nil, fmt.Errorf("failed to summarize session: %w", err)
		}
		b, err := json.Marshal(sum)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal summary: %w", err)
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

func toolErrorMessage(err error) string {
	var verr *tutor.ValidationError
	switch {
	case errors.As(err, &verr):
		return verr.Error()
	case errors.Is(err, session.ErrNotFound):
		return "session not found"
	default:
		return err.Error()
	}
}

func snippet(s string) string {
	if utf8.RuneCountInString(s) <= maxSnippetRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxSnippetRunes]) + "..."
}

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
