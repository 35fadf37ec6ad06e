package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/mentor/internal/agent"
	"github.com/kalambet/mentor/internal/interactions"
	"github.com/kalambet/mentor/internal/knowledge"
)

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func TestMCPTool_StartSession(t *testing.T) {
	handler := mcpStartSession(&fakeTutor{})

	req := makeCallToolRequest("start_session", map[string]any{
		"brief":       "Convert a warehouse into a maker space",
		"skill_level": "advanced",
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var got struct {
		SessionID  string `json:"session_id"`
		SkillLevel string `json:"skill_level"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &got); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if got.SessionID != "s1" || got.SkillLevel != "advanced" {
		t.Errorf("got %+v", got)
	}
}

func TestMCPTool_StartSession_MissingBrief(t *testing.T) {
	handler := mcpStartSession(&fakeTutor{})

	result, err := handler(context.Background(), makeCallToolRequest("start_session", map[string]any{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for missing brief")
	}
}

func TestMCPTool_PostMessage(t *testing.T) {
	ft := &fakeTutor{}
	handler := mcpPostMessage(ft)

	req := makeCallToolRequest("post_message", map[string]any{
		"session_id":    "s1",
		"text":          "Where should the loading dock go?",
		"artifact_refs": []any{"a1", "a2"},
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var resp MessageResponse
	if err := json.Unmarshal([]byte(toolText(t, result)), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.RoutingPath != agent.PathSocraticFocus {
		t.Errorf("routing_path = %q", resp.RoutingPath)
	}
	if len(ft.posted) != 1 || ft.posted[0] != "Where should the loading dock go?" {
		t.Errorf("posted = %v", ft.posted)
	}
	if len(ft.refs) != 2 {
		t.Errorf("refs = %v, want 2", ft.refs)
	}
}

func TestMCPTool_PostMessage_UnknownSession(t *testing.T) {
	handler := mcpPostMessage(&fakeTutor{})

	req := makeCallToolRequest("post_message", map[string]any{
		"session_id": "nope",
		"text":       "hello",
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error")
	}
	if got := toolText(t, result); got != "session not found" {
		t.Errorf("message = %q", got)
	}
}

func TestMCPTool_ExportSession(t *testing.T) {
	handler := mcpExportSession(&fakeTutor{})

	result, err := handler(context.Background(), makeCallToolRequest("export_session", map[string]any{"session_id": "s1"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var paths interactions.ExportPaths
	if err := json.Unmarshal([]byte(toolText(t, result)), &paths); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(paths.CSV) != 2 {
		t.Errorf("csv paths = %v", paths.CSV)
	}
}

func TestMCPTool_SearchKnowledge(t *testing.T) {
	ft := &fakeTutor{hits: []knowledge.CitedHit{
		{Hit: knowledge.Hit{Content: strings.Repeat("daylight ", 200), Similarity: 0.7, SearchMethod: knowledge.MethodSemantic}, Citation: "Light and Space, p. 12", Pages: []int{12}},
		{Hit: knowledge.Hit{Content: "Clerestory windows.", Similarity: 0.5, SearchMethod: knowledge.MethodKeyword}, Citation: "Light and Space, p. 14", Pages: []int{14}},
	}}
	handler := mcpSearchKnowledge(ft)

	result, err := handler(context.Background(), makeCallToolRequest("search_knowledge", map[string]any{
		"query": "daylighting",
		"limit": 3,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var hits []struct {
		Citation string `json:"citation"`
		Text     string `json:"text"`
		Method   string `json:"search_method"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &hits); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if !strings.HasSuffix(hits[0].Text, "...") {
		t.Error("long passage should be truncated")
	}
	if hits[1].Method != "keyword" {
		t.Errorf("method = %q", hits[1].Method)
	}
	if ft.searchK != 3 {
		t.Errorf("k = %d, want 3", ft.searchK)
	}
}

func TestMCPTool_SearchKnowledge_Empty(t *testing.T) {
	handler := mcpSearchKnowledge(&fakeTutor{})

	result, err := handler(context.Background(), makeCallToolRequest("search_knowledge", map[string]any{"query": "nothing"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := toolText(t, result); got != "[]" {
		t.Fatalf("expected empty array, got: %s", got)
	}
}

func TestMCPResource_Summary(t *testing.T) {
	handler := mcpResourceSummary(&fakeTutor{})

	contents, err := handler(context.Background(), makeReadResourceRequest("session://s1/summary"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	var sum interactions.Summary
	if err := json.Unmarshal([]byte(tc.Text), &sum); err != nil {
		t.Fatalf("failed to parse summary: %v", err)
	}
	if sum.SessionID != "s1" {
		t.Errorf("session_id = %q", sum.SessionID)
	}

	if _, err := handler(context.Background(), makeReadResourceRequest("session://missing/summary")); err == nil {
		t.Error("expected error for unknown session")
	}
	if _, err := handler(context.Background(), makeReadResourceRequest("user://profile")); err == nil {
		t.Error("expected error for malformed URI")
	}
}

func TestNewMCPServer(t *testing.T) {
	if s := NewMCPServer(&fakeTutor{}, "test"); s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}
