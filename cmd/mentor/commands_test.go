package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/google/go-cmp/cmp"

	"github.com/kalambet/mentor/internal/agent"
	"github.com/kalambet/mentor/internal/interactions"
	"github.com/kalambet/mentor/internal/orchestrator"
	"github.com/kalambet/mentor/internal/session"
	"github.com/kalambet/mentor/internal/tutor"
	"github.com/kalambet/mentor/internal/vision"
)

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, status int, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"message":"session not found","type":"not_found_error"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestExportVia(t *testing.T) {
	ts := newTestServer(t, http.StatusOK, map[string]string{
		"POST /sessions/s1/export": `{"csv_paths":["/out/interactions_s1.csv"],"json_paths":["/out/session_summary_s1.json"]}`,
	})

	paths, err := exportVia(ctx, ts.client(), "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := interactions.ExportPaths{
		CSV:  []string{"/out/interactions_s1.csv"},
		JSON: []string{"/out/session_summary_s1.json"},
	}
	if diff := cmp.Diff(want, paths); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Method != http.MethodPost || r.Path != "/sessions/s1/export" {
		t.Errorf("request = %s %s", r.Method, r.Path)
	}
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}
}

func TestExportVia_ErrorEnvelope(t *testing.T) {
	ts := newTestServer(t, http.StatusOK, nil)

	_, err := exportVia(ctx, ts.client(), "missing")
	if err == nil {
		t.Fatal("expected error for unknown session")
	}
	if !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "session not found") {
		t.Errorf("error = %q", err)
	}
}

func TestServerUnreachable(t *testing.T) {
	ts := newTestServer(t, http.StatusOK, nil)
	c := ts.client()
	ts.server.Close()

	_, err := c.get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "is mentor running?") {
		t.Errorf("error = %q", err)
	}
}

func TestIngestCommand_MissingDir(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"ingest"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing --pdf-dir")
	}
	if !strings.Contains(err.Error(), "required") {
		t.Errorf("error = %q, want it to mention 'required'", err.Error())
	}
}

func TestChatCommand_MissingBrief(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"chat"})
	if err := rootCmd.Execute(); err == nil {
		t.Fatal("expected error without --brief or --session")
	}
}

func TestPIDFileRoundTrip(t *testing.T) {
	path := pidFilePath(filepath.Join(t.TempDir(), "data"))
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	pid, err := readPIDFile(path)
	if err != nil {
		t.Fatalf("readPIDFile: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("pid = %d, want %d", pid, os.Getpid())
	}
	removePIDFile(path)
	if _, err := readPIDFile(path); err == nil {
		t.Error("expected error after removal")
	}
}

func TestColorize(t *testing.T) {
	old, oldGlobal := noColor, color.NoColor
	defer func() { noColor, color.NoColor = old, oldGlobal }()
	color.NoColor = false

	noColor = true
	if got := colorize(colorRed, "hello"); got != "hello" {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", got)
	}

	noColor = false
	if got := colorize(colorRed, "hello"); !strings.Contains(got, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", got)
	}
}

// fakeChat records what the chat loop sends.
type fakeChat struct {
	messages []string
	refs     [][]string
	uploads  []string
	exported int
}

func (f *fakeChat) PostMessage(_ context.Context, _ string, text string, artifactIDs []string, _ *agent.MilestoneContext) (orchestrator.Result, error) {
	if text == "?" {
		return orchestrator.Result{}, &tutor.ValidationError{Field: "text", Reason: "too short"}
	}
	if text == "boom" {
		return orchestrator.Result{}, errors.New("session store unavailable")
	}
	f.messages = append(f.messages, text)
	f.refs = append(f.refs, artifactIDs)
	return orchestrator.Result{
		Response:    "What would a visitor notice first?",
		RoutingPath: agent.PathSocraticFocus,
	}, nil
}

func (f *fakeChat) UploadArtifact(_ context.Context, _ string, kind string, data []byte, _ string) (session.Artifact, error) {
	f.uploads = append(f.uploads, kind+":"+string(data))
	an := vision.Analysis{Classification: vision.Classification{Type: "floor plan"}, DesignIntent: "courtyard as social core"}
	return session.Artifact{ID: "a1", Kind: session.ArtifactKind(kind), Analysis: &an}, nil
}

func (f *fakeChat) ExportSession(string) (interactions.ExportPaths, error) {
	f.exported++
	return interactions.ExportPaths{CSV: []string{"/out/interactions_s1.csv"}}, nil
}

func TestChatLoop(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()
	noColor = true

	img := filepath.Join(t.TempDir(), "sketch.png")
	if err := os.WriteFile(img, []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}

	in := strings.NewReader(strings.Join([]string{
		"I want a courtyard at the center",
		"",
		"/upload " + img + " plan",
		"Here is my plan",
		"?",
		"/export",
		"/quit",
		"never sent",
	}, "\n"))
	var out bytes.Buffer
	f := &fakeChat{}

	if err := chatLoop(ctx, f, "s1", in, &out); err != nil {
		t.Fatalf("chatLoop: %v", err)
	}

	if diff := cmp.Diff([]string{"I want a courtyard at the center", "Here is my plan"}, f.messages); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]string{nil, {"a1"}}, f.refs); diff != "" {
		t.Errorf("artifact refs mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"plan:png"}, f.uploads); diff != "" {
		t.Errorf("uploads mismatch (-want +got):\n%s", diff)
	}
	if f.exported != 1 {
		t.Errorf("exported = %d, want 1", f.exported)
	}

	text := out.String()
	for _, want := range []string{
		"[socratic_focus] mentor:",
		"What would a visitor notice first?",
		"attached a1",
		"seen: a floor plan; intent: courtyard as social core",
		"invalid text: too short",
		"/out/interactions_s1.csv",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestChatLoop_FatalError(t *testing.T) {
	var out bytes.Buffer
	err := chatLoop(ctx, &fakeChat{}, "s1", strings.NewReader("boom\n"), &out)
	if err == nil || !strings.Contains(err.Error(), "unavailable") {
		t.Fatalf("err = %v, want store error", err)
	}
}

func TestChatLoop_UploadErrors(t *testing.T) {
	var out bytes.Buffer
	in := strings.NewReader("/upload\n/upload /does/not/exist.png\n")
	f := &fakeChat{}

	if err := chatLoop(ctx, f, "s1", in, &out); err != nil {
		t.Fatalf("chatLoop: %v", err)
	}
	if len(f.uploads) != 0 {
		t.Errorf("uploads = %v, want none", f.uploads)
	}
	if got := strings.Count(out.String(), "upload failed"); got != 2 {
		t.Errorf("upload failures reported = %d, want 2:\n%s", got, out.String())
	}
}
