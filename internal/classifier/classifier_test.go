package classifier

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/mentor/internal/agent"
	"github.com/kalambet/mentor/internal/llm"
	"github.com/kalambet/mentor/internal/session"
)

type mockCompleter struct {
	response string
	err      error
	delay    time.Duration
	last     llm.CompletionRequest
}

func (m *mockCompleter) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	m.last = req
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return m.response, m.err
}

func TestHeuristic_Scenarios(t *testing.T) {
	tests := []struct {
		name       string
		utterance  string
		confidence agent.Confidence
		input      agent.InputType
		path       agent.RoutingPath
	}{
		{
			name:       "brief statement",
			utterance:  "Design a community center for 200 people in a Nordic country",
			confidence: agent.Confident,
			input:      agent.InputGeneralStatement,
			path:       agent.PathSocraticFocus,
		},
		{
			name:       "overconfident claim",
			utterance:  "My design is obviously perfect",
			confidence: agent.Overconfident,
			input:      agent.InputOverconfidentStatement,
			path:       agent.PathCognitiveChallenge,
		},
		{
			name:       "precedent question",
			utterance:  "What precedents exist for adaptive reuse of warehouses?",
			confidence: agent.Confident,
			input:      agent.InputKnowledgeSeeking,
			path:       agent.PathKnowledgePlusSocratic,
		},
		{
			name:       "confusion",
			utterance:  "I'm confused about circulation",
			confidence: agent.Uncertain,
			input:      agent.InputConfusionExpression,
			path:       agent.PathSocraticFocus,
		},
		{
			name:       "direct answer request",
			utterance:  "Just tell me what the floor plan should be",
			confidence: agent.Confident,
			input:      agent.InputGeneralStatement,
			path:       agent.PathCognitiveProtection,
		},
		{
			name:       "feedback request",
			utterance:  "What do you think of my entrance sequence and the way the courtyard opens up?",
			confidence: agent.Confident,
			input:      agent.InputFeedbackRequest,
			path:       agent.PathMultiAgent,
		},
		{
			name:       "technical question",
			utterance:  "What is the minimum width for an egress corridor?",
			confidence: agent.Confident,
			input:      agent.InputDirectQuestion,
			path:       agent.PathKnowledgeOnly,
		},
		{
			name:       "improvement",
			utterance:  "I want to improve the daylight in the reading room",
			confidence: agent.Confident,
			input:      agent.InputImprovementSeeking,
			path:       agent.PathSocraticFocus,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Heuristic(tc.utterance)
			if !got.Heuristic {
				t.Error("Heuristic flag not set")
			}
			if got.ConfidenceLevel != tc.confidence {
				t.Errorf("ConfidenceLevel = %q, want %q", got.ConfidenceLevel, tc.confidence)
			}
			if got.InputType != tc.input {
				t.Errorf("InputType = %q, want %q", got.InputType, tc.input)
			}
			if got.SuggestedPath != tc.path {
				t.Errorf("SuggestedPath = %q, want %q", got.SuggestedPath, tc.path)
			}
		})
	}
}

func TestHeuristic_Levels(t *testing.T) {
	low := Heuristic("My design is obviously perfect")
	if low.EngagementLevel != agent.Low {
		t.Errorf("short statement engagement = %q, want low", low.EngagementLevel)
	}
	if !agent.HasFlag(low.CognitiveFlags, agent.FlagMetacognitiveAwareness) {
		t.Errorf("flags = %v, want metacognitive_awareness", low.CognitiveFlags)
	}

	confused := Heuristic("I'm confused about circulation")
	if confused.UnderstandingLevel != agent.Low {
		t.Errorf("confused understanding = %q, want low", confused.UnderstandingLevel)
	}
	if !agent.HasFlag(confused.CognitiveFlags, agent.FlagScaffoldingProvided) {
		t.Errorf("flags = %v, want scaffolding_provided", confused.CognitiveFlags)
	}

	long := Heuristic(strings.Repeat("I am working through the circulation and the massing of the site plan together with the program ", 3))
	if long.EngagementLevel != agent.High {
		t.Errorf("long statement engagement = %q, want high", long.EngagementLevel)
	}
	if long.UnderstandingLevel != agent.High {
		t.Errorf("long statement understanding = %q, want high", long.UnderstandingLevel)
	}

	offload := Heuristic("Just give me the answer")
	if !agent.HasFlag(offload.CognitiveFlags, agent.FlagCognitiveOffloadingDetected) {
		t.Errorf("flags = %v, want cognitive_offloading_detected", offload.CognitiveFlags)
	}
}

func TestIsQuestion(t *testing.T) {
	tests := map[string]bool{
		"why does this work":   true,
		"Should I use timber?": true,
		"it works?":            true,
		"the plan is done":     false,
		"":                     false,
	}
	for in, want := range tests {
		if got := isQuestion(strings.ToLower(in)); got != want {
			t.Errorf("isQuestion(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestClassify_UsesLLM(t *testing.T) {
	mock := &mockCompleter{
		response: "```json\n" + `{"confidence_level":"uncertain","understanding_level":"high","engagement_level":"high","is_technical_question":false,"is_feedback_request":true,"shows_confusion":false,"shows_overconfidence":false,"is_knowledge_seeking":false,"requests_direct_answer":false,"cognitive_flags":["deep_thinking","made_up"],"reasoning":"asks for review"}` + "\n```",
	}
	c := New(mock)
	st := session.State{Brief: "A library", Profile: session.Profile{SkillLevel: session.Intermediate}}

	got := c.Classify(context.Background(), st, "Here is my plan")

	if got.Heuristic {
		t.Error("Heuristic = true, want LLM result")
	}
	if got.ConfidenceLevel != agent.Uncertain {
		t.Errorf("ConfidenceLevel = %q, want uncertain", got.ConfidenceLevel)
	}
	if got.UnderstandingLevel != agent.High || got.EngagementLevel != agent.High {
		t.Errorf("levels = %q/%q, want high/high", got.UnderstandingLevel, got.EngagementLevel)
	}
	if got.InputType != agent.InputFeedbackRequest {
		t.Errorf("InputType = %q, want feedback_request", got.InputType)
	}
	if got.SuggestedPath != agent.PathMultiAgent {
		t.Errorf("SuggestedPath = %q, want multi_agent", got.SuggestedPath)
	}
	if !agent.HasFlag(got.CognitiveFlags, agent.FlagDeepThinkingEncouraged) {
		t.Errorf("flags = %v, want deep_thinking_encouraged", got.CognitiveFlags)
	}
	for _, f := range got.CognitiveFlags {
		if f == "made_up" {
			t.Error("unknown flag survived normalization")
		}
	}
	if !mock.last.JSON {
		t.Error("request did not ask for JSON output")
	}
	if !strings.Contains(mock.last.Prompt, "A library") {
		t.Error("prompt does not include the brief")
	}
}

func TestClassify_InvalidEnumFallsBackPerField(t *testing.T) {
	mock := &mockCompleter{
		response: `{"confidence_level":"extremely sure","understanding_level":"medium","engagement_level":"sky high"}`,
	}
	got := New(mock).Classify(context.Background(), session.State{}, "My design is obviously perfect")

	if got.ConfidenceLevel != agent.Overconfident {
		t.Errorf("ConfidenceLevel = %q, want heuristic overconfident", got.ConfidenceLevel)
	}
	if got.EngagementLevel != agent.Low {
		t.Errorf("EngagementLevel = %q, want heuristic low", got.EngagementLevel)
	}
	if got.UnderstandingLevel != agent.Medium {
		t.Errorf("UnderstandingLevel = %q, want medium", got.UnderstandingLevel)
	}
	if got.SuggestedPath != agent.PathCognitiveChallenge {
		t.Errorf("SuggestedPath = %q, want cognitive_challenge", got.SuggestedPath)
	}
}

func TestClassify_FallsBackToHeuristics(t *testing.T) {
	tests := []struct {
		name string
		mock *mockCompleter
	}{
		{"llm error", &mockCompleter{err: errors.New("connection refused")}},
		{"unparseable", &mockCompleter{response: "I think the student is confused."}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := New(tc.mock).Classify(context.Background(), session.State{}, "I'm confused about circulation")
			want := Heuristic("I'm confused about circulation")
			if got.InputType != want.InputType || got.SuggestedPath != want.SuggestedPath || !got.Heuristic {
				t.Errorf("got %+v, want heuristic %+v", got, want)
			}
		})
	}
}

func TestClassify_Timeout(t *testing.T) {
	mock := &mockCompleter{response: `{"confidence_level":"confident"}`, delay: time.Second}
	c := New(mock)
	c.timeout = 20 * time.Millisecond

	start := time.Now()
	got := c.Classify(context.Background(), session.State{}, "What precedents exist for adaptive reuse of warehouses?")
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("Classify took %v, want prompt fallback", time.Since(start))
	}
	if !got.Heuristic {
		t.Error("expected heuristic fallback after timeout")
	}
}

func TestClassify_NilClient(t *testing.T) {
	got := New(nil).Classify(context.Background(), session.State{}, "What precedents exist for adaptive reuse of warehouses?")
	if got.SuggestedPath != agent.PathKnowledgePlusSocratic {
		t.Errorf("SuggestedPath = %q, want knowledge_plus_socratic", got.SuggestedPath)
	}
}
