package socratic

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kalambet/mentor/internal/agent"
	"github.com/kalambet/mentor/internal/llm"
	"github.com/kalambet/mentor/internal/session"
)

type mockCompleter struct {
	response string
	err      error
	prompt   string
}

func (m *mockCompleter) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	m.prompt = req.Prompt
	return m.response, m.err
}

func TestSelectStrategy(t *testing.T) {
	tests := []struct {
		name string
		in   Inputs
		want agent.Strategy
	}{
		{"detailed brief", Inputs{MessageWords: 120, Confidence: agent.Overconfident, Engagement: agent.Low}, agent.SupportiveGuidance},
		{"overconfident and disengaged", Inputs{Confidence: agent.Overconfident, Engagement: agent.Low, MessageWords: 5}, agent.AssumptionChallenge},
		{"simple question while deepening", Inputs{Stage: agent.StageDeepening, IsQuestion: true, MessageWords: 6, Confused: true}, agent.DepthPromotion},
		{"long question while deepening", Inputs{Stage: agent.StageDeepening, IsQuestion: true, MessageWords: 40, Confused: true}, agent.ClarifyingGuidance},
		{"confused", Inputs{Stage: agent.StageInitial, Confused: true, Confidence: agent.Uncertain}, agent.ClarifyingGuidance},
		{"uncertain", Inputs{Stage: agent.StageExploration, Confidence: agent.Uncertain, Engagement: agent.High}, agent.SupportiveGuidance},
		{"engaged", Inputs{Stage: agent.StageExploration, Confidence: agent.Confident, Engagement: agent.High}, agent.ExploratoryQuestion},
		{"first turn", Inputs{Stage: agent.StageInitial, Confidence: agent.Confident, Engagement: agent.Medium}, agent.FoundationalQuestion},
		{"otherwise adaptive", Inputs{Stage: agent.StageAdvanced, Confidence: agent.Confident, Engagement: agent.Medium}, agent.AdaptiveQuestion},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := SelectStrategy(tc.in); got != tc.want {
				t.Errorf("SelectStrategy = %q, want %q", got, tc.want)
			}
			if again := SelectStrategy(tc.in); again != tc.want {
				t.Errorf("second call = %q, not deterministic", again)
			}
		})
	}
}

func TestSelectStrategy_MilestoneOverride(t *testing.T) {
	tests := map[agent.MilestoneType]agent.Strategy{
		agent.KnowledgeAcquisition: agent.SupportiveGuidance,
		agent.SkillDemonstration:   agent.ChallengingQuestion,
		agent.InsightFormation:     agent.ExploratoryQuestion,
		agent.ProblemSolving:       agent.AssumptionChallenge,
		agent.ReflectionPoint:      agent.DepthPromotion,
		agent.ReadinessAssessment:  agent.ClarifyingGuidance,
	}
	for mt, want := range tests {
		in := Inputs{Stage: agent.StageInitial, MessageWords: 200, Milestone: &agent.MilestoneContext{MilestoneType: mt}}
		if got := SelectStrategy(in); got != want {
			t.Errorf("milestone %q: strategy = %q, want %q", mt, got, want)
		}
	}

	unknown := Inputs{Stage: agent.StageInitial, Milestone: &agent.MilestoneContext{MilestoneType: "celebration"}}
	if got := SelectStrategy(unknown); got != agent.FoundationalQuestion {
		t.Errorf("unknown milestone: strategy = %q, want rule-based foundational_question", got)
	}
}

func userState(brief string, turns int) session.State {
	st := session.State{ID: "s1", Brief: brief, Profile: session.Profile{SkillLevel: session.Intermediate}}
	for i := 0; i < turns; i++ {
		st.Messages = append(st.Messages, session.Message{Role: session.RoleUser, Content: "turn"})
	}
	return st
}

func TestRespond_FirstTurnFoundational(t *testing.T) {
	brief := "Design a community center for 200 people in a Nordic country"
	tr := agent.Turn{
		State:          userState(brief, 1),
		Utterance:      brief,
		Classification: agent.Classification{ConfidenceLevel: agent.Confident, EngagementLevel: agent.Medium},
		Analysis:       agent.Analysis{BuildingType: "community center"},
	}
	resp, err := New(nil).Respond(context.Background(), tr)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if resp.Strategy != agent.FoundationalQuestion {
		t.Errorf("Strategy = %q", resp.Strategy)
	}
	if !strings.HasSuffix(resp.Text, "?") {
		t.Errorf("Text does not end with a question: %q", resp.Text)
	}
	if !strings.Contains(resp.Text, "community center") {
		t.Errorf("Text = %q", resp.Text)
	}
	if resp.Metrics == nil || resp.Metrics.CognitiveOffloadingPrevention < 0.5 {
		t.Errorf("Metrics = %+v", resp.Metrics)
	}
}

func TestRespond_ConfusionAddressesTopic(t *testing.T) {
	tr := agent.Turn{
		State:          userState("A library", 1),
		Utterance:      "I'm confused about circulation",
		Classification: agent.Classification{ConfidenceLevel: agent.Uncertain, ShowsConfusion: true, EngagementLevel: agent.Medium},
	}
	resp, _ := New(nil).Respond(context.Background(), tr)
	if resp.Strategy != agent.ClarifyingGuidance {
		t.Errorf("Strategy = %q, want clarifying_guidance", resp.Strategy)
	}
	if !strings.Contains(resp.Text, "circulation") || !strings.HasSuffix(resp.Text, "?") {
		t.Errorf("Text = %q", resp.Text)
	}
	if !agent.HasFlag(resp.Flags, agent.FlagScaffoldingProvided) {
		t.Errorf("Flags = %v", resp.Flags)
	}
}

func TestRespond_ExampleMode(t *testing.T) {
	examples := []agent.Source{{Title: "Adaptive Reuse of Industrial Buildings"}}
	tr := agent.Turn{
		State:          userState("", 1),
		Utterance:      "What precedents exist for adaptive reuse of warehouses?",
		Classification: agent.Classification{ConfidenceLevel: agent.Confident, IsKnowledgeSeeking: true, IsQuestion: true},
		Examples:       examples,
	}

	resp, _ := New(nil).Respond(context.Background(), tr)
	if !strings.Contains(resp.Text, "Adaptive Reuse of Industrial Buildings") {
		t.Errorf("example question does not reference the source: %q", resp.Text)
	}
	if resp.Metrics.KnowledgeIntegration < 0.69 {
		t.Errorf("KnowledgeIntegration = %v", resp.Metrics.KnowledgeIntegration)
	}

	off := &mockCompleter{response: "Which of these ideas would you try first"}
	resp, _ = New(off).Respond(context.Background(), tr)
	if !strings.HasPrefix(resp.Text, "Thinking about “Adaptive Reuse of Industrial Buildings”: ") || !strings.HasSuffix(resp.Text, "?") {
		t.Errorf("generated question not anchored on example: %q", resp.Text)
	}
	if !strings.Contains(off.prompt, "Adaptive Reuse of Industrial Buildings") {
		t.Error("prompt does not list the examples")
	}
}

func TestRespond_LLMFailureDegrades(t *testing.T) {
	tr := agent.Turn{State: userState("", 3), Utterance: "what about daylight", Classification: agent.Classification{ConfidenceLevel: agent.Confident}}
	resp, err := New(&mockCompleter{err: errors.New("down")}).Respond(context.Background(), tr)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if !resp.Degraded || !strings.HasSuffix(resp.Text, "?") {
		t.Errorf("resp = %+v", resp)
	}
}

func TestRespond_OffloadingFlag(t *testing.T) {
	tr := agent.Turn{
		State:          userState("", 2),
		Utterance:      "just tell me",
		Classification: agent.Classification{RequestsDirectAnswer: true, ConfidenceLevel: agent.Confident},
	}
	resp, _ := New(nil).Respond(context.Background(), tr)
	if len(resp.Flags) == 0 || resp.Flags[0] != agent.FlagCognitiveOffloadingDetected {
		t.Errorf("Flags = %v", resp.Flags)
	}
}

func TestQuestion_AllStrategiesAsk(t *testing.T) {
	for s := range strategyFlags {
		q := Question(s, "daylight", agent.Analysis{})
		if !strings.HasSuffix(q, "?") {
			t.Errorf("%s: %q does not end with a question", s, q)
		}
	}
}
