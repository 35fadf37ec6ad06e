// Package analysis builds the situational report every downstream agent
// reads: brief structure, visual insights, knowledge coverage, cognitive
// flags, skill reassessment and a synthesis of what to focus on next.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/mentor/internal/agent"
	"github.com/kalambet/mentor/internal/knowledge"
	"github.com/kalambet/mentor/internal/llm"
	"github.com/kalambet/mentor/internal/session"
)

const (
	defaultTimeout = 15 * time.Second
	probeK         = 3
)

// Completer is the LLM capability used for brief extraction.
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (string, error)
}

// Searcher probes the knowledge base.
type Searcher interface {
	Search(ctx context.Context, query string, k int, minSim float64) ([]knowledge.Hit, error)
}

// Agent is the analysis agent. It is safe for concurrent use across sessions.
type Agent struct {
	llm     Completer
	kb      Searcher
	minSim  float64
	timeout time.Duration
	skills  *skillTracker
}

// New creates an Agent. client and kb may be nil; the agent then relies on
// keyword extraction and reports no knowledge enhancement.
func New(client Completer, kb Searcher, minSim float64) *Agent {
	if minSim <= 0 {
		minSim = 0.3
	}
	return &Agent{
		llm:     client,
		kb:      kb,
		minSim:  minSim,
		timeout: defaultTimeout,
		skills:  newSkillTracker(),
	}
}

// Analyze never fails. Partial failures are logged and reflected in the
// Degraded and KnowledgeEnhanced fields.
func (a *Agent) Analyze(ctx context.Context, st session.State, utterance string, c agent.Classification) agent.Analysis {
	facts, degraded := a.extract(ctx, st.Brief, utterance)

	out := agent.Analysis{
		BuildingType:        facts.BuildingType,
		Complexity:          facts.Complexity,
		DetailLevel:         facts.DetailLevel,
		ProgramRequirements: facts.ProgramRequirements,
		Constraints:         facts.Constraints,
		Considerations:      facts.Considerations,
		Degraded:            degraded,
	}

	mergeVisual(&out, st)
	a.probeKnowledge(ctx, &out, utterance)

	raw, observations := detectFlags(st, utterance, c, out)
	out.Observations = observations
	out.CognitiveFlags = agent.NormalizeFlags(raw)

	level, conf := assessSkill(st, utterance)
	updated, streak := a.skills.observe(st.ID, st.Profile.SkillLevel, level, conf)
	out.Skill = agent.SkillAssessment{Level: level, Confidence: conf, Updated: updated, Streak: streak}

	out.Synthesis = synthesize(out, c, st.Brief, raw)
	return out
}

func (a *Agent) extract(ctx context.Context, brief, utterance string) (briefFacts, bool) {
	h := extractHeuristic(brief, utterance)
	if a.llm == nil || strings.TrimSpace(brief) == "" {
		return h, false
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	raw, err := a.llm.Complete(ctx, llm.CompletionRequest{
		System:      extractSystemPrompt,
		Prompt:      buildExtractPrompt(brief, utterance),
		MaxTokens:   500,
		Temperature: 0,
		JSON:        true,
	})
	if err != nil {
		slog.Warn("analysis: brief extraction failed, using keywords", "error", err)
		return h, true
	}
	var f briefFacts
	if err := agent.DecodeJSON(raw, &f); err != nil {
		slog.Warn("analysis: unparseable extraction output, using keywords", "error", err)
		return h, true
	}
	return f.normalize(h), false
}

// mergeVisual folds cached artifact analyses into the report.
func mergeVisual(out *agent.Analysis, st session.State) {
	for _, va := range st.Analyses() {
		out.HasVisual = true
		if va.ChatSummary != "" {
			out.VisualInsights = append(out.VisualInsights, va.ChatSummary)
		}
		if va.Classification.Type != "" {
			out.VisualInsights = append(out.VisualInsights,
				fmt.Sprintf("%s drawing at %s development", va.Classification.Type, orDefault(va.Classification.DevelopmentLevel, "unknown")))
		}
		for _, w := range va.CritiqueAndSuggestions.Weaknesses {
			out.Considerations = appendUnique(out.Considerations, w)
		}
		if va.SpatialAnalysis.Circulation != "" {
			out.Considerations = appendUnique(out.Considerations, "circulation")
		}
	}
}

func (a *Agent) probeKnowledge(ctx context.Context, out *agent.Analysis, utterance string) {
	if a.kb == nil {
		return
	}
	query := strings.TrimSpace(out.BuildingType + " " + utterance)
	hits, err := a.kb.Search(ctx, query, probeK, a.minSim)
	if err != nil {
		slog.Warn("analysis: knowledge probe failed", "error", err)
		return
	}
	if len(hits) == 0 {
		return
	}
	var sum float64
	for _, h := range hits {
		sum += h.Similarity
	}
	out.KnowledgeEnhanced = true
	out.EnhancementConfidence = agent.Clamp01(sum / float64(len(hits)))
}

var (
	accessibilityTerms = []string{"accessib", "wheelchair", "universal design", "step-free", "ramp", "barrier-free"}
	publicSpaceTerms   = []string{"public space", "plaza", "square", "gathering", "forecourt", "commons", "public realm"}
	publicBuildings    = []string{"community center", "library", "museum", "gallery", "school", "theater", "market hall", "transit station"}
)

// detectFlags returns raw flag names together with readable observations.
func detectFlags(st session.State, utterance string, c agent.Classification, a agent.Analysis) ([]string, []string) {
	var sb strings.Builder
	sb.WriteString(st.Brief)
	for _, m := range st.Messages {
		if m.Role == session.RoleUser {
			sb.WriteByte('\n')
			sb.WriteString(m.Content)
		}
	}
	sb.WriteByte('\n')
	sb.WriteString(utterance)
	text := strings.ToLower(sb.String())

	var flags, obs []string
	if !agent.ContainsAny(text, accessibilityTerms) {
		flags = append(flags, "missing_accessibility")
		obs = append(obs, "Accessibility has not been addressed yet.")
	}
	if isPublic(a.BuildingType) && !agent.ContainsAny(text, publicSpaceTerms) {
		flags = append(flags, "missing_public_space")
		obs = append(obs, "The brief is for a public building but shared public space is not discussed.")
	}
	switch {
	case st.Profile.SkillLevel == session.Beginner && a.Complexity == "complex":
		flags = append(flags, "complexity_mismatch")
		obs = append(obs, "The brief is complex for a beginner; break it into smaller decisions.")
	case st.Profile.SkillLevel == session.Advanced && a.Complexity == "simple":
		flags = append(flags, "complexity_mismatch")
		obs = append(obs, "The brief is simple for an advanced student; raise the ambition.")
	}
	if c.UnderstandingLevel == agent.High || (c.ConfidenceLevel == agent.Confident && c.EngagementLevel == agent.High) {
		flags = append(flags, "ready_for_challenge")
		obs = append(obs, "The student shows enough understanding to be challenged.")
	}
	if agent.WordCount(st.Brief) < 15 {
		flags = append(flags, "brief_underdeveloped")
		obs = append(obs, "The design brief is still thin.")
	}
	if c.ShowsOverconfidence || c.ConfidenceLevel == agent.Overconfident {
		flags = append(flags, "overconfidence")
		obs = append(obs, "The student is certain without offering evidence.")
	}
	if c.RequestsDirectAnswer {
		flags = append(flags, "direct_answer_request")
		obs = append(obs, "The student is asking to be given the answer.")
	}
	return flags, obs
}

func isPublic(buildingType string) bool {
	for _, b := range publicBuildings {
		if buildingType == b {
			return true
		}
	}
	return false
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
